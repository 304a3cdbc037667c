// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"entrain/internal/transport"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp: sender is closed")

// PacketSize is the encoded size of one frame.
const PacketSize = 4 + 8 + 4 + 3 + 1

/*
Frame packet layout (BigEndian), one packet per tick:

|<- 4 B ->|<--- 8 B --->|<- 4 B ->|<- 3 B ->|<- 1 B ->|
+---------+-------------+---------+---------+---------+
|   Seq   |  Timestamp  |Intensity|  R G B  |  Flags  |
| uint32  |   int64 ns  | float32 | 3×uint8 |  uint8  |
+---------+-------------+---------+---------+---------+

Flags: bit 0 = colour present, bit 1 = torch sink.
*/

const (
	flagColor = 1 << 0
	flagTorch = 1 << 1
)

// FrameTransport packs frames into fixed-size binary packets and sends them
// through a UDPSender. The packet buffer is reused across sends.
type FrameTransport struct {
	sender *UDPSender
	mu     sync.Mutex
	packet *bytes.Buffer
}

// NewFrameTransport wraps sender. sender must not be nil.
func NewFrameTransport(sender *UDPSender) (*FrameTransport, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp frame transport: sender cannot be nil")
	}
	packet := new(bytes.Buffer)
	packet.Grow(PacketSize)
	return &FrameTransport{sender: sender, packet: packet}, nil
}

// Send encodes and transmits the frame.
func (t *FrameTransport) Send(frame transport.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.packet.Reset()
	if err := EncodeFrame(t.packet, frame); err != nil {
		return err
	}
	return t.sender.Send(t.packet.Bytes())
}

// Close closes the underlying sender.
func (t *FrameTransport) Close() error {
	return t.sender.Close()
}

// EncodeFrame writes the packet form of frame to buf.
func EncodeFrame(buf *bytes.Buffer, frame transport.Frame) error {
	var flags uint8
	if frame.HasColor {
		flags |= flagColor
	}
	if frame.Torch {
		flags |= flagTorch
	}

	var hdr [PacketSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], frame.Seq)
	binary.BigEndian.PutUint64(hdr[4:12], uint64(frame.Timestamp))
	binary.BigEndian.PutUint32(hdr[12:16], math.Float32bits(frame.Intensity))
	hdr[16], hdr[17], hdr[18] = frame.R, frame.G, frame.B
	hdr[19] = flags

	_, err := buf.Write(hdr[:])
	return err
}

// DecodeFrame parses a packet produced by EncodeFrame.
func DecodeFrame(packet []byte) (transport.Frame, error) {
	if len(packet) != PacketSize {
		return transport.Frame{}, fmt.Errorf("udp: packet size %d, want %d", len(packet), PacketSize)
	}
	intensity := math.Float32frombits(binary.BigEndian.Uint32(packet[12:16]))
	flags := packet[19]
	return transport.Frame{
		Seq:       binary.BigEndian.Uint32(packet[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(packet[4:12])),
		Intensity: intensity,
		R:         packet[16],
		G:         packet[17],
		B:         packet[18],
		HasColor:  flags&flagColor != 0,
		Torch:     flags&flagTorch != 0,
	}, nil
}

var _ transport.Transport = (*FrameTransport)(nil)
