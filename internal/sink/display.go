// SPDX-License-Identifier: MIT
package sink

import (
	"fmt"
	"sync"
	"time"

	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/transport"
)

// Display drives a screen-type output: continuous level plus colour.
type Display struct {
	mu        sync.Mutex
	transport transport.Transport
	clock     func() time.Time
	started   bool
	seq       uint32
	color     light.Color
	hasColor  bool
}

var _ LightSink = (*Display)(nil)

// NewDisplay creates a display sink.
func NewDisplay(t transport.Transport) *Display {
	return &Display{transport: t}
}

// Kind implements LightSink.
func (d *Display) Kind() light.SinkKind { return light.SinkDisplay }

// Start blanks the display.
func (d *Display) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.started = true
	applog.Infof("Sink: display started")
	return d.writeLocked(0)
}

// Stop blanks the display. Further writes fail with ErrStopped.
func (d *Display) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	err := d.writeLocked(0)
	d.started = false
	applog.Infof("Sink: display stopped")
	return err
}

// SetIntensity writes one frame with the current colour.
func (d *Display) SetIntensity(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return ErrStopped
	}
	return d.writeLocked(clampUnit(v))
}

// SetColor sets the colour carried by subsequent frames.
func (d *Display) SetColor(c light.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.color = c
	d.hasColor = true
	return nil
}

func (d *Display) writeLocked(v float64) error {
	d.seq++
	frame := transport.Frame{
		Seq:       d.seq,
		Timestamp: nowNano(d.clock),
		Intensity: float32(v),
		R:         d.color.R,
		G:         d.color.G,
		B:         d.color.B,
		HasColor:  d.hasColor,
	}
	if err := d.transport.Send(frame); err != nil {
		return fmt.Errorf("sink: display write: %w", err)
	}
	return nil
}
