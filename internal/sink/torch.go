// SPDX-License-Identifier: MIT
package sink

import (
	"fmt"
	"math"
	"sync"
	"time"

	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/transport"
)

// Torch hardware only exposes a handful of strength levels and rejects
// writes while it is busy, so writes are quantised, deduplicated and retried.
const (
	TorchLevels      = 16
	torchMaxAttempts = 3
)

// Torch drives a torch-type actuator. It has no colour.
type Torch struct {
	mu        sync.Mutex // Serialises transport writes; Stop may race a tick.
	transport transport.Transport
	clock     func() time.Time
	started   bool
	seq       uint32
	level     int // Last level written, -1 when unknown.
}

var _ LightSink = (*Torch)(nil)

// NewTorch creates a torch sink.
func NewTorch(t transport.Transport) *Torch {
	return &Torch{transport: t, level: -1}
}

// Kind implements LightSink.
func (t *Torch) Kind() light.SinkKind { return light.SinkTorch }

// Start switches the torch on at level zero.
func (t *Torch) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	t.started = true
	t.level = -1
	applog.Infof("Sink: torch started (%d levels)", TorchLevels)
	return t.writeLocked(0)
}

// Stop turns the torch off. Further writes fail with ErrStopped.
func (t *Torch) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	err := t.writeLocked(0)
	t.started = false
	applog.Infof("Sink: torch stopped")
	return err
}

// SetIntensity quantises v and writes it if the level changed.
func (t *Torch) SetIntensity(v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return ErrStopped
	}
	level := Quantize(v)
	if level == t.level {
		return nil
	}
	return t.writeLocked(level)
}

// SetColor is a no-op; torches are white only.
func (t *Torch) SetColor(light.Color) error { return nil }

func (t *Torch) writeLocked(level int) error {
	t.seq++
	frame := transport.Frame{
		Seq:       t.seq,
		Timestamp: nowNano(t.clock),
		Intensity: float32(level) / float32(TorchLevels-1),
		Torch:     true,
	}

	var err error
	for attempt := 1; attempt <= torchMaxAttempts; attempt++ {
		if err = t.transport.Send(frame); err == nil {
			t.level = level
			return nil
		}
		applog.Debugf("Sink: torch write attempt %d failed: %v", attempt, err)
	}
	t.level = -1
	return fmt.Errorf("sink: torch write failed after %d attempts: %w", torchMaxAttempts, err)
}

// Quantize maps an intensity in [0,1] to a torch level.
func Quantize(v float64) int {
	return int(math.Round(clampUnit(v) * (TorchLevels - 1)))
}
