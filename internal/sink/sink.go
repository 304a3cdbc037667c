// SPDX-License-Identifier: MIT
//
// Package sink adapts computed light values to an output device. The
// scheduler only ever talks to LightSink; device quirks such as level
// quantisation, retries and locking stay inside each variant.
package sink

import (
	"errors"
	"fmt"
	"time"

	"entrain/internal/light"
	"entrain/internal/transport"
)

// ErrStopped is returned when a sink is written to outside Start/Stop.
var ErrStopped = errors.New("sink: not started")

// LightSink is the capability every output device provides.
type LightSink interface {
	Kind() light.SinkKind
	Start() error
	Stop() error
	SetIntensity(v float64) error
	SetColor(c light.Color) error
}

// New creates the sink variant for kind on top of a transport.
func New(kind light.SinkKind, t transport.Transport) (LightSink, error) {
	if t == nil {
		return nil, fmt.Errorf("sink: transport cannot be nil")
	}
	switch kind {
	case light.SinkTorch:
		return NewTorch(t), nil
	case light.SinkDisplay:
		return NewDisplay(t), nil
	default:
		return nil, fmt.Errorf("sink: unsupported kind %v", kind)
	}
}

func clampUnit(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nowNano(clock func() time.Time) int64 {
	if clock == nil {
		return time.Now().UnixNano()
	}
	return clock().UnixNano()
}
