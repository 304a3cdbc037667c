// SPDX-License-Identifier: MIT
package transport

// Frame is one light-output sample as it leaves the engine. A frame is
// produced once per playback tick by a sink and handed to a Transport.
type Frame struct {
	Seq       uint32  `json:"seq"`        // Monotonically increasing per transport user.
	Timestamp int64   `json:"ts"`         // Nanoseconds since epoch.
	Intensity float32 `json:"intensity"`  // Output level in [0,1].
	R         uint8   `json:"r"`          // Colour, valid only when HasColor is set.
	G         uint8   `json:"g"`
	B         uint8   `json:"b"`
	HasColor  bool    `json:"has_color"`
	Torch     bool    `json:"torch"` // Originating sink is a torch-type actuator.
}

// Transport delivers frames to the physical or virtual light. Send is called
// from the tick goroutine, so implementations must not block.
type Transport interface {
	Send(frame Frame) error
	Close() error
}
