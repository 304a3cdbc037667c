// SPDX-License-Identifier: MIT
package transport

import (
	applog "entrain/internal/log"
)

// LoggingTransport logs frames at debug level. Used for dry runs where no
// actuator is attached.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the frame. It never fails.
func (lt *LoggingTransport) Send(frame Frame) error {
	applog.Debugf("Transport: frame %d intensity=%.3f torch=%v", frame.Seq, frame.Intensity, frame.Torch)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("Transport: LoggingTransport closed")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
