// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	applog "entrain/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recordingBitDepth matches the int32 capture buffers.
const recordingBitDepth = 32

// ErrAlreadyRecording is returned by StartRecording during a recording.
var ErrAlreadyRecording = errors.New("capture: already recording")

// recorder copies raw capture buffers into a WAV file. The capture callback
// writes while the control goroutine may stop the recording; mu orders the
// two, and active lets the callback skip the lock when idle.
type recorder struct {
	mu       sync.Mutex
	active   atomic.Bool
	name     string
	file     *os.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer // Reused for every buffer.
	channels int
	frames   int64
	failed   bool // A write error was logged; later ones are dropped.
}

func (r *recorder) start(name string, sampleRate, channels, framesPerBuffer int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active.Load() {
		return ErrAlreadyRecording
	}

	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	r.name, r.file, r.channels = name, file, channels
	r.enc = wav.NewEncoder(file, sampleRate, recordingBitDepth, channels, 1)
	r.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, 0, framesPerBuffer*channels),
		SourceBitDepth: recordingBitDepth,
	}
	r.frames, r.failed = 0, false
	r.active.Store(true)
	return nil
}

// write appends one interleaved buffer. It never blocks on anything but a
// concurrent stop.
func (r *recorder) write(buffer []int32) {
	if !r.active.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}

	data := r.buf.Data[:0]
	for _, sample := range buffer {
		data = append(data, int(sample))
	}
	r.buf.Data = data

	if err := r.enc.Write(r.buf); err != nil {
		if !r.failed {
			applog.Errorf("Capture: writing %s: %v", r.name, err)
			r.failed = true
		}
		return
	}
	r.frames += int64(len(buffer) / r.channels)
}

// stop finalises the header and closes the file. It reports the frames
// written and whether a recording was active.
func (r *recorder) stop() (frames int64, name string, err error) {
	if !r.active.Load() {
		return 0, "", nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return 0, "", nil
	}
	r.active.Store(false)

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	frames, name = r.frames, r.name
	r.enc, r.file = nil, nil

	if encErr != nil {
		return frames, name, fmt.Errorf("failed to finalise recording: %w", encErr)
	}
	return frames, name, fileErr
}

// StartRecording writes the raw capture input, before the noise gate and
// downmix, to a WAV file until StopRecording. A recorded session can be
// replayed with the play command.
func (e *Engine) StartRecording(filename string) error {
	if err := e.rec.start(filename, int(e.config.SampleRate), e.channels, e.config.FramesPerBuffer); err != nil {
		return err
	}
	applog.Infof("Capture: recording to %s", filename)
	return nil
}

// Recording reports whether a recording is active.
func (e *Engine) Recording() bool {
	return e.rec.active.Load()
}

// StopRecording finalises the WAV file. It is a no-op when not recording.
func (e *Engine) StopRecording() error {
	frames, name, err := e.rec.stop()
	if err != nil {
		return err
	}
	if name != "" {
		applog.Infof("Capture: saved %s (%.1fs)", name, float64(frames)/e.config.SampleRate)
	}
	return nil
}
