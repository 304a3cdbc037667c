// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"entrain/internal/analysis"
	applog "entrain/internal/log"

	"github.com/go-audio/wav"
)

// ErrUnsupportedWAV is returned for files that are not integer PCM WAV.
var ErrUnsupportedWAV = errors.New("audio: unsupported WAV file")

const wavFormatPCM = 1

// LoadWAV decodes the WAV file at path into a mono sample stream.
func LoadWAV(path string) (analysis.SampleStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return analysis.SampleStream{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	stream, err := DecodeWAV(f)
	if err != nil {
		return analysis.SampleStream{}, fmt.Errorf("%s: %w", path, err)
	}
	applog.Infof("Audio: loaded %s (%.1fs at %.0f Hz)", path, stream.Duration(), stream.SampleRate)
	return stream, nil
}

// DecodeWAV reads integer PCM WAV data, averages channels to mono and
// scales samples to [-1,1].
func DecodeWAV(r io.ReadSeeker) (analysis.SampleStream, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return analysis.SampleStream{}, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedWAV)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return analysis.SampleStream{}, fmt.Errorf("%w: audio format %d, want PCM", ErrUnsupportedWAV, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return analysis.SampleStream{}, fmt.Errorf("failed to decode PCM data: %w", err)
	}

	channels := int(d.NumChans)
	bitDepth := int(d.BitDepth)
	if channels <= 0 || bitDepth <= 0 || bitDepth > 32 {
		return analysis.SampleStream{}, fmt.Errorf("%w: %d channels, %d bits", ErrUnsupportedWAV, channels, bitDepth)
	}

	// 8-bit WAV is unsigned; wider depths are signed.
	var offset float64
	scale := math.Exp2(float64(bitDepth - 1))
	if bitDepth == 8 {
		offset = 128
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range samples {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		samples[i] = sum / float64(channels) / scale
	}

	return analysis.SampleStream{Samples: samples, SampleRate: float64(d.SampleRate)}, nil
}
