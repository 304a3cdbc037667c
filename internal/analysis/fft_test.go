// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"entrain/pkg/utils"
)

const (
	testFFTSize    = 2048
	testSampleRate = 44100
)

func TestNewFFTProcessorValidation(t *testing.T) {
	if _, err := NewFFTProcessor(2000, testSampleRate, Hann); err == nil {
		t.Error("expected error for non power-of-two size")
	}
	if _, err := NewFFTProcessor(testFFTSize, 0, Hann); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestMagnitudesPeakAtToneFrequency(t *testing.T) {
	p, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatalf("NewFFTProcessor: %v", err)
	}

	frame := utils.GenerateSineWave(testFFTSize, testSampleRate, 1000, 0.8)
	mags := p.Magnitudes(frame)
	if len(mags) != testFFTSize/2+1 {
		t.Fatalf("len(mags) = %d, want %d", len(mags), testFFTSize/2+1)
	}

	peak := utils.FindPeakBin(mags, 0, len(mags)-1)
	binWidth := float64(testSampleRate) / testFFTSize
	if got := p.FrequencyForBin(peak); math.Abs(got-1000) > binWidth {
		t.Errorf("peak at %.1f Hz, want 1000 ± %.1f", got, binWidth)
	}
}

func TestMagnitudesTreatsNonFiniteAsSilence(t *testing.T) {
	p, _ := NewFFTProcessor(256, testSampleRate, Hann)
	frame := make([]float64, 256)
	for i := range frame {
		frame[i] = math.NaN()
	}
	frame[10] = math.Inf(1)

	for i, m := range p.Magnitudes(frame) {
		if m != 0 {
			t.Fatalf("bin %d = %v, want 0", i, m)
		}
	}
}

func TestMagnitudesZeroPadsShortFrames(t *testing.T) {
	p, _ := NewFFTProcessor(256, testSampleRate, Hann)
	mags := p.Magnitudes([]float64{1, 1, 1})
	if len(mags) != 129 {
		t.Fatalf("len(mags) = %d", len(mags))
	}
}

func TestMagnitudesHotPath(t *testing.T) {
	p, _ := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	frame := utils.GenerateComplexWave(testFFTSize, testSampleRate)

	p.Magnitudes(frame)
	allocs := testing.AllocsPerRun(100, func() {
		p.Magnitudes(frame)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Magnitudes hot path, got %.1f", allocs)
	}
}

func TestFrequencyForBinBounds(t *testing.T) {
	p, _ := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if p.FrequencyForBin(-1) != 0 || p.FrequencyForBin(testFFTSize) != 0 {
		t.Error("out-of-range bins should map to 0 Hz")
	}
	if got := p.FrequencyForBin(testFFTSize / 2); math.Abs(got-testSampleRate/2) > 1e-9 {
		t.Errorf("Nyquist bin = %f", got)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"nuttall", Nuttall, false},
		{"boxcar", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.name, got, err)
			}
		})
	}
}

func BenchmarkMagnitudes(b *testing.B) {
	p, _ := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	frame := utils.GenerateComplexWave(testFFTSize, testSampleRate)
	b.ReportAllocs()
	for b.Loop() {
		p.Magnitudes(frame)
	}
}
