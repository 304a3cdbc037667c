// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"math"
	"testing"

	"entrain/internal/transport"
)

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}
	for i := range 3 {
		if err := mt.Send(transport.Frame{Seq: uint32(i)}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	frames := mt.Snapshot()
	if len(frames) != 3 {
		t.Fatalf("recorded %d frames, want 3", len(frames))
	}
	frames[0].Seq = 99
	if mt.Frames[0].Seq == 99 {
		t.Error("Snapshot returned a reference instead of a copy")
	}
	last, ok := mt.Last()
	if !ok || last.Seq != 2 {
		t.Errorf("Last() = %+v, %v", last, ok)
	}

	mt.Err = errors.New("unplugged")
	if err := mt.Send(transport.Frame{}); err == nil {
		t.Error("expected configured error")
	}
	_ = mt.Close()
	if !mt.Closed {
		t.Error("Close did not mark transport closed")
	}
}

func TestGenerateClickTrack(t *testing.T) {
	const sr = 8000.0
	buf := GenerateClickTrack(2, sr, 120, 0.25)
	if len(buf) != 16000 {
		t.Fatalf("len = %d, want 16000", len(buf))
	}

	times := ClickTimes(2, 120, 0.25)
	if len(times) != 4 {
		t.Fatalf("ClickTimes = %v, want 4 clicks", times)
	}
	for _, tm := range times {
		seg := buf[int(tm*sr) : int((tm+ClickDuration)*sr)]
		var peak float64
		for _, v := range seg {
			peak = math.Max(peak, math.Abs(v))
		}
		if peak < 0.1 {
			t.Errorf("click at %.2fs has peak %.3f", tm, peak)
		}
	}
	if buf[int(0.1*sr)] != 0 {
		t.Error("expected silence before the first click")
	}
}

func TestGenerateSineWave(t *testing.T) {
	buf := GenerateSineWave(8000, 8000, 100, 0.5)
	crossings := 0
	for i := 1; i < len(buf); i++ {
		if (buf[i-1] < 0) != (buf[i] < 0) {
			crossings++
		}
	}
	if crossings < 190 || crossings > 210 {
		t.Errorf("zero crossings = %d, want ~200", crossings)
	}
	for _, v := range buf {
		if math.Abs(v) > 0.5+1e-9 {
			t.Fatalf("amplitude %.3f exceeds 0.5", v)
		}
	}
}

func TestFindPeakBin(t *testing.T) {
	mags := []float64{0, 1, 5, 2, 7, 1}
	tests := []struct {
		name       string
		start, end int
		want       int
	}{
		{"Full Range", 0, 5, 4},
		{"Partial", 0, 3, 2},
		{"Negative Start", -4, 3, 2},
		{"Out of Range End", 3, 100, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(mags, tt.start, tt.end); got != tt.want {
				t.Errorf("FindPeakBin = %d, want %d", got, tt.want)
			}
		})
	}
	if FindPeakBin(nil, 0, 10) != 0 {
		t.Error("empty slice should return 0")
	}
}
