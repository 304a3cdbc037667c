// SPDX-License-Identifier: MIT
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"entrain/internal/analysis"
	"entrain/internal/config"
	"entrain/internal/light"
	"entrain/internal/metrics"
	"entrain/internal/playback"
	"entrain/internal/sink"
	"entrain/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 44100

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Playback.TickInterval = time.Millisecond
	return cfg
}

func clickStream(seconds float64) analysis.SampleStream {
	return analysis.SampleStream{
		Samples:    utils.GenerateClickTrack(seconds, testSampleRate, 120, 0.25),
		SampleRate: testSampleRate,
	}
}

func testOptions(t *testing.T, modeName string) (Options, *utils.MockTransport) {
	t.Helper()
	mode, err := light.LookupMode(modeName)
	require.NoError(t, err)
	mt := &utils.MockTransport{}
	return Options{
		Config:  testConfig(),
		Mode:    mode,
		Sink:    sink.NewDisplay(mt),
		Metrics: metrics.New(),
	}, mt
}

func analyzeOptions(t *testing.T) AnalyzeOptions {
	t.Helper()
	cfg := testConfig()
	det, err := DetectorOptions(cfg.Analysis, false)
	require.NoError(t, err)
	return AnalyzeOptions{Detector: det, MaxDuration: cfg.Analysis.MaxDuration}
}

func TestAnalyzeClickTrack(t *testing.T) {
	a, err := Analyze(context.Background(), clickStream(10), analyzeOptions(t))
	require.NoError(t, err)

	assert.Equal(t, analysis.OutcomeComplete, a.Outcome)
	assert.True(t, a.Usable())
	assert.InDelta(t, 20, len(a.Beats), 2)
	assert.InDelta(t, 120, a.BPM, 1)
	assert.InDelta(t, 10, a.Duration, 1e-9)

	e, ok := a.Envelope.EnergyAt(0.255)
	require.True(t, ok)
	assert.Greater(t, e, 0.0, "envelope should see the click")
}

func TestAnalyzeTypedFailures(t *testing.T) {
	opts := analyzeOptions(t)
	opts.MaxDuration = 5

	tests := []struct {
		name   string
		stream analysis.SampleStream
		want   error
	}{
		{"empty", analysis.SampleStream{SampleRate: testSampleRate}, analysis.ErrEmptyInput},
		{"non-finite", analysis.SampleStream{Samples: []float64{math.NaN(), math.Inf(1)}, SampleRate: testSampleRate}, analysis.ErrNonFiniteInput},
		{"too long", clickStream(6), analysis.ErrInputTooLong},
		{"bad rate", analysis.SampleStream{Samples: []float64{0}}, analysis.ErrInvalidSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Analyze(context.Background(), tt.stream, opts)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := Analyze(ctx, clickStream(10), analyzeOptions(t))
	require.NoError(t, err, "cancellation is an outcome, not an error")
	assert.Equal(t, analysis.OutcomeCancelled, a.Outcome)
	assert.Nil(t, a.Beats)
	assert.False(t, a.Usable())

	mode, _ := light.LookupMode("alpha")
	_, err = BuildScript(a, mode, light.NewGenerator(light.DefaultSafetyLimits(), light.SinkDisplay))
	assert.Error(t, err)
}

func TestBuildScriptSilenceIsSynthetic(t *testing.T) {
	silence := analysis.SampleStream{Samples: make([]float64, testSampleRate*4), SampleRate: testSampleRate}
	a, err := Analyze(context.Background(), silence, analyzeOptions(t))
	require.NoError(t, err)
	assert.Empty(t, a.Beats)

	mode, _ := light.LookupMode("theta")
	script, err := BuildScript(a, mode, light.NewGenerator(light.DefaultSafetyLimits(), light.SinkDisplay))
	require.NoError(t, err)
	assert.True(t, script.Synthetic)
	assert.NoError(t, script.Check())
	assert.InDelta(t, 4, script.Duration, 0.5)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()

	live, err := DetectorOptions(cfg.Analysis, true)
	require.NoError(t, err)
	assert.Equal(t, cfg.Analysis.StreamingMinInterval, live.MinInterval)
	assert.Equal(t, analysis.Hann, live.Window)

	cfg.Analysis.Window = "triangle-ish"
	_, err = DetectorOptions(cfg.Analysis, false)
	assert.Error(t, err)

	assert.Equal(t, light.DefaultSafetyLimits(), Limits(cfg.Safety))
	assert.Equal(t, analysis.DefaultTrackerOptions(), TrackerOptions(cfg.Cinematic))
}

func TestRunFileCompletes(t *testing.T) {
	o, mt := testOptions(t, "alpha")
	var started atomic.Bool
	o.OnStart = func(id uuid.UUID, p *playback.Player) {
		assert.NotEqual(t, uuid.Nil, id)
		started.Store(true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := RunFile(ctx, clickStream(1), o)
	require.NoError(t, err)

	assert.Equal(t, playback.StateCompleted, res.State)
	require.NotNil(t, res.Analysis)
	require.NotNil(t, res.Script)
	assert.Equal(t, "alpha", res.Script.Mode)
	assert.True(t, started.Load())
	assert.NotEmpty(t, mt.Snapshot())
}

func TestRunFileCinematicUsesEnvelope(t *testing.T) {
	o, _ := testOptions(t, "cinematic")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := RunFile(ctx, clickStream(0.5), o)
	require.NoError(t, err)
	assert.Equal(t, playback.StateCompleted, res.State)
}

func TestRunFileCancelledAnalysis(t *testing.T) {
	o, mt := testOptions(t, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := RunFile(ctx, clickStream(5), o)
	require.NoError(t, err)
	assert.Equal(t, playback.StateCancelled, res.State)
	assert.Nil(t, res.Script)
	assert.Empty(t, mt.Snapshot(), "nothing is played after a cancelled analysis")
}

func TestRunFileJourneyCancelled(t *testing.T) {
	o, _ := testOptions(t, "journey-drift")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := RunFile(ctx, analysis.SampleStream{}, o)
	require.NoError(t, err)
	assert.Nil(t, res.Analysis, "journeys skip analysis")
	assert.Equal(t, playback.StateCancelled, res.State)
}

func TestRunFileValidation(t *testing.T) {
	o, _ := testOptions(t, "alpha")
	o.Sink = nil
	_, err := RunFile(context.Background(), clickStream(1), o)
	assert.Error(t, err)

	o, _ = testOptions(t, "alpha")
	o.Mode.BaseIntensity = 0
	_, err = RunFile(context.Background(), clickStream(1), o)
	assert.ErrorIs(t, err, light.ErrInvalidMode)
}

func TestRegenerator(t *testing.T) {
	mode, _ := light.LookupMode("alpha")
	m := metrics.New()
	r := newRegenerator(light.NewGenerator(light.DefaultSafetyLimits(), light.SinkDisplay), mode, 60, 4, m)

	beats := analysis.UniformBeats(4, 120)
	script, err := r.next(&analysis.LiveSnapshot{Version: 1, Beats: beats[:2]})
	require.NoError(t, err)
	assert.Nil(t, script, "two beats are not enough")

	script, err = r.next(&analysis.LiveSnapshot{Version: 2, Beats: beats[:4]})
	require.NoError(t, err)
	require.NotNil(t, script)
	assert.False(t, script.Synthetic)
	assert.InDelta(t, 120, script.BPM, 1)
	assert.InDelta(t, 60, script.Duration, 1e-9)

	script, _ = r.next(&analysis.LiveSnapshot{Version: 2, Beats: beats[:4]})
	assert.Nil(t, script, "same version")
	script, _ = r.next(&analysis.LiveSnapshot{Version: 3, Beats: beats[:6]})
	assert.Nil(t, script, "only two new beats")
	script, _ = r.next(&analysis.LiveSnapshot{Version: 4, Beats: beats})
	assert.NotNil(t, script)
}

func TestRegeneratorPulsedContinuesPastLastBeat(t *testing.T) {
	mode, err := light.LookupMode("gamma")
	require.NoError(t, err)
	r := newRegenerator(light.NewGenerator(light.DefaultSafetyLimits(), light.SinkDisplay), mode, 60, 4, nil)

	detected := analysis.UniformBeats(5, 120) // 0, 0.5, ... 4.5
	script, err := r.next(&analysis.LiveSnapshot{Version: 1, Beats: detected})
	require.NoError(t, err)
	require.NotNil(t, script)
	require.NoError(t, script.Check())
	assert.Len(t, detected, 10, "snapshot beats are not modified")

	last := script.Events[len(script.Events)-1]
	assert.Greater(t, last.End(), 59.0)

	s := playback.NewScheduler(playback.SchedulerOptions{})
	s.Start(script, 0)
	lit := 0
	for now := 4.56; now < 60; now += 0.004 {
		if res := s.Poll(now); res.Event != nil {
			lit++
		}
	}
	// One-period pulses on every 0.5 s beat keep lighting ticks to the end.
	assert.Greater(t, lit, 200)
}

// fakeCapture reports wall time as its audio position.
type fakeCapture struct {
	feed  analysis.LiveFeed
	mu    sync.Mutex
	start time.Time
	open  bool
	err   error

	closed atomic.Bool
}

func (c *fakeCapture) Feed() *analysis.LiveFeed { return &c.feed }

func (c *fakeCapture) Position() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, false
	}
	return time.Since(c.start).Seconds(), true
}

func (c *fakeCapture) StartInputStream() error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.open = true
	return nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.closed.Store(true)
	return nil
}

func TestRunLiveSwapsScript(t *testing.T) {
	o, mt := testOptions(t, "alpha")
	capture := &fakeCapture{}
	capture.feed.Publish(&analysis.LiveSnapshot{Version: 1, Beats: analysis.UniformBeats(4, 120), Energy: 0.2})

	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	res, err := RunLive(ctx, capture, 10*time.Second, o)
	require.NoError(t, err)

	assert.Equal(t, playback.StateCancelled, res.State)
	require.NotNil(t, res.Script)
	assert.False(t, res.Script.Synthetic, "the live script replaces the synthetic grid")
	assert.True(t, capture.closed.Load())
	assert.NotEmpty(t, mt.Snapshot())
}

func TestRunLiveErrors(t *testing.T) {
	o, _ := testOptions(t, "journey-descent")
	_, err := RunLive(context.Background(), &fakeCapture{}, time.Second, o)
	assert.Error(t, err)

	o, _ = testOptions(t, "gamma")
	_, err = RunLive(context.Background(), &fakeCapture{err: errors.New("no microphone")}, time.Second, o)
	assert.ErrorContains(t, err, "no microphone")
}
