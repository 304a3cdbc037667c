// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"entrain/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`  // "debug", "info", "warn", "error".
	LogFormat string          `yaml:"log_format"` // "text" or "json".
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Safety    SafetyConfig    `yaml:"safety"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Cinematic CinematicConfig `yaml:"cinematic"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds live-capture settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Capture sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Capture callback size.
	InputChannels   int     `yaml:"input_channels"`    // Downmixed to mono before analysis.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak amplitude below which a buffer counts as silence.
}

// AnalysisConfig tunes onset detection.
type AnalysisConfig struct {
	FrameSize            int     `yaml:"frame_size"`             // FFT frame, power of 2.
	HopSize              int     `yaml:"hop_size"`               // Frame advance in samples.
	Window               string  `yaml:"window"`                 // FFT window name.
	ThresholdK           float64 `yaml:"threshold_k"`            // Adaptive threshold = mean + k*stddev.
	MinBeatInterval      float64 `yaml:"min_beat_interval"`      // Seconds, offline.
	StreamingMinInterval float64 `yaml:"streaming_min_interval"` // Seconds, live.
	StreamingWindow      int     `yaml:"streaming_window"`       // Flux values kept for the live threshold.
	MaxDuration          float64 `yaml:"max_duration"`           // Longest analysable input, seconds.
	RegenerateEvery      int     `yaml:"regenerate_every"`       // New live beats before the script is rebuilt.
}

// SafetyConfig holds the stimulation limits.
type SafetyConfig struct {
	MinFrequency   float64 `yaml:"min_frequency"`   // Absolute floor, Hz.
	MaxFrequency   float64 `yaml:"max_frequency"`   // Absolute ceiling, Hz.
	CautionLow     float64 `yaml:"caution_low"`     // Advisory zone start, Hz.
	CautionHigh    float64 `yaml:"caution_high"`    // Advisory zone end, Hz.
	TorchCeiling   float64 `yaml:"torch_ceiling"`   // Reliable ceiling for torch sinks, Hz.
	DisplayCeiling float64 `yaml:"display_ceiling"` // Reliable ceiling for display sinks, Hz.
	MaxIntensity   float64 `yaml:"max_intensity"`   // Maximum sustained intensity.
}

// PlaybackConfig holds scheduler and tick settings.
type PlaybackConfig struct {
	Sink            string        `yaml:"sink"`             // "torch" or "display".
	LatencyOffset   float64       `yaml:"latency_offset"`   // Output-device latency compensation, seconds.
	TickInterval    time.Duration `yaml:"tick_interval"`    // Period of the playback tick.
	AudioStableTime float64       `yaml:"audio_stable_time"` // Audio clock must advance steadily this long before it is trusted.
	LiveDuration    time.Duration `yaml:"live_duration"`    // Length of a live session script.
}

// CinematicConfig tunes the continuous audio-reactive mode.
type CinematicConfig struct {
	SmoothingSize     int           `yaml:"smoothing_size"`
	HistorySize       int           `yaml:"history_size"`
	HistoryInterval   time.Duration `yaml:"history_interval"` // Time covered by one history slot.
	Exponent          float64       `yaml:"exponent"`
	CalibrationWindow time.Duration `yaml:"calibration_window"`
	PulseDuration     time.Duration `yaml:"pulse_duration"`
	Cooldown          time.Duration `yaml:"cooldown"`
}

// TransportConfig selects where light frames go.
type TransportConfig struct {
	Kind             string `yaml:"kind"`               // "log", "udp" or "websocket".
	UDPTargetAddress string `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	HTTPAddress      string `yaml:"http_address"`       // Serves /ws and /metrics; empty disables.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Audio: AudioConfig{
			InputDevice:     -1,
			SampleRate:      44100,
			FramesPerBuffer: 512,
			InputChannels:   1,
			LowLatency:      true,
			GateThreshold:   0.001,
		},
		Analysis: AnalysisConfig{
			FrameSize:            2048,
			HopSize:              512,
			Window:               "Hann",
			ThresholdK:           0.3,
			MinBeatInterval:      0.15,
			StreamingMinInterval: 0.10,
			StreamingWindow:      50,
			MaxDuration:          30 * 60,
			RegenerateEvery:      4,
		},
		Safety: SafetyConfig{
			MinFrequency:   1,
			MaxFrequency:   60,
			CautionLow:     3,
			CautionHigh:    30,
			TorchCeiling:   20,
			DisplayCeiling: 60,
			MaxIntensity:   1.0,
		},
		Playback: PlaybackConfig{
			Sink:            "display",
			LatencyOffset:   0,
			TickInterval:    4 * time.Millisecond,
			AudioStableTime: 0.25,
			LiveDuration:    30 * time.Minute,
		},
		Cinematic: CinematicConfig{
			SmoothingSize:     6,
			HistorySize:       150,
			HistoryInterval:   100 * time.Millisecond,
			Exponent:          0.65,
			CalibrationWindow: 3 * time.Second,
			PulseDuration:     65 * time.Millisecond,
			Cooldown:          100 * time.Millisecond,
		},
		Transport: TransportConfig{
			Kind:             "log",
			UDPTargetAddress: "127.0.0.1:9090",
			HTTPAddress:      "",
		},
	}
}

// LoadConfig builds the configuration in layers: defaults, a .env file (if
// present), the YAML file at path (or ./config.yaml when path is empty and
// the file exists), then ENV_* overrides. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	a := c.Analysis
	if !bitint.IsPowerOfTwo(a.FrameSize) {
		return fmt.Errorf("analysis.frame_size must be a power of 2, got %d", a.FrameSize)
	}
	if a.HopSize <= 0 || a.HopSize > a.FrameSize {
		return fmt.Errorf("analysis.hop_size must be in (0, frame_size], got %d", a.HopSize)
	}
	if a.ThresholdK < 0 {
		return fmt.Errorf("analysis.threshold_k must be non-negative, got %g", a.ThresholdK)
	}
	if a.StreamingWindow < 3 {
		return fmt.Errorf("analysis.streaming_window must be at least 3, got %d", a.StreamingWindow)
	}
	if a.MaxDuration <= 0 {
		return fmt.Errorf("analysis.max_duration must be positive")
	}

	s := c.Safety
	if s.MinFrequency < 1 || s.MaxFrequency > 60 || s.MinFrequency >= s.MaxFrequency {
		return fmt.Errorf("safety frequency bounds must satisfy 1 <= min < max <= 60, got [%g, %g]", s.MinFrequency, s.MaxFrequency)
	}
	if s.CautionLow > s.CautionHigh {
		return fmt.Errorf("safety.caution_low %g exceeds caution_high %g", s.CautionLow, s.CautionHigh)
	}
	if s.TorchCeiling <= 0 || s.DisplayCeiling <= 0 {
		return fmt.Errorf("safety sink ceilings must be positive")
	}
	if s.MaxIntensity <= 0 || s.MaxIntensity > 1 {
		return fmt.Errorf("safety.max_intensity must be in (0, 1], got %g", s.MaxIntensity)
	}

	p := c.Playback
	if p.Sink != "torch" && p.Sink != "display" {
		return fmt.Errorf("playback.sink must be torch or display, got %q", p.Sink)
	}
	if p.LatencyOffset < 0 || p.LatencyOffset > 1 {
		return fmt.Errorf("playback.latency_offset must be in [0, 1] seconds, got %g", p.LatencyOffset)
	}
	if p.TickInterval < time.Millisecond || p.TickInterval > 100*time.Millisecond {
		return fmt.Errorf("playback.tick_interval must be in [1ms, 100ms], got %s", p.TickInterval)
	}

	cin := c.Cinematic
	if cin.SmoothingSize <= 0 || cin.HistorySize < cin.SmoothingSize {
		return fmt.Errorf("cinematic buffer sizes invalid: smoothing %d, history %d", cin.SmoothingSize, cin.HistorySize)
	}
	if cin.HistoryInterval < 0 || cin.HistoryInterval > 10*time.Second {
		return fmt.Errorf("cinematic.history_interval must be in [0, 10s], got %s", cin.HistoryInterval)
	}
	if cin.Exponent <= 0 {
		return fmt.Errorf("cinematic.exponent must be positive")
	}

	switch c.Transport.Kind {
	case "log", "udp", "websocket":
	default:
		return fmt.Errorf("transport.kind must be log, udp or websocket, got %q", c.Transport.Kind)
	}
	if c.Transport.Kind == "udp" && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
	}
	if c.Transport.Kind == "websocket" && c.Transport.HTTPAddress == "" {
		return fmt.Errorf("transport.http_address must be set for the websocket transport")
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
func (c *Config) applyEnvOverrides() error {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("ENV_LOG_FORMAT"); ok {
		c.LogFormat = val
	}
	if val, ok := os.LookupEnv("ENV_SINK"); ok {
		c.Playback.Sink = val
	}
	if val, ok := os.LookupEnv("ENV_LATENCY_OFFSET"); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("ENV_LATENCY_OFFSET: %w", err)
		}
		c.Playback.LatencyOffset = f
	}
	if val, ok := os.LookupEnv("ENV_TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("ENV_TICK_INTERVAL: %w", err)
		}
		c.Playback.TickInterval = d
	}
	if val, ok := os.LookupEnv("ENV_TRANSPORT"); ok {
		c.Transport.Kind = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_HTTP_ADDRESS"); ok {
		c.Transport.HTTPAddress = val
	}
	return nil
}
