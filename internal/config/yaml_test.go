// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.FrameSize != 2048 || cfg.Analysis.HopSize != 512 {
		t.Errorf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeTempConfig(t, `
playback:
  sink: torch
  latency_offset: 0.12
  tick_interval: 1ms
safety:
  torch_ceiling: 15
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Playback.Sink != "torch" || cfg.Playback.LatencyOffset != 0.12 {
		t.Errorf("playback not loaded: %+v", cfg.Playback)
	}
	if cfg.Playback.TickInterval != time.Millisecond {
		t.Errorf("tick interval = %s, want 1ms", cfg.Playback.TickInterval)
	}
	if cfg.Safety.TorchCeiling != 15 || cfg.Safety.MaxFrequency != 60 {
		t.Errorf("safety merge wrong: %+v", cfg.Safety)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV_LATENCY_OFFSET", "0.2")
	t.Setenv("ENV_SINK", "torch")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Playback.LatencyOffset != 0.2 || cfg.Playback.Sink != "torch" {
		t.Errorf("env overrides not applied: %+v", cfg.Playback)
	}
}

func TestLoadConfig_BadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV_TICK_INTERVAL", "soon")
	if _, err := LoadConfig(""); err == nil {
		t.Error("expected error for unparsable ENV_TICK_INTERVAL")
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ENV_LOG_FORMAT=json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ENV_LOG_FORMAT") })

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json from .env", cfg.LogFormat)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"frame not pow2", func(c *Config) { c.Analysis.FrameSize = 2000 }, "power of 2"},
		{"hop too large", func(c *Config) { c.Analysis.HopSize = 4096 }, "hop_size"},
		{"max above 60", func(c *Config) { c.Safety.MaxFrequency = 80 }, "frequency bounds"},
		{"min below 1", func(c *Config) { c.Safety.MinFrequency = 0.5 }, "frequency bounds"},
		{"caution inverted", func(c *Config) { c.Safety.CautionLow = 40 }, "caution_low"},
		{"intensity zero", func(c *Config) { c.Safety.MaxIntensity = 0 }, "max_intensity"},
		{"unknown sink", func(c *Config) { c.Playback.Sink = "laser" }, "playback.sink"},
		{"latency negative", func(c *Config) { c.Playback.LatencyOffset = -0.1 }, "latency_offset"},
		{"tick too slow", func(c *Config) { c.Playback.TickInterval = time.Second }, "tick_interval"},
		{"history too small", func(c *Config) { c.Cinematic.HistorySize = 2 }, "cinematic buffer"},
		{"negative history interval", func(c *Config) { c.Cinematic.HistoryInterval = -time.Second }, "history_interval"},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "serial" }, "transport.kind"},
		{"udp without port", func(c *Config) {
			c.Transport.Kind = "udp"
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"websocket without http", func(c *Config) { c.Transport.Kind = "websocket" }, "http_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
