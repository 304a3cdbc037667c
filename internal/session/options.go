// SPDX-License-Identifier: MIT
package session

import (
	"fmt"

	"entrain/internal/analysis"
	"entrain/internal/config"
	"entrain/internal/light"
	"entrain/internal/playback"
)

// DetectorOptions builds onset detector settings from configuration.
func DetectorOptions(cfg config.AnalysisConfig, streaming bool) (analysis.DetectorOptions, error) {
	w, err := analysis.ParseWindowFunc(cfg.Window)
	if err != nil {
		return analysis.DetectorOptions{}, fmt.Errorf("session: %w", err)
	}
	opts := analysis.DetectorOptions{
		FrameSize:   cfg.FrameSize,
		HopSize:     cfg.HopSize,
		Window:      w,
		ThresholdK:  cfg.ThresholdK,
		MinInterval: cfg.MinBeatInterval,
		HistorySize: cfg.StreamingWindow,
	}
	if streaming {
		opts.MinInterval = cfg.StreamingMinInterval
	}
	return opts, nil
}

// Limits converts the safety section.
func Limits(cfg config.SafetyConfig) light.SafetyLimits {
	return light.SafetyLimits{
		MinFrequency:   cfg.MinFrequency,
		MaxFrequency:   cfg.MaxFrequency,
		CautionLow:     cfg.CautionLow,
		CautionHigh:    cfg.CautionHigh,
		TorchCeiling:   cfg.TorchCeiling,
		DisplayCeiling: cfg.DisplayCeiling,
		MaxIntensity:   cfg.MaxIntensity,
	}
}

// TrackerOptions converts the cinematic section.
func TrackerOptions(cfg config.CinematicConfig) analysis.TrackerOptions {
	return analysis.TrackerOptionsFrom(cfg.SmoothingSize, cfg.HistorySize, cfg.HistoryInterval, cfg.Exponent,
		cfg.CalibrationWindow, cfg.PulseDuration, cfg.Cooldown)
}

// playerOptions assembles the player for one session. Audio-reactive modes
// get an energy tracker fed from energy.
func playerOptions(cfg *config.Config, mode light.ModeConfig, o Options, energy analysis.EnergySource, clock playback.AudioClock) playback.PlayerOptions {
	opts := playback.PlayerOptions{
		Interval: cfg.Playback.TickInterval,
		Limits:   Limits(cfg.Safety),
		Governor: o.Governor,
		Scheduler: playback.SchedulerOptions{
			LatencyOffset:   cfg.Playback.LatencyOffset,
			AudioClock:      clock,
			AudioStableTime: cfg.Playback.AudioStableTime,
		},
		Metrics: o.Metrics,
	}
	if mode.AudioReactive && energy != nil {
		opts.Energy = energy
		opts.Tracker = analysis.NewEnergyTracker(TrackerOptions(cfg.Cinematic))
	}
	return opts
}
