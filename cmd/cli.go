// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"entrain/internal/analysis"
	"entrain/internal/audio"
	"entrain/internal/config"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/session"
	"entrain/internal/tui"
	"entrain/pkg/build"

	"github.com/spf13/cobra"
)

// options collects the flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	tui        bool
	mode       string
	sink       string
	duration   time.Duration
	record     string
	pickDevice bool

	cfg *config.Config
}

// Execute runs the command line. SIGINT and SIGTERM cancel the running
// session.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetInfo()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "f", "",
		"Path to a YAML configuration file (default ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&opts.tui, "tui", "t", false,
		"Use the terminal interface (session monitor, device picker)")

	rootCmd.AddCommand(
		newAnalyzeCommand(opts),
		newPlayCommand(opts),
		newLiveCommand(opts),
		newModesCommand(),
		newDevicesCommand(opts),
	)
	return rootCmd
}

// load reads the configuration and applies logging settings.
func (o *options) load() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level '%s'", cfg.LogLevel)
	}
	applog.Configure(os.Stderr, cfg.LogFormat)
	applog.SetLevel(level)
	o.cfg = cfg
	return nil
}

// sinkKind resolves --sink against the configured sink.
func (o *options) sinkKind() (light.SinkKind, error) {
	name := o.cfg.Playback.Sink
	if o.sink != "" {
		name = o.sink
	}
	return light.ParseSinkKind(name)
}

func addModeFlags(cmd *cobra.Command, opts *options, defaultMode string) {
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", defaultMode,
		"Stimulation mode. Use 'modes' command to see available modes.")
	cmd.Flags().StringVarP(&opts.sink, "sink", "s", "",
		"Output sink, torch or display (default from config)")
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Detect beats in a WAV file and show the resulting light script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := light.LookupMode(opts.mode)
			if err != nil {
				return err
			}
			kind, err := opts.sinkKind()
			if err != nil {
				return err
			}
			stream, err := audio.LoadWAV(args[0])
			if err != nil {
				return err
			}
			detector, err := session.DetectorOptions(opts.cfg.Analysis, false)
			if err != nil {
				return err
			}

			a, err := session.Analyze(cmd.Context(), stream, session.AnalyzeOptions{
				Detector:    detector,
				MaxDuration: opts.cfg.Analysis.MaxDuration,
			})
			if err != nil {
				return err
			}
			if !a.Usable() {
				return fmt.Errorf("analysis of %s was cancelled", args[0])
			}

			gen := light.NewGenerator(session.Limits(opts.cfg.Safety), kind)
			script, err := session.BuildScript(a, mode, gen)
			if err != nil {
				return err
			}
			printAnalysis(cmd.OutOrStdout(), args[0], a, script)
			return nil
		},
	}
	addModeFlags(cmd, opts, "alpha")
	return cmd
}

func printAnalysis(w io.Writer, name string, a *session.Analysis, s *light.LightScript) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", name)
	fmt.Fprintf(tw, "Duration:\t%.2fs\n", a.Duration)
	fmt.Fprintf(tw, "Outcome:\t%v\n", a.Outcome)
	fmt.Fprintf(tw, "Beats:\t%d\n", len(a.Beats))
	fmt.Fprintf(tw, "Tempo:\t%.1f BPM\n", a.BPM)
	fmt.Fprintf(tw, "Analysis time:\t%s\n", a.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "Mode:\t%s (%v)\n", s.Mode, s.Kind)
	fmt.Fprintf(tw, "Frequency:\t%.2f Hz (x%d)\n", s.Frequency, s.Mapping.Multiplier)
	fmt.Fprintf(tw, "Events:\t%d over %.2fs\n", len(s.Events), s.Duration)
	if s.Synthetic {
		fmt.Fprintf(tw, "Beats source:\tsynthetic %.0f BPM grid\n", s.BPM)
	}
	tw.Flush()
	if s.Caution {
		fmt.Fprintln(w, "\nCaution: this frequency range can trigger photosensitive reactions.")
	}
}

func newPlayCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [file.wav]",
		Short: "Play a light session synchronised to a WAV file, or a journey",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := light.LookupMode(opts.mode)
			if err != nil {
				return err
			}
			if mode.Kind != light.Journey && len(args) == 0 {
				return fmt.Errorf("mode %s needs a WAV file", mode.Name)
			}

			var stream analysis.SampleStream
			if len(args) == 1 {
				if stream, err = audio.LoadWAV(args[0]); err != nil {
					return err
				}
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.sessionOptions(mode)
			if err != nil {
				return err
			}
			res, err := a.run(cmd.Context(), mode.Label, o, func(ctx context.Context, o session.Options) (*session.Result, error) {
				return session.RunFile(ctx, stream, o)
			})
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addModeFlags(cmd, opts, "alpha")
	return cmd
}

func newLiveCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Follow live audio from an input device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := light.LookupMode(opts.mode)
			if err != nil {
				return err
			}

			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if opts.pickDevice {
				choice, ok, err := tui.PickDevice()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				opts.cfg.Audio.InputDevice = choice.Device.ID
				opts.cfg.Audio.SampleRate = choice.SampleRate
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			detector, err := session.DetectorOptions(opts.cfg.Analysis, true)
			if err != nil {
				return err
			}
			engine, err := audio.NewEngine(opts.cfg.Audio, detector, &analysis.LiveFeed{}, a.metrics)
			if err != nil {
				return err
			}
			if opts.record != "" {
				if err := engine.StartRecording(opts.record); err != nil {
					return err
				}
				defer fmt.Fprintf(cmd.OutOrStdout(), "Recording saved to: %s\n", opts.record)
			}

			o, err := a.sessionOptions(mode)
			if err != nil {
				return err
			}
			res, err := a.run(cmd.Context(), mode.Label+" (live)", o, func(ctx context.Context, o session.Options) (*session.Result, error) {
				return session.RunLive(ctx, engine, opts.duration, o)
			})
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	addModeFlags(cmd, opts, "alpha")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0,
		"Session length (default from config)")
	cmd.Flags().StringVarP(&opts.record, "record", "r", "",
		"Also record the captured audio to this WAV file")
	cmd.Flags().BoolVar(&opts.pickDevice, "pick-device", false,
		"Choose the input device interactively")
	return cmd
}

func printResult(w io.Writer, res *session.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Session %s: %v", res.ID, res.State)
	if res.Script != nil {
		fmt.Fprintf(w, " (%s, %.2f Hz)", res.Script.Mode, res.Script.Frequency)
	}
	fmt.Fprintln(w)
}

func newModesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List stimulation modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printModes(cmd.OutOrStdout(), light.Modes())
			return nil
		},
	}
}

func printModes(w io.Writer, modes []light.ModeConfig) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tBAND\tLABEL")
	for _, m := range modes {
		band := fmt.Sprintf("%g-%g Hz", m.BandLow, m.BandHigh)
		if m.Kind == light.Journey {
			band = fmt.Sprintf("%.0f min", m.Duration()/60)
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s %s\n", m.Name, m.Kind, band, m.Icon, m.Label)
	}
	tw.Flush()
}

func newDevicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if !opts.tui {
				return audio.ListDevices(cmd.OutOrStdout())
			}
			choice, ok, err := tui.PickDevice()
			if err != nil || !ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "audio:\n  input_device: %d\n  sample_rate: %.0f\n",
				choice.Device.ID, choice.SampleRate)
			return nil
		},
	}
}
