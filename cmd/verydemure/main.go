// Package main provides the verydemure command, which generates a guided
// meditation audio file from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/verydemure/meditation-gateway/internal/config"
	"github.com/verydemure/meditation-gateway/internal/meditation"
	"github.com/verydemure/meditation-gateway/internal/observability"
	"github.com/verydemure/meditation-gateway/internal/speech"
	"github.com/verydemure/meditation-gateway/internal/ssml"
)

// Version is set at build time.
var Version = ""

type options struct {
	duration string
	voice    string
	engine   string
	output   string
	provider string
	model    string
	speed    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "verydemure",
		Short:         "Generate a guided meditation audio file",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return generate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.duration, "duration", "d", "10", "meditation length in minutes")
	flags.StringVarP(&opts.voice, "voice", "v", speech.VoiceMatthew.String(), fmt.Sprintf("voice, one of %v", speech.ValidVoices))
	flags.StringVarP(&opts.engine, "engine", "e", "neural", "Polly engine")
	flags.StringVarP(&opts.output, "output-location", "o", "", "directory for the audio file (default OUTPUT_DIR or ./output/)")
	flags.StringVarP(&opts.provider, "provider", "p", "", "script provider: bedrock or openai (default LLM_PROVIDER)")
	flags.StringVarP(&opts.model, "model", "m", "", "model id (default LLM_MODEL or the provider default)")
	rootCmd.PersistentFlags().StringVarP(&opts.speed, "speed", "s", "slow", "prosody rate, e.g. x-slow, slow, medium or 80%")

	rootCmd.AddCommand(newSSMLCmd(opts))
	return rootCmd
}

func newSSMLCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ssml [FILE|-]",
		Short: "Print the SSML document for a script without synthesizing it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("unable to open file: %w", err)
				}
				defer f.Close()
				in = f
			}

			script, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("unable to read script: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ssml.Document(ssml.ToSSML(string(script), opts.speed)))
			return err
		},
	}
}

// loadConfig reads the environment, applies the flag overrides and only then
// validates, so a flag can stand in for a missing or invalid variable.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Process()
	if err != nil {
		return nil, err
	}
	if opts.output != "" {
		cfg.OutputDir = opts.output
	}
	if opts.provider != "" {
		cfg.LLMProvider = opts.provider
	}
	if opts.model != "" {
		cfg.LLMModel = opts.model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func generate(ctx context.Context, out io.Writer, opts *options) error {
	synth, err := speech.NewSynthConfig(opts.engine, opts.voice, opts.speed, opts.duration)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	observability.InitLoggerTo(os.Stderr, cfg.LogLevel, true)
	logger := observability.WithComponent("cli")

	gen, err := meditation.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	// Provider and model come from cfg as the generator defaults
	res, err := gen.Generate(ctx, meditation.Request{Synth: synth},
		func(stage meditation.Stage) {
			logger.Info().Str("stage", string(stage)).Msg("Generating meditation")
		})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Warn().Msg("Gracefully shutting down.")
		}
		return err
	}

	logger.Info().
		Str("correlation_id", res.ID).
		Str("model", res.Model).
		Int("pause_primitives", res.PausePrimitives).
		Str("size", humanize.Bytes(uint64(len(res.Audio.Data)))).
		Msg("Meditation saved")

	_, err = fmt.Fprintln(out, res.Path)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
