package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/resoundio/resound/internal/output"
	"github.com/resoundio/resound/internal/player"
	"github.com/resoundio/resound/internal/source"
	"github.com/resoundio/resound/internal/tracking"
)

// newPlayCommand creates the play subcommand
func newPlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [file]",
		Short: "Play an audio file, a generated tone, or raw PCM from stdin",
		Long: `Play decodes the given audio file (wav, mp3, aiff, flac) and streams
it to an output backend. With --tone a sine wave is generated instead,
and with --format raw PCM is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPlayE,
	}

	cmd.Flags().String("backend", "", "output backend name (empty = auto-select)")
	cmd.Flags().String("device", "", "device name (empty = system default)")
	cmd.Flags().Int("rate", 0, "requested sample rate in Hz")
	cmd.Flags().Float64("volume", 1.0, "playback volume (0.0 to 1.0)")
	cmd.Flags().Bool("tone", false, "play a generated sine tone")
	cmd.Flags().Float64("freq", 440, "tone frequency in Hz")
	cmd.Flags().Duration("duration", 2*time.Second, "tone duration")
	cmd.Flags().String("format", "", "raw PCM stdin format (s16le)")

	return cmd
}

func runPlayE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := cli.loadAndValidateConfig(cmd)
	if err != nil {
		return err
	}

	// Play flag overrides
	if cmd.Flags().Changed("backend") {
		cfg.Backend, _ = cmd.Flags().GetString("backend")
	}
	if cmd.Flags().Changed("device") {
		cfg.Device, _ = cmd.Flags().GetString("device")
	}
	if cmd.Flags().Changed("rate") {
		rate, _ := cmd.Flags().GetInt("rate")
		if rate <= 0 {
			cmd.PrintErrf("Error: rate must be positive, got %d\n", rate)
			return fmt.Errorf("rate must be positive, got %d", rate)
		}
		cfg.Rate = rate
	}
	if cmd.Flags().Changed("volume") {
		volume, _ := cmd.Flags().GetFloat64("volume")
		if volume < 0.0 || volume > 1.0 {
			cmd.PrintErrf("Error: volume must be between 0.0 and 1.0, got %f\n", volume)
			return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
		}
		cfg.Volume = volume
	}

	tone, _ := cmd.Flags().GetBool("tone")
	formatFlag, _ := cmd.Flags().GetString("format")
	fromStdin := formatFlag != "" || (len(args) == 1 && args[0] == "-")

	// Resolve the source. File sources decode first because the clip
	// dictates the rate to request; tone and stdin sources are built
	// after the device grants a rate.
	var (
		src        source.Source
		sourceName string
	)
	requested := cfg.Rate

	switch {
	case tone:
		freq, _ := cmd.Flags().GetFloat64("freq")
		sourceName = fmt.Sprintf("tone %gHz", freq)

	case fromStdin:
		if formatFlag == "" {
			formatFlag = "s16le"
		}
		if formatFlag != "s16le" {
			return fmt.Errorf("unsupported stdin format %q, only s16le is supported", formatFlag)
		}
		sourceName = "stdin"

	case len(args) == 1:
		s, err := source.NewDefaultRegistry().Open(afero.NewOsFs(), args[0])
		if err != nil {
			cmd.PrintErrf("Error: cannot open %s: %v\n", args[0], err)
			return fmt.Errorf("cannot open %s: %w", args[0], err)
		}
		src = s
		requested = s.Rate()
		sourceName = args[0]

	default:
		return fmt.Errorf("nothing to play: give a file, --tone, or --format for stdin")
	}

	// Select and configure the backend
	descriptor, err := output.Select(cfg.Backend, cfg.BackendOrder)
	if err != nil {
		if src != nil {
			src.Close()
		}
		cmd.PrintErrf("Error: %v\n", err)
		return err
	}

	backend := descriptor.New()

	if cfg.PollIntervalMs > 0 {
		if tuner, ok := backend.(output.PollTuner); ok {
			tuner.SetPollInterval(time.Duration(cfg.PollIntervalMs) * time.Millisecond)
		}
	}
	if cfg.MaxBits != 0 || cfg.ForceMono {
		if limiter, ok := backend.(output.FormatLimiter); ok {
			limiter.SetFormatLimit(cfg.MaxBits, cfg.ForceMono)
		} else {
			slog.Warn("backend cannot limit its hardware format",
				"backend", descriptor.Name, "max_bits", cfg.MaxBits, "force_mono", cfg.ForceMono)
		}
	}

	granted, err := backend.Open(cfg.Device, requested)
	if err != nil {
		if src != nil {
			src.Close()
		}
		cmd.PrintErrf("Error: opening %s backend: %v\n", descriptor.Name, err)
		return fmt.Errorf("opening %s backend: %w", descriptor.Name, err)
	}
	defer backend.Close()

	if granted != requested {
		slog.Warn("device granted a different sample rate",
			"backend", descriptor.Name, "requested", requested, "granted", granted)
	}

	// Build the deferred sources now that the rate is known
	if tone {
		freq, _ := cmd.Flags().GetFloat64("freq")
		duration, _ := cmd.Flags().GetDuration("duration")
		src, err = source.NewTone(freq, granted, duration)
		if err != nil {
			return err
		}
	} else if fromStdin {
		src, err = source.NewPCMSource(cmd.InOrStdin(), granted)
		if err != nil {
			return err
		}
	}
	defer src.Close()

	// Configure the player
	p := player.New(backend)
	if err := p.SetVolume(float32(cfg.Volume)); err != nil {
		return err
	}
	if cfg.ChunkBytes > 0 {
		p.SetChunkBytes(cfg.ChunkBytes)
	}

	// Ctrl-C stops the pump between chunks
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal := cli.openJournal(cfg)
	session := journal.Begin(sourceName, descriptor.Name, cfg.Device, requested, granted)

	slog.Info("playback starting",
		"source", sourceName,
		"backend", descriptor.Name,
		"device", cfg.Device,
		"rate", granted,
		"volume", cfg.Volume)

	stats, err := p.Play(ctx, src)

	outcome := tracking.Outcome{Completed: err == nil}
	if stats != nil {
		outcome.BytesWritten = stats.BytesWritten
		outcome.Chunks = stats.Chunks
		outcome.Underruns = stats.Underruns
		outcome.Duration = stats.Elapsed
	}
	journal.Finish(session, outcome)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			cmd.Println("playback interrupted")
			return nil
		}
		cmd.PrintErrf("Error: playback failed: %v\n", err)
		return fmt.Errorf("playback failed: %w", err)
	}

	// Close before reporting so file backends finish their headers
	if err := backend.Close(); err != nil {
		cmd.PrintErrf("Error: closing %s backend: %v\n", descriptor.Name, err)
		return fmt.Errorf("closing %s backend: %w", descriptor.Name, err)
	}

	cmd.Printf("played %d bytes in %s via %s at %d Hz\n",
		stats.BytesWritten, stats.Elapsed.Round(time.Millisecond), descriptor.Name, granted)
	if stats.Underruns > 0 {
		cmd.Printf("recovered %d underruns\n", stats.Underruns)
	}

	return nil
}
