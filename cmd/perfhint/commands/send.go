package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tangled.org/atscan.net/perfhint/channel"
	"tangled.org/atscan.net/perfhint/cmd/perfhint/ui"
	"tangled.org/atscan.net/perfhint/internal/message"
	"tangled.org/atscan.net/perfhint/internal/types"
	"tangled.org/atscan.net/perfhint/server"
	"tangled.org/atscan.net/perfhint/session"
)

// workShare is the fraction of the target a normal synthetic frame takes
const workShare = 0.6

type sendOptions struct {
	tgid             int32
	uid              int32
	target           time.Duration
	frames           int
	fps              int
	jankEvery        int
	graphicsPipeline bool
	keep             bool
	noProgress       bool
}

func NewSendCommand() *cobra.Command {
	opts := sendOptions{
		tgid: int32(os.Getpid()),
		uid:  int32(os.Getuid()),
	}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run a demo client that streams synthetic frames",
		Long: `Run a demo client that streams synthetic frames

Creates a session on a running server, attaches to the client's shared
memory channel and pushes one work duration per frame. Every
--jank-every frames takes twice the target duration. The final session
statistics are printed when done.`,

		Example: `  # 300 frames at 60 fps, every 10th one janky
  perfhint send

  # As fast as possible with game-mode jitter tracking
  perfhint send --frames 5000 --fps 0 --graphics-pipeline

  # Keep the session open for inspection
  perfhint send --keep && perfhint status --watch`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			flags := getGlobalFlags(cmd)
			if opts.target <= 0 {
				return fmt.Errorf("--target must be positive")
			}
			if opts.frames <= 0 {
				return fmt.Errorf("--frames must be positive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSend(ctx, flags, opts)
		},
	}

	cmd.Flags().Int32Var(&opts.tgid, "tgid", opts.tgid, "Client thread group id")
	cmd.Flags().Int32Var(&opts.uid, "uid", opts.uid, "Client uid")
	cmd.Flags().DurationVar(&opts.target, "target", 16666666*time.Nanosecond, "Target work duration per frame")
	cmd.Flags().IntVar(&opts.frames, "frames", 300, "Frames to send")
	cmd.Flags().IntVar(&opts.fps, "fps", 60, "Frames per second (0 = as fast as the queue allows)")
	cmd.Flags().IntVar(&opts.jankEvery, "jank-every", 10, "Make every Nth frame janky (0 = never)")
	cmd.Flags().BoolVar(&opts.graphicsPipeline, "graphics-pipeline", false, "Enable the graphics pipeline mode (FPS jitter tracking)")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "Leave the session and channel open")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")

	return cmd
}

func runSend(ctx context.Context, flags globalFlags, opts sendOptions) error {
	logger := &commandLogger{quiet: flags.quiet}

	var created server.CreateSessionResponse
	if err := requestJSON("POST", flags.serverURL+"/sessions", server.CreateSessionRequest{
		TGID:                opts.tgid,
		UID:                 opts.uid,
		TargetDurationNanos: opts.target.Nanoseconds(),
	}, &created); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	id := created.SessionID
	logger.Printf("Session %d created (tgid %d, uid %d, target %s)", id, opts.tgid, opts.uid, opts.target)

	channelURL := fmt.Sprintf("%s/channels/%d/%d", flags.serverURL, opts.tgid, opts.uid)
	sessionURL := fmt.Sprintf("%s/sessions/%d", flags.serverURL, id)

	var cfg channel.ChannelConfig
	if err := requestJSON("POST", channelURL, nil, &cfg); err != nil {
		return fmt.Errorf("failed to get channel config: %w", err)
	}
	if flags.verbose {
		logger.Printf("Attaching to %s (flag %s, write bit %#x)", cfg.ChannelDescriptor.Path, cfg.EventFlagDescriptor.Path, cfg.WriteFlagBitmask)
	}

	client, err := channel.Attach(&cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.graphicsPipeline {
		if err := client.Send(ctx, message.NewMode(id, time.Now().UnixNano(), types.ModeGraphicsPipeline, true)); err != nil {
			return fmt.Errorf("failed to set mode: %w", err)
		}
	}

	var progress *ui.ProgressBar
	if !opts.noProgress && !flags.quiet {
		progress = ui.NewProgressBar(opts.frames)
	}

	var tick <-chan time.Time
	if opts.fps > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(opts.fps))
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 1; i <= opts.frames; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		work := time.Duration(float64(opts.target) * workShare)
		jank := opts.jankEvery > 0 && i%opts.jankEvery == 0
		if jank {
			work = 2 * opts.target
		}

		end := time.Now().UnixNano()
		wd := types.WorkDuration{
			TimestampNanos:       end,
			DurationNanos:        work.Nanoseconds(),
			WorkPeriodStartNanos: end - work.Nanoseconds(),
			CPUDurationNanos:     work.Nanoseconds(),
		}
		if err := client.Send(ctx, message.NewWorkDuration(id, wd)); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}

		if progress != nil {
			jankCount := 0
			if jank {
				jankCount = 1
			}
			progress.Add(1, jankCount)
		}
	}

	if err := client.WaitConsumed(ctx); err != nil {
		return fmt.Errorf("waiting for the worker: %w", err)
	}
	if progress != nil {
		progress.Finish()
	}

	var m session.Metrics
	if err := requestJSON("GET", sessionURL, nil, &m); err != nil {
		return err
	}
	printSessionSummary(&m)

	if opts.keep {
		return nil
	}

	if err := requestJSON("DELETE", sessionURL, nil, nil); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if err := requestJSON("DELETE", channelURL, nil, nil); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	logger.Printf("Session %d and channel closed", id)
	return nil
}

func printSessionSummary(m *session.Metrics) {
	fmt.Printf("\nSession %d\n", m.SessionID)
	fmt.Printf("━━━━━━━━━━━━━\n")
	fmt.Printf("  Target:        %s\n", time.Duration(m.TargetDurationNanos))
	fmt.Printf("  Frames:        %s (last %d kept)\n", formatNumber(m.Buckets.TotalNumOfFrames), m.NumOfRecords)
	fmt.Printf("  Avg / max:     %s / %s\n", formatMicros(m.AvgDurationUs), formatMicros(m.MaxDurationUs))
	fmt.Printf("  Missed:        %d\n", m.MissedCycles)
	fmt.Printf("  FPS jitters:   %d\n", m.FPSJitters)
	fmt.Printf("  Latest FPS:    %d\n", m.LatestFPS)
	fmt.Printf("  Jank buckets:  %s\n", m.Buckets)
}
