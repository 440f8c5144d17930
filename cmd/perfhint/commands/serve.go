package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tangled.org/atscan.net/perfhint"
	"tangled.org/atscan.net/perfhint/server"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take on exit
const shutdownTimeout = 5 * time.Second

func NewServeCommand() *cobra.Command {
	var (
		host            string
		port            string
		enableWebSocket bool
		statusInterval  time.Duration
		archiveDir      string
		recordsCapacity int32
		jankFactor      float64
		lowFPS          int32
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hint service and its diagnostics server",
		Long: `Run the hint service and its diagnostics server

Channel segments are created in --dir. Clients obtain their attach
configuration from POST /channels/{tgid}/{uid} and map the segments
directly. Closed sessions are appended to the archive when --archive
is set.`,

		Example: `  # Serve on the default port
  perfhint serve

  # Enable the websocket status stream and archiving
  perfhint serve --websocket --archive ./archive

  # Custom jank detection
  perfhint serve --jank-factor 1.2 --records 600`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			flags := getGlobalFlags(cmd)
			logger := &commandLogger{quiet: flags.quiet}

			svc, err := perfhint.New(
				perfhint.WithDirectory(flags.dir),
				perfhint.WithArchiveDir(archiveDir),
				perfhint.WithLogger(logger),
				perfhint.WithVerbose(flags.verbose),
				perfhint.WithRecordsCapacity(recordsCapacity),
				perfhint.WithJankFactor(jankFactor),
				perfhint.WithLowFrameRateThreshold(lowFPS),
			)
			if err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}
			defer svc.Close()

			addr := fmt.Sprintf("%s:%s", host, port)
			srv := server.New(svc, &server.Config{
				Addr:            addr,
				EnableWebSocket: enableWebSocket,
				StatusInterval:  statusInterval,
				Version:         GetVersion(),
			})

			if !flags.quiet {
				displayServerInfo(svc, addr, enableWebSocket)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil

			case <-ctx.Done():
				fmt.Fprintf(os.Stderr, "\n\n⚠️  Shutdown signal received...\n")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "  ✗ HTTP shutdown: %v\n", err)
			}

			st := svc.Status()
			svc.Close()
			fmt.Fprintf(os.Stderr, "  ✓ Closed %d channel(s) and %d session(s)\n", st.ChannelCount, st.SessionCount)
			fmt.Fprintf(os.Stderr, "  ✓ Shutdown complete\n")
			return nil
		},
	}

	defaults := perfhint.DefaultSessionSettings()

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP server host")
	cmd.Flags().StringVar(&port, "port", "8080", "HTTP server port")
	cmd.Flags().BoolVar(&enableWebSocket, "websocket", false, "Enable the /ws status stream")
	cmd.Flags().DurationVar(&statusInterval, "status-interval", time.Second, "Default /ws update interval")
	cmd.Flags().StringVar(&archiveDir, "archive", "", "Directory for the closed-session archive (disabled when empty)")
	cmd.Flags().Int32Var(&recordsCapacity, "records", defaults.RecordsCapacity, "Frames kept per session for rolling statistics")
	cmd.Flags().Float64Var(&jankFactor, "jank-factor", defaults.JankFactor, "Target duration multiple above which a frame is missed")
	cmd.Flags().Int32Var(&lowFPS, "low-fps", defaults.LowFrameRateThreshold, "Frame rate below which a session is low frame rate")

	return cmd
}

func displayServerInfo(svc *perfhint.Service, addr string, wsEnabled bool) {
	st := svc.Status()

	fmt.Printf("Starting perfhint %s...\n", GetVersion())
	fmt.Printf("  Segments:  %s\n", st.SegmentDir)
	fmt.Printf("  Listening: http://%s\n", addr)

	if wsEnabled {
		fmt.Printf("  WebSocket: ENABLED (ws://%s/ws)\n", addr)
	} else {
		fmt.Printf("  WebSocket: disabled (use --websocket to enable)\n")
	}

	if st.ArchivePath != "" {
		fmt.Printf("  Archive:   %s\n", st.ArchivePath)
	} else {
		fmt.Printf("  Archive:   disabled (use --archive to enable)\n")
	}

	fmt.Printf("\nPress Ctrl+C to stop\n\n")
}
