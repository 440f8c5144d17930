package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tangled.org/atscan.net/perfhint/cmd/perfhint/commands"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perfhint",
		Short: "Performance hint service",
		Long: `perfhint - performance hint service

Clients push per-frame work durations and hints through shared memory
channels. Worker threads drain them into per-session frame statistics.`,

		Example: `  # Run the service with the diagnostics server
  perfhint serve --websocket --archive ./archive

  # Stream synthetic frames from a demo client
  perfhint send --frames 600 --jank-every 20

  # Watch live status
  perfhint status --watch`,

		Version:       commands.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("dir", "", "Shared memory segment directory (default: /dev/shm or temp dir)")
	cmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "Diagnostics server URL for client commands")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress informational output")

	cmd.AddCommand(commands.NewServeCommand())
	cmd.AddCommand(commands.NewStatusCommand())
	cmd.AddCommand(commands.NewSendCommand())
	cmd.AddCommand(commands.NewArchiveCommand())
	cmd.AddCommand(commands.NewVersionCommand())

	return cmd
}
