package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jmespath/go-jmespath"
	"github.com/spf13/cobra"

	"tangled.org/atscan.net/perfhint/server"
)

func NewStatusCommand() *cobra.Command {
	var (
		query    string
		jsonOut  bool
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Long: `Show service status

Fetches /status from a running server and prints channel groups,
channels and sessions. With --watch the status is streamed over the
websocket endpoint (the server must run with --websocket).

--query evaluates a JMESPath expression against the status document
(or, with --watch, against every frame) and prints the result as JSON.`,

		Example: `  # Human readable status
  perfhint status

  # Raw JSON
  perfhint status --json

  # Channel count only
  perfhint status --query 'service.channel_count'

  # Groups with blocklisted clients
  perfhint status --query 'service.groups[?blocklisted_uids]'

  # Live view with per-session statistics
  perfhint status --watch --interval 500ms`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			flags := getGlobalFlags(cmd)

			var compiled *jmespath.JMESPath
			if query != "" {
				var err error
				compiled, err = jmespath.Compile(query)
				if err != nil {
					return fmt.Errorf("invalid JMESPath expression: %w", err)
				}
			}

			if watch {
				return watchStatus(flags.serverURL, interval, compiled, jsonOut)
			}

			var raw json.RawMessage
			if err := requestJSON("GET", flags.serverURL+"/status", nil, &raw); err != nil {
				return err
			}

			if compiled != nil {
				return printQuery(os.Stdout, compiled, raw)
			}
			if jsonOut {
				fmt.Println(string(raw))
				return nil
			}

			var status server.StatusResponse
			if err := json.Unmarshal(raw, &status); err != nil {
				return fmt.Errorf("failed to decode status: %w", err)
			}
			printStatus(os.Stdout, &status, nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "JMESPath expression applied to the status document")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print raw JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream status over websocket")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Update interval for --watch")

	return cmd
}

// printQuery evaluates compiled against raw and prints non-null results
func printQuery(w io.Writer, compiled *jmespath.JMESPath, raw []byte) error {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if result == nil {
		return nil
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func watchStatus(serverURL string, interval time.Duration, compiled *jmespath.JMESPath, jsonOut bool) error {
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	wsURL = fmt.Sprintf("%s/ws?sessions=1&interval=%s", wsURL, interval)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	interactive := isTTY(os.Stdout) && compiled == nil && !jsonOut

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("status stream: %w", err)
		}

		switch {
		case compiled != nil:
			if err := printQuery(os.Stdout, compiled, data); err != nil {
				return err
			}

		case !interactive:
			fmt.Println(string(data))

		default:
			var frame server.WatchFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				return fmt.Errorf("failed to decode frame: %w", err)
			}
			// clear screen and home cursor
			fmt.Print("\033[H\033[2J")
			printStatus(os.Stdout, &frame.Status, &frame)
		}
	}
}

func printStatus(w io.Writer, status *server.StatusResponse, frame *server.WatchFrame) {
	st := status.Service

	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "                   perfhint Service Status\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(w, "📁 %s\n", st.SegmentDir)
	fmt.Fprintf(w, "⏱  up %s (server %s)\n\n", formatDuration(time.Duration(st.UptimeSecs)*time.Second), status.Server.Version)

	fmt.Fprintf(w, "🔀 Channels\n")
	fmt.Fprintf(w, "   Groups:        %d\n", st.GroupCount)
	fmt.Fprintf(w, "   Channels:      %d\n", st.ChannelCount)
	for _, g := range st.Groups {
		fmt.Fprintf(w, "   Group %-4d     %2d/16", g.ID, g.Channels)
		if len(g.Blocklisted) > 0 {
			fmt.Fprintf(w, "  ⚠️  blocklisted uids %v", g.Blocklisted)
		}
		fmt.Fprintf(w, "\n")
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "🎞  Sessions\n")
	fmt.Fprintf(w, "   Open:          %d\n", st.SessionCount)
	if st.ArchivePath != "" {
		fmt.Fprintf(w, "   Archive:       %s\n", st.ArchivePath)
	}

	if frame == nil || len(frame.Sessions) == 0 {
		fmt.Fprintf(w, "\n")
		return
	}

	fmt.Fprintf(w, "\n   %-6s %-8s %-10s %10s %10s %8s %8s %6s  %s\n",
		"ID", "TGID", "TARGET", "AVG", "MAX", "MISSED", "FRAMES", "FPS", "BUCKETS")
	for _, m := range frame.Sessions {
		low := ""
		if m.LowFrameRate {
			low = " (low)"
		}
		fmt.Fprintf(w, "   %-6d %-8d %-10s %10s %10s %8d %8s %6d%s  %s\n",
			m.SessionID, m.TGID,
			time.Duration(m.TargetDurationNanos).String(),
			formatMicros(m.AvgDurationUs), formatMicros(m.MaxDurationUs),
			m.MissedCycles, formatNumber(m.Buckets.TotalNumOfFrames),
			m.LatestFPS, low, m.Buckets.String())
	}
	fmt.Fprintf(w, "\n")
}
