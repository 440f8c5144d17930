package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
	"github.com/spf13/cobra"

	"tangled.org/atscan.net/perfhint/internal/storage"
	"tangled.org/atscan.net/perfhint/session"
)

func NewArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the closed-session archive",
		Long: `Inspect the closed-session archive

The archive holds the final statistics of every closed session, one
zstd frame per JSON line. <path> is either the archive file or the
directory passed to 'serve --archive'.`,
	}

	cmd.AddCommand(newArchiveDumpCommand())
	cmd.AddCommand(newArchiveStatsCommand())

	return cmd
}

// archivePath accepts the archive file or its directory
func archivePath(arg string) string {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return filepath.Join(arg, storage.ArchiveFile)
	}
	return arg
}

func newArchiveDumpCommand() *cobra.Command {
	var (
		query  string
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Print archived sessions",
		Long: `Print archived sessions as JSONL

--query evaluates a JMESPath expression against each record; only
non-null results are printed.

Output formats:
  jsonl - matching records (or query results) as JSONL (default)
  count - only the number of matches`,

		Example: `  # Everything
  perfhint archive dump ./archive

  # Sessions that missed frames
  perfhint archive dump ./archive --query '[?missed_cycles > ` + "`0`" + `] | [0]'

  # Just the bucket counts
  perfhint archive dump ./archive --query 'buckets'

  # How many sessions ran at a low frame rate
  perfhint archive dump ./archive --query 'low_frame_rate == ` + "`true`" + ` || null' --format count`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "jsonl" && format != "count" {
				return fmt.Errorf("unknown format %q (want jsonl or count)", format)
			}

			var compiled *jmespath.JMESPath
			if query != "" {
				var err error
				compiled, err = jmespath.Compile(query)
				if err != nil {
					return fmt.Errorf("invalid JMESPath expression: %w", err)
				}
			}

			matches := 0
			errLimit := errors.New("limit reached")

			err := storage.EachLine(archivePath(args[0]), func(line []byte) error {
				out := line
				if compiled != nil {
					var data interface{}
					if err := json.Unmarshal(line, &data); err != nil {
						return fmt.Errorf("corrupt record: %w", err)
					}
					result, err := compiled.Search(data)
					if err != nil {
						return fmt.Errorf("query failed: %w", err)
					}
					if result == nil {
						return nil
					}
					if out, err = json.Marshal(result); err != nil {
						return err
					}
				}

				matches++
				if format == "jsonl" {
					fmt.Println(string(out))
				}
				if limit > 0 && matches >= limit {
					return errLimit
				}
				return nil
			})
			if err != nil && !errors.Is(err, errLimit) {
				return err
			}

			if format == "count" {
				fmt.Println(matches)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "JMESPath expression applied to each record")
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format: jsonl|count")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit number of results (0 = unlimited)")

	return cmd
}

func newArchiveStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <path>",
		Short: "Summarize archived sessions",
		Args:  cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := storage.Load[session.Metrics](archivePath(args[0]))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("Archive is empty")
				return nil
			}

			var (
				total  session.FrameBuckets
				missed int64
				low    int
			)
			for _, m := range records {
				total.AddUpNewFrames(m.Buckets)
				missed += int64(m.MissedCycles)
				if m.LowFrameRate {
					low++
				}
			}

			first, last := records[0], records[len(records)-1]

			fmt.Printf("📦 Archive\n")
			fmt.Printf("   Sessions:      %s\n", formatNumber(int64(len(records))))
			fmt.Printf("   Coverage:      %s → %s\n",
				first.CreatedAt.Format("2006-01-02 15:04"), last.UpdatedAt.Format("2006-01-02 15:04"))
			fmt.Printf("   Low frame rate: %d session(s)\n\n", low)

			fmt.Printf("🎞  Frames\n")
			fmt.Printf("   Total:         %s\n", formatNumber(total.TotalNumOfFrames))
			fmt.Printf("   Jank:          %s\n", formatNumber(total.JankFrames()))
			fmt.Printf("   Missed (kept): %s\n", formatNumber(missed))
			fmt.Printf("   Buckets:       %s\n", total)

			return nil
		},
	}
}
