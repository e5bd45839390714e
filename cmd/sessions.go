package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
)

// CreateSessionsCmd creates the sessions command.
func CreateSessionsCmd() *cobra.Command {
	var journalPath string
	var sessionID string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Query the capture journal",
		Long: `Lists recorded capture spans from the journal database: which preset ` +
			`and exposure each span ran with, how many frames it delivered and how ` +
			`it ended. Filter to a single session with --session.`,
		Run: func(_ *cobra.Command, _ []string) {
			j, err := journal.Open(journalPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to open journal: %v\n", err)
				os.Exit(1)
			}
			defer j.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var spans []journal.Span
			if sessionID != "" {
				spans, err = j.BySession(ctx, sessionID)
			} else {
				spans, err = j.Recent(ctx, limit)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to query journal: %v\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(spans); err != nil {
					fmt.Fprintf(os.Stderr, "failed to encode spans: %v\n", err)
					os.Exit(1)
				}
				return
			}

			if len(spans) == 0 {
				fmt.Println("No capture spans recorded")
				return
			}

			rows := make([][]string, 0, len(spans))
			for _, span := range spans {
				ended := "-"
				if !span.EndedAt.IsZero() {
					ended = span.EndedAt.Local().Format(time.RFC3339)
				}
				rows = append(rows, []string{
					strconv.FormatInt(span.ID, 10),
					span.SessionID,
					strconv.Itoa(span.SpanIndex),
					span.Preset,
					fmt.Sprintf("%dus", span.ExposureUS),
					strconv.FormatUint(span.Frames, 10),
					humanize.Bytes(span.Bytes),
					strconv.Itoa(span.Restarts),
					string(span.Status),
					span.StartedAt.Local().Format(time.RFC3339),
					ended,
				})
			}

			fmt.Println(renderTable(
				[]string{"ID", "SESSION", "SPAN", "PRESET", "EXPOSURE", "FRAMES", "BYTES", "RESTARTS", "STATUS", "STARTED", "ENDED"},
				rows,
				[]columnAlignment{
					alignRight, alignLeft, alignRight, alignLeft, alignRight,
					alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft,
				},
			))
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "capture.db", "Path to the journal database")
	cmd.Flags().StringVar(&sessionID, "session", "", "Show only spans for this session ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum spans to list, newest first")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
