package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Types    []string
	After    int64
	Limit    int
}

// TraceEntry is one journaled event.
type TraceEntry struct {
	Seq    int64           `json:"seq"`
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Events []TraceEntry `json:"events"`
	Stats  TraceStats   `json:"stats"`
}

// TraceStats summarizes the listed events.
type TraceStats struct {
	Total    int   `json:"total"`
	Intents  int   `json:"intents"`
	Results  int   `json:"results"`
	Failures int   `json:"failures"`
	LastSeq  int64 `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled session events",
		Long: `List the events a journaled session dispatched, in seq order.

Every intent is followed by the results it caused: timeline changes,
clip removals, playback state changes and operation failures.

Examples:
  cutline trace --db session.db
  cutline trace --db session.db --type operation.failed
  cutline trace --db session.db --after 120 --limit 20 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "only these event types")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "at most this many events")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ReadEvents(ctx, store.Filter{Types: opts.Types, AfterSeq: opts.After, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{Events: make([]TraceEntry, 0, len(records))}
	for _, rec := range records {
		result.Events = append(result.Events, TraceEntry{
			Seq:    rec.Seq,
			ID:     rec.ID,
			Type:   rec.Type,
			Origin: rec.Origin,
			Data:   json.RawMessage(rec.Data),
		})
		switch {
		case rec.Type == "operation.failed":
			result.Stats.Failures++
			result.Stats.Results++
		case rec.Origin == "external":
			result.Stats.Intents++
		default:
			result.Stats.Results++
		}
		result.Stats.LastSeq = rec.Seq
	}
	result.Stats.Total = len(result.Events)

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	return outputTraceText(cmd, result)
}

func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	for _, ev := range result.Events {
		marker := " "
		if ev.Origin == "external" {
			marker = ">"
		}
		line := fmt.Sprintf("%6d %s %-26s %s", ev.Seq, marker, ev.Type, compact(ev.Data))
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	fmt.Fprintf(w, "\n%d events (%d intents, %d results, %d failures)\n",
		result.Stats.Total, result.Stats.Intents, result.Stats.Results, result.Stats.Failures)
	return nil
}

func compact(data json.RawMessage) string {
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	var b bytes.Buffer
	if err := json.Compact(&b, data); err != nil {
		return string(data)
	}
	return b.String()
}
