package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/project"
	"github.com/roach88/cutline/internal/render"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/sim"
)

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Output string
	DryRun bool
}

// EditResult is the JSON shape of a successful edit.
type EditResult struct {
	Intent        string  `json:"intent"`
	Version       uint64  `json:"version"`
	TotalDuration float64 `json:"total_duration"`
	Clips         int     `json:"clips"`
	Saved         string  `json:"saved,omitempty"`
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <project> <intent> [json-data]",
		Short: "Apply one editing intent to a project file",
		Long: `Apply a single editing intent to a project and save the result.

The intent is one of clip.add, clip.insert, clip.delete, clip.duplicate,
clip.split, clip.resize, clip.reorder, clip.move or timeline.replace. Its
payload is given as JSON. Clips are targeted by "index" or "id".

Exit codes:
  0 - Intent applied
  1 - Intent rejected (the failure code is printed)
  2 - Command error (file not found, bad arguments, etc.)

Examples:
  cutline edit trailer.yaml clip.add '{"clip":{"kind":"image","source":{"ref":"card.png"},"duration":3}}'
  cutline edit trailer.yaml clip.resize '{"index":0,"duration":4.5}'
  cutline edit trailer.yaml clip.delete '{"index":2}' -o trimmed.yaml`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data string
			if len(args) == 3 {
				data = args[2]
			}
			return runEdit(opts, cmd, args[0], args[1], data)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the edited project here instead of in place")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "apply the intent without saving")

	return cmd
}

func runEdit(opts *EditOptions, cmd *cobra.Command, path, intent, data string) error {
	out := opts.formatter(cmd)

	if !isEditIntent(intent) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is not an editing intent", intent))
	}
	ev, err := session.DecodeIntent(intent, json.RawMessage(data))
	if err != nil {
		var pe *session.PayloadError
		if errors.As(err, &pe) {
			_ = out.Error(session.CodeInvalidPayload, err.Error(), nil)
			return WrapExitError(ExitFailure, "intent rejected", err)
		}
		return WrapExitError(ExitCommandError, "invalid intent", err)
	}

	cfg, err := opts.config()
	if err != nil {
		return err
	}
	f, tl, err := loadProject(path, false)
	if err != nil {
		return err
	}

	logger := opts.logger(cmd.ErrOrStderr())
	router := event.NewRouter(event.WithLogger(logger))
	sess := session.New(router, sim.NewOpener(nil), append(sessionOptions(cfg, f, nil, logger), session.WithTimeline(tl))...)
	defer sess.Close()

	var failure *event.Failure
	router.Subscribe(event.OperationFailed, func(ev event.Event) error {
		if fl, ok := ev.Data.(event.Failure); ok {
			failure = &fl
		}
		return nil
	})

	if err := router.Enqueue(ev); err != nil {
		return WrapExitError(ExitCommandError, "failed to queue intent", err)
	}
	router.Drain()

	if failure != nil {
		_ = out.Reject(*failure)
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", intent, failure.Code))
	}

	next := sess.Timeline()
	result := EditResult{
		Intent:        intent,
		Version:       next.Version(),
		TotalDuration: next.TotalDuration(),
		Clips:         next.Len(),
	}

	if !opts.DryRun {
		dest := path
		if opts.Output != "" {
			dest = opts.Output
		}
		saved := project.FromTimeline(f.Name, f.FrameRate, next)
		saved.DistancePerTime = f.DistancePerTime
		saved.EndPolicy = f.EndPolicy
		if err := project.Save(dest, saved); err != nil {
			return WrapExitError(ExitCommandError, "failed to save project", err)
		}
		result.Saved = dest
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "applied %s\n", intent)
	return render.PrintTimeline(w, next, render.Width(w))
}

func isEditIntent(typ string) bool {
	switch typ {
	case event.ClipAdd, event.ClipInsert, event.ClipDelete, event.ClipDuplicate,
		event.ClipSplit, event.ClipResize, event.ClipReorder, event.ClipMove,
		event.TimelineReplace:
		return true
	}
	return false
}
