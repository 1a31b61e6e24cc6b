package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/render"
	"github.com/roach88/cutline/internal/timeline"
)

// InspectResult is the JSON shape of the inspect command.
type InspectResult struct {
	Name          string          `json:"name"`
	FrameRate     float64         `json:"frame_rate"`
	EndPolicy     string          `json:"end_policy,omitempty"`
	TotalDuration float64         `json:"total_duration"`
	Clips         []timeline.Clip `json:"clips"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <project>",
		Short: "Validate a project and show its timeline",
		Long: `Validate a project file and print its clips with their computed
start and end times.

Exit codes:
  0 - Project is valid
  1 - Project failed validation
  2 - Command error (file not found, etc.)

Examples:
  cutline inspect trailer.yaml
  cutline inspect trailer.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, cmd *cobra.Command, path string) error {
	out := opts.formatter(cmd)

	f, tl, err := loadProject(path, false)
	if err != nil {
		if opts.Format == "json" {
			_ = out.Error("INVALID_PROJECT", err.Error(), nil)
		}
		return err
	}

	if opts.Format == "json" {
		clips := tl.Clips()
		if clips == nil {
			clips = []timeline.Clip{}
		}
		return out.Success(InspectResult{
			Name:          f.Name,
			FrameRate:     f.Rate(),
			EndPolicy:     f.EndPolicy,
			TotalDuration: tl.TotalDuration(),
			Clips:         clips,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%g fps)\n", f.Name, f.Rate())
	return render.PrintTimeline(w, tl, render.Width(w))
}
