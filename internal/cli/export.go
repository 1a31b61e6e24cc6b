package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output    string
	Title     string
	FrameRate float64
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Export a project as a CMX3600 EDL",
		Long: `Export the project's timeline as a CMX3600 edit decision list.

The title defaults to the project name and the frame rate to the
project's frame_rate.

Examples:
  cutline export trailer.yaml
  cutline export trailer.yaml -o trailer.edl --fps 29.97`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the EDL to a file instead of stdout")
	cmd.Flags().StringVar(&opts.Title, "title", "", "EDL title (default: project name)")
	cmd.Flags().Float64Var(&opts.FrameRate, "fps", 0, "timecode frame rate (default: project frame_rate)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command, path string) error {
	if opts.FrameRate < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("fps must be positive, got %v", opts.FrameRate))
	}

	f, tl, err := loadProject(path, false)
	if err != nil {
		return err
	}

	edl := export.EDLOptions{Title: f.Name, FrameRate: f.Rate()}
	if opts.Title != "" {
		edl.Title = opts.Title
	}
	if opts.FrameRate > 0 {
		edl.FrameRate = opts.FrameRate
	}

	if opts.Output == "" {
		return export.WriteEDL(cmd.OutOrStdout(), tl, edl)
	}
	if err := os.WriteFile(opts.Output, []byte(export.GenerateEDL(tl, edl)), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write EDL", err)
	}
	opts.formatter(cmd).VerboseLog("wrote %d events to %s", tl.Len(), opts.Output)
	return nil
}
