package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/project"
	"github.com/roach88/cutline/internal/store"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	Database  string
	Output    string
	ID        int64
	Name      string
	FrameRate float64
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID            int64   `json:"id"`
	Version       uint64  `json:"version"`
	Clips         int     `json:"clips"`
	TotalDuration float64 `json:"total_duration"`
	Seq           int64   `json:"seq"`
	Fingerprint   string  `json:"fingerprint"`
}

// RestoreResult is the JSON shape of the restore command.
type RestoreResult struct {
	Snapshots []SnapshotInfo `json:"snapshots,omitempty"`
	Restored  *SnapshotInfo  `json:"restored,omitempty"`
	Output    string         `json:"output,omitempty"`
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "List journaled timeline snapshots or restore one as a project",
		Long: `List the timeline snapshots a journaled session stored, or write
one of them back out as a project file.

Without --output the snapshot history is listed. With --output the latest
snapshot (or the one named by --id) is written as a project.

Exit codes:
  0 - Success
  2 - Command error (database not found, unknown snapshot, etc.)

Examples:
  cutline restore --db session.db
  cutline restore --db session.db -o recovered.yaml
  cutline restore --db session.db --id 14 -o before-trim.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the snapshot as a project file")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "snapshot to restore (default: latest)")
	cmd.Flags().StringVar(&opts.Name, "name", "restored", "project name for the written file")
	cmd.Flags().Float64Var(&opts.FrameRate, "fps", 0, "frame rate for the written file")

	return cmd
}

func runRestore(opts *RestoreOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := st.Snapshots(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshots", err)
	}
	out := opts.formatter(cmd)

	if opts.Output == "" {
		infos := make([]SnapshotInfo, len(snaps))
		for i, s := range snaps {
			infos[i] = snapshotInfo(s)
		}
		if opts.Format == "json" {
			return out.Success(RestoreResult{Snapshots: infos})
		}
		return outputSnapshotsText(cmd, infos)
	}

	snap, ok := pickSnapshot(snaps, opts.ID)
	if !ok {
		if opts.ID == 0 {
			return NewExitError(ExitCommandError, "no snapshots stored")
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("snapshot %d not found", opts.ID))
	}
	if err := project.Save(opts.Output, project.FromTimeline(opts.Name, opts.FrameRate, snap.Timeline)); err != nil {
		return WrapExitError(ExitCommandError, "failed to write project", err)
	}

	info := snapshotInfo(snap)
	if opts.Format == "json" {
		return out.Success(RestoreResult{Restored: &info, Output: opts.Output})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored snapshot %d (version %d, %d clips) to %s\n",
		info.ID, info.Version, info.Clips, opts.Output)
	return nil
}

func pickSnapshot(snaps []store.Snapshot, id int64) (store.Snapshot, bool) {
	if len(snaps) == 0 {
		return store.Snapshot{}, false
	}
	if id == 0 {
		return snaps[len(snaps)-1], true
	}
	for _, s := range snaps {
		if s.ID == id {
			return s, true
		}
	}
	return store.Snapshot{}, false
}

func snapshotInfo(s store.Snapshot) SnapshotInfo {
	return SnapshotInfo{
		ID:            s.ID,
		Version:       s.Version,
		Clips:         s.ClipCount,
		TotalDuration: s.TotalDuration,
		Seq:           s.Seq,
		Fingerprint:   s.Fingerprint,
	}
}

func outputSnapshotsText(cmd *cobra.Command, infos []SnapshotInfo) error {
	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No snapshots stored.")
		return nil
	}
	fmt.Fprintf(w, "%6s  %7s  %5s  %10s  %6s  %s\n", "ID", "VERSION", "CLIPS", "TOTAL", "SEQ", "FINGERPRINT")
	for _, s := range infos {
		fp := s.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(w, "%6d  %7d  %5d  %9.3fs  %6d  %s\n", s.ID, s.Version, s.Clips, s.TotalDuration, s.Seq, fp)
	}
	return nil
}
