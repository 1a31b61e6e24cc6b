package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/cutline/internal/clock"
	"github.com/roach88/cutline/internal/config"
	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/project"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/sim"
	"github.com/roach88/cutline/internal/store"
	"github.com/roach88/cutline/internal/timeline"
)

// loadProject reads a project file and builds its starting timeline. A
// missing file is a command error; a file that fails validation is a
// failure. With resolve unset, sources stay exactly as written so the file
// can be saved back.
func loadProject(path string, resolve bool) (*project.File, *timeline.Timeline, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to read project", err)
	}
	f, err := project.Load(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "invalid project", err)
	}
	if !resolve {
		f.Dir = ""
	}
	tl, err := f.Timeline(edit.UUIDv7Generator{})
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "invalid project", err)
	}
	return f, tl, nil
}

// sessionOptions layers the project's playback settings over the config.
func sessionOptions(cfg *config.Config, f *project.File, clk clock.Clock, logger *slog.Logger) []session.Option {
	popts := cfg.PlaybackOptions()
	if clk != nil {
		popts = append(popts, playback.WithClock(clk))
	}
	if f.DistancePerTime > 0 {
		popts = append(popts, playback.WithDistancePerTime(f.DistancePerTime))
	}
	if policy, err := playback.ParseEndPolicy(f.EndPolicy); f.EndPolicy != "" && err == nil {
		popts = append(popts, playback.WithEndPolicy(policy))
	}
	return []session.Option{
		session.WithLogger(logger),
		session.WithIDGenerator(edit.UUIDv7Generator{}),
		session.WithPlaybackOptions(popts...),
	}
}

func newOpener(cfg *config.Config, clk clock.Clock) *sim.Opener {
	o := sim.NewOpener(clk)
	o.CheckFiles = cfg.Media.CheckFiles
	if cfg.Media.Width > 0 && cfg.Media.Height > 0 {
		o.Width, o.Height = cfg.Media.Width, cfg.Media.Height
	}
	return o
}

// openJournal opens the store at path and returns router options that
// resume the seq clock after the last journaled event.
func openJournal(ctx context.Context, path string) (*store.Store, []event.Option, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", path), err)
	}
	last, err := st.MaxSeq(ctx)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	return st, []event.Option{event.WithSeqClock(event.NewSeqClockAt(last))}, nil
}

func journalOptions(cfg *config.Config, logger *slog.Logger) []store.JournalOption {
	opts := []store.JournalOption{store.WithJournalLogger(logger)}
	if cfg.Store.HighRate {
		opts = append(opts, store.WithHighRate())
	}
	return opts
}

// dbPath picks the --db flag, falling back to the configured store.
func dbPath(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Store.Path
}

// openStore opens an existing journal for reading.
func openStore(opts *RootOptions, flag string) (*store.Store, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	path := dbPath(flag, cfg)
	if path == "" {
		return nil, NewExitError(ExitCommandError, "a database is required (--db or store.path)")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
