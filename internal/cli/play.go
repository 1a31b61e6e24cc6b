package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/render"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/store"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	From     float64
	Speed    float64
	Volume   float64
	For      time.Duration
	Database string
	NoBar    bool
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <project>",
		Short: "Play a project in real time",
		Long: `Play the project's timeline against the simulated media backend.

Playback runs until the end of the timeline (or forever with
end_policy: loop), until --for elapses, or until interrupted.

Clips whose media fails to open are skipped and reported.

Examples:
  cutline play trailer.yaml
  cutline play trailer.yaml --from 12.5 --speed 2
  cutline play trailer.yaml --db session.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, cmd, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.From, "from", 0, "start at this timeline position (seconds)")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 1, "playback rate (0.5, 1, 1.5 or 2)")
	cmd.Flags().Float64Var(&opts.Volume, "volume", 1, "volume between 0 and 1")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this long")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the session to this database")
	cmd.Flags().BoolVar(&opts.NoBar, "no-bar", false, "print state lines instead of a progress bar")

	return cmd
}

func runPlay(opts *PlayOptions, cmd *cobra.Command, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.config()
	if err != nil {
		return err
	}
	f, tl, err := loadProject(path, true)
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr())

	routerOpts := []event.Option{event.WithLogger(logger)}
	var st *store.Store
	if db := dbPath(opts.Database, cfg); db != "" {
		var resume []event.Option
		st, resume, err = openJournal(ctx, db)
		if err != nil {
			return err
		}
		defer st.Close()
		routerOpts = append(routerOpts, resume...)
	}

	router := event.NewRouter(routerOpts...)
	sess := session.New(router, newOpener(cfg, nil),
		append(sessionOptions(cfg, f, nil, logger), session.WithTimeline(tl))...)

	var journal *store.Journal
	if st != nil {
		journal = store.NewJournal(context.WithoutCancel(ctx), st, sess, journalOptions(cfg, logger)...)
		journal.Attach(router)
	}

	var termOpts []render.TerminalOption
	if opts.NoBar {
		termOpts = append(termOpts, render.WithProgressBar(false))
	}
	term := render.NewTerminal(cmd.OutOrStdout(), termOpts...)
	term.Attach(router)

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	router.Subscribe(event.PlaybackStateChanged, func(ev event.Event) error {
		if sc, ok := ev.Data.(playback.StateChange); ok && sc.State == playback.Stopped {
			finish(nil)
		}
		return nil
	})
	router.Subscribe(event.OperationFailed, func(ev event.Event) error {
		if fl, ok := ev.Data.(event.Failure); ok && fl.Intent == event.PlaybackPlay {
			finish(NewExitError(ExitFailure, fmt.Sprintf("cannot play: %s", fl.Message)))
		}
		return nil
	})

	sess.Publish()
	for _, ev := range playIntents(opts, cmd) {
		if err := router.Enqueue(ev); err != nil {
			return WrapExitError(ExitCommandError, "failed to queue intent", err)
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- router.Run(context.WithoutCancel(ctx)) }()

	var timeout <-chan time.Time
	if opts.For > 0 {
		timeout = time.After(opts.For)
	}

	var result error
	select {
	case result = <-done:
	case <-ctx.Done():
	case <-timeout:
	}

	closed := router.Post(sess.Close) == nil
	router.Stop()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("router stopped with error", "error", err)
	}
	if !closed {
		sess.Close()
	}

	term.Detach()
	if journal != nil {
		journal.Detach()
	}
	return result
}

func playIntents(opts *PlayOptions, cmd *cobra.Command) []event.Event {
	var evs []event.Event
	if cmd.Flags().Changed("volume") {
		evs = append(evs, event.NewIntent(event.PlaybackSetVolume, session.SetVolume{Volume: opts.Volume}))
	}
	if cmd.Flags().Changed("speed") {
		evs = append(evs, event.NewIntent(event.PlaybackSetSpeed, session.SetSpeed{Speed: opts.Speed}))
	}
	play := session.Play{}
	if cmd.Flags().Changed("from") {
		at := opts.From
		play.At = &at
	}
	return append(evs, event.NewIntent(event.PlaybackPlay, play))
}
