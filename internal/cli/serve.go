package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cutline/internal/api"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/logging"
	"github.com/roach88/cutline/internal/project"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Watch    bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <project>",
		Short: "Serve a live editing session over HTTP",
		Long: `Open a project in a long-running session and expose it over HTTP.

Intents are accepted on POST /intents; state is read from /timeline and
/playback; the EDL is served on /export.edl. With --db the session is
journaled and /events lists it. With --watch, saving the project file
replaces the session's timeline.

Examples:
  cutline serve trailer.yaml
  cutline serve trailer.yaml --addr :9000 --db session.db --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the session to this database")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload the project file when it changes")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command, path string) error {
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

	routerOpts := []event.Option{event.WithLogger(logging.WithComponent(logger, "router"))}
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
		append(sessionOptions(cfg, f, nil, logging.WithComponent(logger, "session")), session.WithTimeline(tl))...)
	if st != nil {
		journal := store.NewJournal(context.WithoutCancel(ctx), st, sess,
			journalOptions(cfg, logging.WithComponent(logger, "journal"))...)
		journal.Attach(router)
		defer journal.Detach()
	}
	sess.Publish()

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	server := api.NewServer(api.ServerConfig{
		Addr:      addr,
		Session:   sess,
		Store:     st,
		Title:     f.Name,
		FrameRate: f.Rate(),
		Logger:    logging.WithComponent(logger, "api"),
		StartTime: time.Now(),
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	routerDone := make(chan error, 1)
	go func() { routerDone <- router.Run(runCtx) }()

	if opts.Watch {
		w, err := project.NewWatcher(path, func(reloaded *project.File) {
			ev, err := replaceIntent(reloaded)
			if err != nil {
				logger.Warn("project reload rejected", "path", path, "error", err)
				return
			}
			if err := router.Enqueue(ev); err != nil {
				logger.Warn("project reload dropped", "error", err)
			}
		}, project.WithWatchLogger(logging.WithComponent(logger, "watcher")))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch project", err)
		}
		defer w.Close()
		go func() {
			if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watcher stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			result = WrapExitError(ExitCommandError, "server failed", err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	if router.Post(sess.Close) != nil {
		sess.Close()
	}
	router.Stop()
	<-routerDone
	return result
}

// replaceIntent turns a reloaded project file into a timeline.replace
// intent.
func replaceIntent(f *project.File) (event.Event, error) {
	clips, err := f.TimelineClips()
	if err != nil {
		return event.Event{}, err
	}
	return event.NewIntent(event.TimelineReplace, session.ReplaceTimeline{Clips: clips}), nil
}
