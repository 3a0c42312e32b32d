package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/alphacentauri/internal/api"
	"github.com/user/alphacentauri/internal/config"
	"github.com/user/alphacentauri/internal/db"
	"github.com/user/alphacentauri/internal/hub"
	"github.com/user/alphacentauri/internal/notify"
	"github.com/user/alphacentauri/internal/pty"
	"github.com/user/alphacentauri/internal/server"
)

const configLoadMessage = "There was an error getting your configuration settings."

// loadUserConfig never fails: problems are logged, queued for the UI and the
// built-in default is used.
func loadUserConfig(opts *config.Options, startup *notify.Queue) *config.UserConfig {
	cfg, err := config.LoadOrInitialize(opts.ConfigPath, opts.PersistDefault)
	if err != nil {
		slog.Warn("failed to load configuration", "path", opts.ConfigPath, "error", err)
		details := err.Error()
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			details = cfgErr.Summary() + " " + cfgErr.Detail()
		}
		startup.Push(notify.Event{Level: notify.LevelWarn, Message: configLoadMessage, Details: details})
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}

func runServer(ctx context.Context, opts *config.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	startup := &notify.Queue{}
	store := config.NewStore(loadUserConfig(opts, startup))

	var journal pty.Journal
	var history *db.SessionEventRepo
	database, err := db.Open(ctx, opts.DBPath)
	if err != nil {
		logger.Warn("session journal disabled", "path", opts.DBPath, "error", err)
	} else {
		defer database.Close()
		history = db.NewSessionEventRepo(database.SQL())
		journal = history
	}

	// The hub needs the manager as its terminal and the manager reports
	// through the hub, so the sink is bound after both exist.
	var h *hub.Hub
	sink := notify.SinkFunc(func(ev notify.Event) {
		if h != nil {
			h.Notify(ev)
		}
	})

	managerOpts := []pty.Option{
		pty.WithConfig(store),
		pty.WithNotifier(sink),
		pty.WithLogger(logger),
	}
	if journal != nil {
		managerOpts = append(managerOpts, pty.WithJournal(journal))
	}
	mgr := pty.NewManager(managerOpts...)
	defer mgr.Close()

	h = hub.New(opts.Token, mgr, logger)
	go h.Run(ctx)

	state := &api.State{
		Sessions: mgr,
		Config:   store,
		Startup:  startup,
		Notifier: h,
		Relay:    h,
	}
	if history != nil {
		state.History = history
	}
	srv := server.New(opts, h, api.NewRouter(state, opts.Token), logger)

	fmt.Printf("alphacentauri listening on http://%s/?token=%s\n", srv.Addr(), opts.Token)
	return srv.Start(ctx)
}
