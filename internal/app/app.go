// Package app assembles the daemon from its parts and owns their lifecycle.
package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"streamwatch/internal/config"
	"streamwatch/internal/discord"
	"streamwatch/internal/storage"
	"streamwatch/internal/twitch"
	"streamwatch/internal/watch"
	"streamwatch/pkg/logx"
)

type App struct {
	cfg *config.Config

	logs *logx.Service
	log  logx.Logger

	history storage.Store
	poller  *watch.Poller
}

// New loads and validates the config at cfgPath and wires every component.
// Construction performs no network I/O; the first Twitch call happens in Run.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	broker := twitch.NewBroker(cfg.Twitch.ClientID, cfg.Twitch.ClientSecret,
		log.With(logx.String("comp", "twitch")))
	api := twitch.NewClient(broker, cfg.Twitch.ClientID,
		log.With(logx.String("comp", "twitch")))

	var history storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
		if err != nil {
			return nil, err
		}
		history, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if history != nil {
			log.Info("event history enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	builder := discord.NewMessageBuilder(cfg.Location())
	senderOpts := []discord.SenderOption{}
	if history != nil {
		senderOpts = append(senderOpts, discord.WithHistory(history))
	}
	sender := discord.NewSender(builder, log.With(logx.String("comp", "discord")), senderOpts...)

	var pollerOpts []watch.PollerOption
	if cfg.Guard != nil && cfg.Guard.Enabled {
		guard := watch.NewGuard(*cfg.Guard, log.With(logx.String("comp", "guard")))
		pollerOpts = append(pollerOpts, watch.WithGuard(guard))
		log.Info("resource guard enabled")
	}

	poller, err := watch.NewPoller(api, cfg, sender,
		log.With(logx.String("comp", "poller")), pollerOpts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logs:    logSvc,
		log:     log,
		history: history,
		poller:  poller,
	}, nil
}

// Run blocks until ctx is canceled, a fatal startup error occurs, or the
// resource guard requests a restart (watch.ErrRestartRequested).
func (a *App) Run(ctx context.Context) error {
	a.log.Info("streamwatch starting",
		logx.Int("streamers", len(a.cfg.Streamers)),
		logx.String("schedule", a.cfg.Polling.Schedule))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.poller.Run(ctx)
	})
	return g.Wait()
}

// Close releases held resources. Safe to call after Run returns.
func (a *App) Close() error {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("closing event history", logx.Err(err))
		}
	}
	return a.logs.Close()
}
