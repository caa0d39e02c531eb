// Package daemon wires a user's queue, sync trigger and control API into
// one fx application.
package daemon

import (
	"context"

	"github.com/matheus3301/offsync/internal/api"
	"github.com/matheus3301/offsync/internal/bus"
	"github.com/matheus3301/offsync/internal/config"
	"github.com/matheus3301/offsync/internal/connectivity"
	"github.com/matheus3301/offsync/internal/lock"
	"github.com/matheus3301/offsync/internal/logging"
	"github.com/matheus3301/offsync/internal/offline"
	"github.com/matheus3301/offsync/internal/remote"
	"github.com/matheus3301/offsync/internal/session"
	"github.com/matheus3301/offsync/internal/store"
	"github.com/matheus3301/offsync/internal/trigger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// historyKeep bounds the stored pass summaries per user.
const historyKeep = 500

// Params holds the resolved user configuration passed to the fx module.
type Params struct {
	UserID     string
	SocketPath string         // optional override for testing; empty = use default
	Config     *config.Config // optional; nil = read ~/.offsync/config.toml
	LogLevel   zapcore.Level
	Quiet      bool // no stderr logging
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLifetime,
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRemote,
			provideMonitor,
			provideSession,
			provideTrigger,
			provideQueueService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// lifetime is cancelled first on shutdown, ending background loops, passes
// started over the API and event streams before the server drains.
type lifetime struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func provideLifetime() *lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return &lifetime{ctx: ctx, cancel: cancel}
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.UserID), p.UserID, logging.Options{
		Level:  p.LogLevel,
		Stderr: !p.Quiet,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.UserID); err != nil {
		return nil, err
	}
	logger.Info("acquiring queue lock", zap.String("user", p.UserID))
	l, err := lock.Acquire(session.Dir(p.UserID))
	if err != nil {
		return nil, err
	}
	logger.Info("queue lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.QueueDBPath(p.UserID)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config, logger *zap.Logger) *remote.Client {
	if cfg.Remote.URL == "" {
		logger.Warn("no remote url configured, entries will stay queued")
	}
	return remote.NewClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout.Duration, logger.Named("remote"))
}

func provideMonitor(cfg *config.Config, b *bus.Bus, rc *remote.Client, logger *zap.Logger) *connectivity.Monitor {
	var prober connectivity.Prober
	switch {
	case cfg.Connectivity.ProbeURL != "":
		prober = connectivity.NewHTTPProber(cfg.Connectivity.ProbeURL, cfg.Remote.Timeout.Duration)
	case cfg.Remote.URL != "":
		prober = rc
	}
	return connectivity.NewMonitor(b, prober, cfg.Connectivity.Interval.Duration, logger.Named("connectivity"))
}

func provideSession(p Params, db *store.DB, rc *remote.Client, m *connectivity.Monitor, b *bus.Bus, logger *zap.Logger) (*offline.Session, error) {
	return offline.NewSession(p.UserID, db, rc, m,
		offline.WithBus(b),
		offline.WithHistory(db),
		offline.WithLogger(logger.Named("queue")),
	)
}

func provideTrigger(cfg *config.Config, s *offline.Session, b *bus.Bus, logger *zap.Logger) (*trigger.Trigger, error) {
	return trigger.New(s, b, trigger.Config{
		Schedule:    cfg.Sync.Schedule,
		OnReconnect: cfg.Sync.OnReconnect,
		OnEnqueue:   cfg.Sync.OnEnqueue,
	}, logger.Named("trigger"))
}

func provideQueueService(lt *lifetime, s *offline.Session, m *connectivity.Monitor, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.QueueService {
	return api.NewQueueService(lt.ctx, s, m, db, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, p Params, lt *lifetime, srv *Server, lk *lock.Lock, db *store.DB, m *connectivity.Monitor, tr *trigger.Trigger, s *offline.Session, logger *zap.Logger) {
	ctx := lt.ctx
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if n, err := db.PrunePasses(p.UserID, historyKeep); err != nil {
				logger.Warn("failed to prune sync history", zap.Error(err))
			} else if n > 0 {
				logger.Info("pruned sync history", zap.Int64("removed", n))
			}

			go m.Run(ctx)
			tr.Start(ctx)

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started", zap.Int("pending", s.PendingCount()))
			if s.HasPendingEntries() {
				tr.Request("startup")
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			lt.cancel()
			srv.Stop(stopCtx)
			tr.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
