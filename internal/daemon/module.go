// Package daemon composes the engine and its collaborators into a
// runnable fx application.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/emberchat/ember/internal/bus"
	"github.com/emberchat/ember/internal/config"
	"github.com/emberchat/ember/internal/engine"
	"github.com/emberchat/ember/internal/lock"
	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/rest"
	"github.com/emberchat/ember/internal/session"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/transport"
)

// Params holds the resolved identity and credential passed to the module.
// Token acquisition happens outside the engine; an empty token makes
// every network call fail fast.
type Params struct {
	UserID string
	Token  string
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideAPIClient,
			provideEngine,
			provideSocket,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.UserID), p.UserID)
}

func provideConfig(logger *zap.Logger) *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		logger.Info("no usable config file, using defaults", zap.Error(err))
		return config.Default()
	}
	return cfg
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.UserID); err != nil {
		return nil, err
	}
	logger.Info("acquiring engine lock", zap.String("user", p.UserID))
	l, err := lock.Acquire(session.Dir(p.UserID))
	if err != nil {
		return nil, err
	}
	logger.Info("engine lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.UserID)
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAPIClient(p Params, cfg *config.Config, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.APIURL, p.Token, logger)
}

func provideEngine(p Params, api *rest.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) (*engine.Engine, error) {
	return engine.New(p.UserID, api, db, b, logger)
}

func provideSocket(p Params, cfg *config.Config, eng *engine.Engine, logger *zap.Logger) *transport.Socket {
	sock := transport.NewSocket(
		transport.Options{URL: cfg.SocketURL, Token: p.Token},
		eng.HandleEvent,
		eng.SetConnected,
		logger,
	)
	eng.AttachTransport(sock)
	return sock
}

func registerLifecycle(lc fx.Lifecycle, eng *engine.Engine, sock *transport.Socket, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			eng.Start()
			go sock.Run(context.Background())
			// First load does not wait for the socket; a reconnect
			// triggers its own refresh.
			eng.RefreshChats(context.Background())
			logger.Info("engine started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			sock.Close()
			eng.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
