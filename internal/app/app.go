package app

import (
	"context"
	"errors"
	"fmt"

	"birthdaysite/config"
	"birthdaysite/config/database"
	"birthdaysite/internal/content/localstore"
	"birthdaysite/internal/content/repository"
	"birthdaysite/internal/content/service"
	"birthdaysite/internal/offline"
	"birthdaysite/pkg/logger"
)

// App holds the content components shared by the server and the CLI.
type App struct {
	Config  *config.Config
	Storage localstore.Storage
	Remote  repository.Store // nil without a remote store
	Queue   *offline.Queue
	Session *service.Session

	closers []func() error
}

// New opens local storage and the configured remote store and builds the
// content session. It does not load the document.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.CachePath != "" {
		db, err := localstore.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		a.Storage = db
		a.closers = append(a.closers, db.Close)
		logger.Sugar.Infof("Local cache at %s", cfg.CachePath)
	} else {
		a.Storage = localstore.NewMemory()
		logger.Sugar.Info("Local cache in memory")
	}

	remote, err := a.openRemote(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Remote = remote

	a.Queue = offline.NewQueue(a.Storage)
	a.Session = service.NewSession(a.Storage, a.Remote, a.Queue, service.Options{
		RemoteTimeout:   cfg.RemoteTimeout,
		RefreshInterval: cfg.RefreshInterval,
	})
	return a, nil
}

func (a *App) openRemote(ctx context.Context) (repository.Store, error) {
	switch a.Config.RemoteDriver {
	case config.DriverFirebase:
		logger.Sugar.Infof("Remote store: Firebase at %s", a.Config.FirebaseURL)
		return repository.NewFirebaseStore(a.Config.FirebaseURL, a.Config.FirebaseAuth), nil
	case config.DriverPostgres:
		db, err := database.Connect(a.Config.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.Sugar.Info("Remote store: Postgres")
		return repository.NewPostgresStore(db), nil
	case config.DriverNone:
		logger.Sugar.Info("No remote store configured, running local only")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown remote driver %q", a.Config.RemoteDriver)
	}
}

// Replayer replays offline actions against the remote store.
func (a *App) Replayer() offline.ReplayFunc {
	if a.Remote == nil {
		return nil
	}
	return offline.StoreReplayer(a.Remote)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
