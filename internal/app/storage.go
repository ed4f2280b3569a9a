package app

import (
	"context"
	"fmt"

	"github.com/bissquit/user-service/internal/config"
	"github.com/bissquit/user-service/internal/identity"
	identitypostgres "github.com/bissquit/user-service/internal/identity/postgres"
	identitysqlite "github.com/bissquit/user-service/internal/identity/sqlite"
	"github.com/bissquit/user-service/internal/pkg/metrics"
	"github.com/bissquit/user-service/internal/pkg/postgres"
	"github.com/bissquit/user-service/internal/pkg/sqlite"
)

// storage is the opened user store together with its lifecycle hooks.
type storage struct {
	driver        string
	repo          identity.Repository
	ping          func(context.Context) error
	close         func()
	recordMetrics func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*storage, error) {
	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	pool, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectTimeout:  cfg.ConnectTimeout,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &storage{
		driver:        config.DriverPostgres,
		repo:          identitypostgres.NewRepository(pool),
		ping:          pool.Ping,
		close:         pool.Close,
		recordMetrics: func() { metrics.RecordPgxPoolMetrics(pool) },
	}, nil
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig) (*storage, error) {
	if cfg.AutoMigrate {
		if err := sqlite.Migrate(cfg.Path); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	db, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &storage{
		driver: config.DriverSQLite,
		repo:   identitysqlite.NewRepository(db),
		ping:   db.PingContext,
		close: func() {
			_ = db.Close()
		},
		recordMetrics: func() { metrics.RecordSQLDBMetrics(db) },
	}, nil
}
