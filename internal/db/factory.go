package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leafsii/postboard-backend/internal/db/gormdb"
	"github.com/leafsii/postboard-backend/internal/db/memory"
	"github.com/leafsii/postboard-backend/internal/db/postgres"
	"github.com/leafsii/postboard-backend/internal/posts"
)

// Backend names accepted in Config.Type.
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// Config holds database configuration
type Config struct {
	Type        string // "memory", "postgres", "sqlite"
	PostgresDSN string
	SQLitePath  string
	AutoMigrate bool
}

// migrator is implemented by the SQL backends.
type migrator interface {
	Migrate(ctx context.Context) error
}

// NewRepository opens the configured backend and, for SQL backends with
// AutoMigrate set, brings the schema up to date.
func NewRepository(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (posts.Repository, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var (
		repo posts.Repository
		err  error
	)
	switch cfg.Type {
	case "", TypeMemory:
		logger.Infow("Using in-memory database")
		return memory.NewRepository(), nil
	case TypePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		logger.Infow("Using postgres database")
		repo, err = postgres.Open(ctx, cfg.PostgresDSN)
	case TypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		logger.Infow("Using sqlite database", "path", cfg.SQLitePath)
		repo, err = gormdb.OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, repo); err != nil {
			repo.Close()
			return nil, err
		}
		logger.Infow("Database migrations applied", "type", cfg.Type)
	}
	return repo, nil
}

// MustNewRepository creates a repository and panics on error
func MustNewRepository(ctx context.Context, cfg Config, logger *zap.SugaredLogger) posts.Repository {
	repo, err := NewRepository(ctx, cfg, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to create database: %v", err))
	}
	return repo
}

// Migrate runs the schema migrations of repo, if it has any.
func Migrate(ctx context.Context, repo posts.Repository) error {
	m, ok := repo.(migrator)
	if !ok {
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
