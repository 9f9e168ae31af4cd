package repository

import (
	"context"
	"log/slog"

	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	db  Database
	log *slog.Logger
}

// Database is the subset of *pgxpool.Pool used by the repository.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Interface stores the last rendered position of each device, so a restarted
// screen can show a stale but valid position before the first fix arrives.
type Interface interface {
	EnsureSchema(ctx context.Context) error
	LoadLastPosition(ctx context.Context, deviceID string) (*models.LocationSample, error)
	SaveLastPosition(ctx context.Context, deviceID string, sample models.LocationSample) error
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}
