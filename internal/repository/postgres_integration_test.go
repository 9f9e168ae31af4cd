//go:build integration

package repository_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/UnknownOlympus/lookout/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRepository_Postgres(t *testing.T) {
	ctx := t.Context()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lookout"),
		postgres.WithUsername("lookout"),
		postgres.WithPassword("lookout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := repository.NewRepository(pool, slog.Default())
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema creation must be idempotent")

	sample, err := repo.LoadLastPosition(ctx, "pixel-7")
	require.NoError(t, err)
	assert.Nil(t, sample)

	recordedAt := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	first := models.LocationSample{Latitude: 37.42, Longitude: -122.08, Altitude: 10, Timestamp: recordedAt}
	second := models.LocationSample{Latitude: 37.43, Longitude: -122.09, Altitude: 12, Speed: 1, Bearing: 5}

	require.NoError(t, repo.SaveLastPosition(ctx, "pixel-7", first))
	require.NoError(t, repo.SaveLastPosition(ctx, "pixel-7", second))

	sample, err = repo.LoadLastPosition(ctx, "pixel-7")
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, second, *sample, "the upsert keeps only the latest position")
}
