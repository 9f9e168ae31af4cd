package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/jackc/pgx/v5"
)

// EnsureSchema creates the last_positions table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS public.last_positions (
			device_id   TEXT PRIMARY KEY,
			latitude    DOUBLE PRECISION NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			altitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
			speed       DOUBLE PRECISION NOT NULL DEFAULT 0,
			bearing     DOUBLE PRECISION NOT NULL DEFAULT 0,
			recorded_at TIMESTAMPTZ,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create last_positions table: %w", err)
	}

	return nil
}

// LoadLastPosition returns the last position saved for deviceID.
// It returns nil and no error when the device has never been saved.
func (r *Repository) LoadLastPosition(ctx context.Context, deviceID string) (*models.LocationSample, error) {
	query := `
		SELECT latitude, longitude, altitude, speed, bearing, recorded_at
		FROM public.last_positions
		WHERE device_id = $1;
	`

	var (
		sample     models.LocationSample
		recordedAt *time.Time
	)
	err := r.db.QueryRow(ctx, query, deviceID).Scan(
		&sample.Latitude, &sample.Longitude, &sample.Altitude, &sample.Speed, &sample.Bearing, &recordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		r.log.DebugContext(ctx, "No last known position stored", "device", deviceID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last position: %w", err)
	}

	if recordedAt != nil {
		sample.Timestamp = *recordedAt
	}

	return &sample, nil
}

// SaveLastPosition upserts the position of deviceID.
func (r *Repository) SaveLastPosition(ctx context.Context, deviceID string, sample models.LocationSample) error {
	query := `
		INSERT INTO public.last_positions (device_id, latitude, longitude, altitude, speed, bearing, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id) DO UPDATE
		SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			altitude = EXCLUDED.altitude,
			speed = EXCLUDED.speed,
			bearing = EXCLUDED.bearing,
			recorded_at = EXCLUDED.recorded_at,
			updated_at = now();
	`

	_, err := r.db.Exec(ctx, query,
		deviceID, sample.Latitude, sample.Longitude, sample.Altitude, sample.Speed, sample.Bearing,
		nullableTime(sample.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save last position: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}
