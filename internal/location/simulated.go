package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/benbjohnson/clock"
	geo "github.com/kellydunn/golang-geo"
)

// ErrInvalidRate is returned when a simulated source is asked to emit at a non-positive rate.
var ErrInvalidRate = errors.New("simulated source rate must be positive")

// SimulatedSource walks a great-circle track at constant speed and bearing.
// It is meant to be bursty: the default rate is far above any render rate.
type SimulatedSource struct {
	start    models.Coordinates
	altitude float64
	speed    float64 // m/s
	bearing  float64 // degrees
	rate     float64 // samples per second
	log      *slog.Logger
	clock    clock.Clock
}

// NewSimulatedSource creates a simulator starting at start.
func NewSimulatedSource(
	start models.Coordinates,
	altitude, speed, bearing, rate float64,
	log *slog.Logger,
	clk clock.Clock,
) *SimulatedSource {
	return &SimulatedSource{
		start:    start,
		altitude: altitude,
		speed:    speed,
		bearing:  bearing,
		rate:     rate,
		log:      log,
		clock:    clk,
	}
}

// Start begins emitting samples at the configured rate.
func (ss *SimulatedSource) Start(ctx context.Context, callback Callback) (Subscription, error) {
	if ss.rate <= 0 {
		return nil, ErrInvalidRate
	}

	interval := time.Duration(float64(time.Second) / ss.rate)
	ticker := ss.clock.Ticker(interval)
	stepKm := ss.speed * interval.Seconds() / 1000

	ss.log.InfoContext(ctx, "Simulated location source started",
		"start", ss.start.String(), "rate", ss.rate, "speed", ss.speed, "bearing", ss.bearing)

	sub := newSubscription(ctx, nil)
	sub.run(func(ctx context.Context) {
		defer ticker.Stop()

		point := geo.NewPoint(ss.start.Latitude, ss.start.Longitude)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				point = point.PointAtDistanceAndBearing(stepKm, ss.bearing)
				sub.deliver(callback, models.LocationSample{
					Latitude:  point.Lat(),
					Longitude: point.Lng(),
					Altitude:  ss.altitude,
					Speed:     ss.speed,
					Bearing:   ss.bearing,
					Timestamp: ss.clock.Now(),
				})
			}
		}
	})

	return sub, nil
}
