package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/UnknownOlympus/lookout/internal/coalescer"
	"github.com/UnknownOlympus/lookout/internal/location"
	"github.com/UnknownOlympus/lookout/internal/mapview"
	"github.com/UnknownOlympus/lookout/internal/metrics"
	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/UnknownOlympus/lookout/internal/repository"
	"github.com/UnknownOlympus/lookout/internal/ui"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

const (
	screenPadding = 16

	headingText   = "Running GPS"
	latitudeText  = "Latitude : "
	longitudeText = "Longitude : "
	altitudeText  = "Altitude : "
	unavailable   = "GPS unavailable: "

	defaultTickInterval    = 250 * time.Millisecond
	defaultPersistInterval = 5 * time.Second
	defaultFetchTimeout    = 10 * time.Second
	defaultMapWidth        = 700
	defaultMapHeight       = 500
	flushTimeout           = 5 * time.Second
)

// Errors returned by Run when the screen cannot be started.
var (
	ErrScreenClosed  = errors.New("screen service is closed")
	ErrScreenRunning = errors.New("screen service is already running")
)

// Options tunes a ScreenService. Zero values fall back to defaults.
type Options struct {
	DeviceID        string        // Key of the persisted last known position.
	TickInterval    time.Duration // Minimum time between two renders.
	PersistInterval time.Duration // Cadence of last known position writes.
	FetchTimeout    time.Duration // Upper bound of a single map fetch.
	Zoom            int           // Map zoom level.
	Width           int           // Map widget width in pixels.
	Height          int           // Map widget height in pixels.
	ProviderName    string        // Map provider name for metrics labeling.
	Clock           clock.Clock   // Clock driving the tickers.
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = defaultPersistInterval
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = defaultFetchTimeout
	}
	if o.Width <= 0 {
		o.Width = defaultMapWidth
	}
	if o.Height <= 0 {
		o.Height = defaultMapHeight
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}

	return o
}

// ScreenService draws the live GPS screen. Location samples are coalesced and
// rendered at most once per tick; each render replaces the coordinate labels
// and starts a map fetch that cancels the previous one.
type ScreenService struct {
	log      *slog.Logger         // Logger for logging service activities
	host     ui.Host              // Host the widgets live on
	source   location.Source      // Source of location samples
	provider mapview.Provider     // Static map provider
	repo     repository.Interface // Position store, nil when persistence is disabled
	metrics  *metrics.Metrics     // Metrics for tracking service performance
	opts     Options

	samples   *coalescer.Coalescer // Samples waiting for the next render tick
	toPersist *coalescer.Coalescer // Rendered samples waiting for the next store write

	mu          sync.Mutex
	running     bool
	closed      bool
	cancel      context.CancelFunc
	sub         location.Subscription
	generation  uint64
	cancelFetch context.CancelFunc
	fetches     sync.WaitGroup

	heading   ui.LabelHandle
	latitude  ui.LabelHandle
	longitude ui.LabelHandle
	altitude  ui.LabelHandle
	image     ui.ImageHandle

	closeOnce sync.Once
	closeErr  error
}

// NewScreenService creates a new instance of ScreenService. repo may be nil,
// in which case the last known position is neither loaded nor saved.
func NewScreenService(
	log *slog.Logger,
	host ui.Host,
	source location.Source,
	provider mapview.Provider,
	repo repository.Interface,
	metrics *metrics.Metrics,
	opts Options,
) *ScreenService {
	ss := &ScreenService{
		log:       log,
		host:      host,
		source:    source,
		provider:  provider,
		repo:      repo,
		metrics:   metrics,
		opts:      opts.withDefaults(),
		toPersist: coalescer.New(),
	}
	ss.samples = coalescer.New(coalescer.WithSupersededHook(ss.metrics.SamplesSuperseded.Inc))

	return ss
}

// Run lays out the screen, subscribes to the location source and renders at
// the configured tick rate until ctx is cancelled or Close is called.
// It tears the screen down before returning.
func (ss *ScreenService) Run(ctx context.Context) error {
	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return ErrScreenClosed
	}
	if ss.running {
		ss.mu.Unlock()
		return ErrScreenRunning
	}
	ss.running = true
	ctx, cancel := context.WithCancel(ctx)
	ss.cancel = cancel
	ss.layout()
	ss.mu.Unlock()

	ss.seed(ctx)

	ticker := ss.opts.Clock.Ticker(ss.opts.TickInterval)
	defer ticker.Stop()

	var persistC <-chan time.Time
	if ss.repo != nil {
		persistTicker := ss.opts.Clock.Ticker(ss.opts.PersistInterval)
		defer persistTicker.Stop()
		persistC = persistTicker.C
	}

	ss.subscribe(ctx)

	ss.log.InfoContext(ctx, "Screen service started", "tick_interval", ss.opts.TickInterval)

	for {
		select {
		case <-ctx.Done():
			ss.log.InfoContext(ctx, "Screen service stopped.")
			return ss.Close()
		case <-ticker.C:
			ss.tick(ctx)
		case <-persistC:
			ss.persist(ctx)
		}
	}
}

// Close tears the screen down: it stops the location subscription, cancels the
// in-flight map fetch, waits for fetches to finish and writes the last rendered
// position. No widget is touched once Close has started. Close is idempotent.
func (ss *ScreenService) Close() error {
	ss.closeOnce.Do(func() {
		ss.mu.Lock()
		ss.closed = true
		if ss.cancelFetch != nil {
			ss.cancelFetch()
		}
		sub := ss.sub
		cancel := ss.cancel
		ss.mu.Unlock()

		var err error
		if sub != nil {
			if stopErr := sub.Stop(); stopErr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to stop location updates: %w", stopErr))
			}
		}
		if cancel != nil {
			cancel()
		}

		ss.fetches.Wait()

		err = multierr.Append(err, ss.flush())
		ss.closeErr = err
	})

	return ss.closeErr
}

// layout must be called with ss.mu held.
func (ss *ScreenService) layout() {
	ss.host.SetPadding(screenPadding, screenPadding, screenPadding, screenPadding)
	ss.heading = ss.host.CreateLabel(10, 10, 500, 100, headingText)
	ss.latitude = ss.host.CreateLabel(10, 100, 500, 100, latitudeText)
	ss.longitude = ss.host.CreateLabel(10, 200, 500, 100, longitudeText)
	ss.altitude = ss.host.CreateLabel(10, 300, 500, 100, altitudeText)
	ss.image = ss.host.CreateImage(0, 400, ss.opts.Width, ss.opts.Height, "")
}

// seed shows the last known position until the first live sample is rendered.
func (ss *ScreenService) seed(ctx context.Context) {
	if ss.repo == nil {
		return
	}

	sample, err := ss.repo.LoadLastPosition(ctx, ss.opts.DeviceID)
	if err != nil {
		ss.log.ErrorContext(ctx, "Failed to load last known position", "device", ss.opts.DeviceID, "error", err)
		return
	}
	if sample == nil {
		ss.log.DebugContext(ctx, "No last known position stored", "device", ss.opts.DeviceID)
		return
	}

	ss.log.InfoContext(ctx, "Showing last known position", "device", ss.opts.DeviceID, "recorded_at", sample.Timestamp)
	ss.render(ctx, *sample)
}

func (ss *ScreenService) subscribe(ctx context.Context) {
	sub, err := ss.source.Start(ctx, ss.onSample)
	if err != nil {
		if errors.Is(err, location.ErrSensorUnavailable) {
			ss.log.ErrorContext(ctx, "Location sensor is unavailable", "error", err)
		} else {
			ss.log.ErrorContext(ctx, "Failed to start location updates", "error", err)
		}

		ss.mu.Lock()
		defer ss.mu.Unlock()
		if !ss.closed {
			ss.setText(ctx, ss.heading, unavailable+err.Error())
		}

		return
	}

	ss.mu.Lock()
	if !ss.closed {
		ss.sub = sub
		ss.mu.Unlock()
		return
	}
	ss.mu.Unlock()

	if err = sub.Stop(); err != nil {
		ss.log.ErrorContext(ctx, "Failed to stop location updates", "error", err)
	}
}

func (ss *ScreenService) onSample(sample models.LocationSample) {
	ss.metrics.SamplesReceived.Inc()
	ss.samples.OnSample(sample)
}

func (ss *ScreenService) tick(ctx context.Context) {
	sample, ok := ss.samples.Tick()
	if !ok {
		return
	}

	if !ss.render(ctx, sample) {
		return
	}

	ss.metrics.Renders.Inc()
	ss.toPersist.OnSample(sample)
}

// render applies sample to the labels and replaces the in-flight map fetch.
// It reports false when the screen is already torn down.
func (ss *ScreenService) render(ctx context.Context, sample models.LocationSample) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.closed {
		return false
	}

	ss.setText(ctx, ss.latitude, latitudeText+formatFloat(sample.Latitude))
	ss.setText(ctx, ss.longitude, longitudeText+formatFloat(sample.Longitude))
	ss.setText(ctx, ss.altitude, altitudeText+formatFloat(sample.Altitude))

	if ss.cancelFetch != nil {
		ss.cancelFetch()
	}
	ss.generation++

	fetchCtx, cancel := context.WithTimeout(ctx, ss.opts.FetchTimeout)
	ss.cancelFetch = cancel

	ss.fetches.Add(1)
	ss.metrics.InflightFetches.Inc()
	go ss.fetch(fetchCtx, cancel, ss.generation, sample.Coordinates())

	return true
}

func (ss *ScreenService) fetch(ctx context.Context, cancel context.CancelFunc, generation uint64, center models.Coordinates) {
	defer ss.fetches.Done()
	defer ss.metrics.InflightFetches.Dec()
	defer cancel()

	req := mapview.Request{Center: center, Zoom: ss.opts.Zoom, Width: ss.opts.Width, Height: ss.opts.Height}

	startTime := time.Now()
	img, err := ss.provider.StaticMap(ctx, req)
	duration := time.Since(startTime).Seconds()
	ss.metrics.FetchSeconds.WithLabelValues(ss.opts.ProviderName).Observe(duration)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			ss.log.DebugContext(ctx, "Map fetch cancelled", "center", center.String())
			ss.metrics.MapFetches.WithLabelValues("cancelled").Inc()
			return
		}
		ss.log.ErrorContext(ctx, "Failed to fetch map", "center", center.String(), "error", err)
		ss.metrics.MapFetches.WithLabelValues("failure").Inc()
		return
	}

	url, err := mapview.EncodeDataURL(img, ss.opts.Width, ss.opts.Height)
	if err != nil {
		ss.log.ErrorContext(ctx, "Failed to prepare map image", "center", center.String(), "error", err)
		ss.metrics.MapFetches.WithLabelValues("failure").Inc()
		return
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.closed || generation != ss.generation {
		ss.log.DebugContext(ctx, "Discarding superseded map", "center", center.String())
		ss.metrics.MapFetches.WithLabelValues("superseded").Inc()
		return
	}

	if err = ss.host.SetImageURL(ss.image, url); err != nil {
		ss.log.ErrorContext(ctx, "Failed to update map widget", "error", err)
		ss.metrics.MapFetches.WithLabelValues("failure").Inc()
		return
	}

	ss.metrics.MapFetches.WithLabelValues("success").Inc()
}

func (ss *ScreenService) persist(ctx context.Context) {
	if err := ss.save(ctx); err != nil {
		ss.log.ErrorContext(ctx, "Failed to persist last known position", "device", ss.opts.DeviceID, "error", err)
	}
}

// flush writes the last rendered position that is still waiting for the persist tick.
func (ss *ScreenService) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	return ss.save(ctx)
}

func (ss *ScreenService) save(ctx context.Context) error {
	if ss.repo == nil {
		return nil
	}

	sample, ok := ss.toPersist.Tick()
	if !ok {
		return nil
	}

	if err := ss.repo.SaveLastPosition(ctx, ss.opts.DeviceID, sample); err != nil {
		ss.metrics.PositionsPersisted.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to persist last known position: %w", err)
	}

	ss.metrics.PositionsPersisted.WithLabelValues("success").Inc()
	ss.log.DebugContext(ctx, "Last known position saved", "device", ss.opts.DeviceID)

	return nil
}

// setText must be called with ss.mu held.
func (ss *ScreenService) setText(ctx context.Context, handle ui.LabelHandle, text string) {
	if err := ss.host.SetLabelText(handle, text); err != nil {
		ss.log.ErrorContext(ctx, "Failed to update label", "text", text, "error", err)
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
