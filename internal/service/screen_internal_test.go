package service

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/lookout/internal/location"
	"github.com/UnknownOlympus/lookout/internal/mapview"
	"github.com/UnknownOlympus/lookout/internal/metrics"
	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/UnknownOlympus/lookout/internal/ui"
	"github.com/UnknownOlympus/lookout/test/mocks"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tickInterval = 200 * time.Millisecond

// recordingHost is an in-memory ui.Host that counts every mutation.
type recordingHost struct {
	mu        sync.Mutex
	nextID    int
	texts     map[int]string
	urls      map[int]string
	padding   [4]int
	mutations int
	imageSets int
}

func newRecordingHost() *recordingHost {
	return &recordingHost{texts: make(map[int]string), urls: make(map[int]string)}
}

func (h *recordingHost) CreateLabel(_, _, _, _ int, text string) ui.LabelHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.texts[h.nextID] = text
	h.mutations++

	return ui.LabelHandle(h.nextID)
}

func (h *recordingHost) SetLabelText(handle ui.LabelHandle, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.texts[int(handle)]; !ok {
		return ui.ErrUnknownWidget
	}
	h.texts[int(handle)] = text
	h.mutations++

	return nil
}

func (h *recordingHost) CreateImage(_, _, _, _ int, url string) ui.ImageHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.urls[h.nextID] = url
	h.mutations++

	return ui.ImageHandle(h.nextID)
}

func (h *recordingHost) SetImageURL(handle ui.ImageHandle, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.urls[int(handle)]; !ok {
		return ui.ErrUnknownWidget
	}
	h.urls[int(handle)] = url
	h.mutations++
	h.imageSets++

	return nil
}

func (h *recordingHost) SetPadding(top, right, bottom, left int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.padding = [4]int{top, right, bottom, left}
	h.mutations++
}

// labels returns the label texts in creation order: heading, latitude, longitude, altitude.
func (h *recordingHost) labels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, 4)
	for id := 1; id <= h.nextID; id++ {
		if text, ok := h.texts[id]; ok {
			out = append(out, text)
		}
	}

	return out
}

func (h *recordingHost) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.mutations, h.imageSets
}

func (h *recordingHost) imageURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, url := range h.urls {
		return url
	}

	return ""
}

type fixture struct {
	host     *recordingHost
	source   *mocks.Source
	sub      *mocks.Subscription
	provider *mocks.Provider
	repo     *mocks.Interface
	metrics  *metrics.Metrics
	clock    *clock.Mock
	service  *ScreenService
}

func newFixture(t *testing.T, withRepo bool) *fixture {
	t.Helper()

	fx := &fixture{
		host:     newRecordingHost(),
		source:   mocks.NewSource(t),
		sub:      mocks.NewSubscription(t),
		provider: mocks.NewProvider(t),
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		clock:    clock.NewMock(),
	}

	opts := Options{
		DeviceID:        "car-1",
		TickInterval:    tickInterval,
		PersistInterval: time.Second,
		FetchTimeout:    time.Second,
		Zoom:            20,
		Width:           70,
		Height:          50,
		ProviderName:    "test",
		Clock:           fx.clock,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if withRepo {
		fx.repo = mocks.NewInterface(t)
		fx.service = NewScreenService(logger, fx.host, fx.source, fx.provider, fx.repo, fx.metrics, opts)
	} else {
		fx.service = NewScreenService(logger, fx.host, fx.source, fx.provider, nil, fx.metrics, opts)
	}

	return fx
}

// start runs the service and returns the callback the source was started with.
func (fx *fixture) start(t *testing.T) (location.Callback, <-chan error) {
	t.Helper()

	callbacks := make(chan location.Callback, 1)
	fx.source.On("Start", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			callbacks <- args.Get(1).(location.Callback)
		}).
		Return(fx.sub, nil).
		Once()

	errCh := make(chan error, 1)
	go func() {
		errCh <- fx.service.Run(t.Context())
	}()

	var callback location.Callback
	select {
	case callback = <-callbacks:
	case <-time.After(2 * time.Second):
		t.Fatal("location source was not started")
	}

	require.Eventually(t, func() bool {
		fx.service.mu.Lock()
		defer fx.service.mu.Unlock()

		return fx.service.sub != nil
	}, 2*time.Second, time.Millisecond)

	return callback, errCh
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	return img
}

func sample(i int) models.LocationSample {
	return models.LocationSample{
		Latitude:  37.42 + float64(i)*0.0001,
		Longitude: -122.08,
		Altitude:  float64(i),
	}
}

func TestScreen_Layout(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	_, errCh := fx.start(t)
	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"Running GPS", "Latitude : ", "Longitude : ", "Altitude : "}, fx.host.labels())
	assert.Equal(t, [4]int{16, 16, 16, 16}, fx.host.padding)
	assert.Empty(t, fx.host.imageURL())
}

func TestScreen_BurstRendersOnce(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	last := sample(999)
	fx.provider.On("StaticMap", mock.Anything, mapview.Request{
		Center: last.Coordinates(), Zoom: 20, Width: 70, Height: 50,
	}).Return(testImage(), nil).Once()

	callback, errCh := fx.start(t)

	for i := range 1000 {
		callback(sample(i))
	}
	fx.clock.Add(tickInterval)

	assert.Eventually(t, func() bool {
		_, imageSets := fx.host.counts()
		return imageSets == 1
	}, 2*time.Second, 5*time.Millisecond)

	labels := fx.host.labels()
	assert.Equal(t, "Latitude : "+formatFloat(last.Latitude), labels[1])
	assert.Equal(t, "Longitude : -122.08", labels[2])
	assert.Equal(t, "Altitude : 999", labels[3])
	assert.True(t, strings.HasPrefix(fx.host.imageURL(), "data:image/png;base64,"))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(fx.metrics.Renders) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 1000.0, testutil.ToFloat64(fx.metrics.SamplesReceived), 0)
	assert.InDelta(t, 999.0, testutil.ToFloat64(fx.metrics.SamplesSuperseded), 0)

	t.Run("idle ticks do not render", func(t *testing.T) {
		before, _ := fx.host.counts()
		for range 5 {
			fx.clock.Add(tickInterval)
		}

		after, _ := fx.host.counts()
		assert.Equal(t, before, after)
		assert.InDelta(t, 1.0, testutil.ToFloat64(fx.metrics.Renders), 0)
	})

	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)
}

func TestScreen_NoSamplesNoRender(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	_, errCh := fx.start(t)
	before, _ := fx.host.counts()

	for range 10 {
		fx.clock.Add(tickInterval)
	}

	after, _ := fx.host.counts()
	assert.Equal(t, before, after)
	assert.InDelta(t, 0.0, testutil.ToFloat64(fx.metrics.Renders), 0)

	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)
}

func TestScreen_TeardownDuringFetch(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	fetching := make(chan struct{})
	fx.provider.On("StaticMap", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(fetching)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).
		Once()

	callback, errCh := fx.start(t)
	callback(sample(1))
	fx.clock.Add(tickInterval)

	select {
	case <-fetching:
	case <-time.After(2 * time.Second):
		t.Fatal("map fetch was not started")
	}

	require.NoError(t, fx.service.Close())
	require.NoError(t, fx.service.Close(), "Close is idempotent")
	require.NoError(t, <-errCh)

	mutations, imageSets := fx.host.counts()
	assert.Zero(t, imageSets)
	assert.InDelta(t, 1.0, testutil.ToFloat64(fx.metrics.MapFetches.WithLabelValues("cancelled")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(fx.metrics.InflightFetches), 0)

	t.Run("no mutation after teardown", func(t *testing.T) {
		callback(sample(2))
		fx.clock.Add(tickInterval)

		after, _ := fx.host.counts()
		assert.Equal(t, mutations, after)
		assert.ErrorIs(t, fx.service.Run(t.Context()), ErrScreenClosed)
	})
}

func TestScreen_SupersededFetchIgnored(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	first := sample(1)
	second := sample(2)

	fx.provider.On("StaticMap", mock.Anything, mock.MatchedBy(func(req mapview.Request) bool {
		return req.Center == first.Coordinates()
	})).
		Run(func(_ mock.Arguments) {
			close(firstStarted)
			<-releaseFirst
		}).
		Return(testImage(), nil).
		Once()
	fx.provider.On("StaticMap", mock.Anything, mock.MatchedBy(func(req mapview.Request) bool {
		return req.Center == second.Coordinates()
	})).Return(testImage(), nil).Once()

	callback, errCh := fx.start(t)

	callback(first)
	fx.clock.Add(tickInterval)
	<-firstStarted

	callback(second)
	fx.clock.Add(tickInterval)

	assert.Eventually(t, func() bool {
		_, imageSets := fx.host.counts()
		return imageSets == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(releaseFirst)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(fx.metrics.MapFetches.WithLabelValues("superseded")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, imageSets := fx.host.counts()
	assert.Equal(t, 1, imageSets, "a late result of an older fetch must not replace the newer image")

	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)
}

func TestScreen_FetchFailureKeepsImage(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	fx.provider.On("StaticMap", mock.Anything, mock.Anything).Return(testImage(), nil).Once()
	fx.provider.On("StaticMap", mock.Anything, mock.Anything).Return(nil, mapview.ErrUnexpectedStatus).Once()

	callback, errCh := fx.start(t)

	callback(sample(1))
	fx.clock.Add(tickInterval)
	assert.Eventually(t, func() bool {
		_, imageSets := fx.host.counts()
		return imageSets == 1
	}, 2*time.Second, 5*time.Millisecond)
	shown := fx.host.imageURL()

	callback(sample(2))
	fx.clock.Add(tickInterval)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(fx.metrics.MapFetches.WithLabelValues("failure")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, shown, fx.host.imageURL())
	assert.Equal(t, "Altitude : 2", fx.host.labels()[3], "labels still follow the newest sample")

	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)
}

func TestScreen_SensorUnavailable(t *testing.T) {
	fx := newFixture(t, false)

	started := make(chan struct{})
	fx.source.On("Start", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) { close(started) }).
		Return(nil, fmt.Errorf("failed to open /dev/serial0: %w", location.ErrSensorUnavailable)).
		Once()

	errCh := make(chan error, 1)
	go func() {
		errCh <- fx.service.Run(t.Context())
	}()
	<-started

	assert.Eventually(t, func() bool {
		return strings.HasPrefix(fx.host.labels()[0], "GPS unavailable: ")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, fx.host.labels()[0], location.ErrSensorUnavailable.Error())

	fx.clock.Add(tickInterval)
	assert.InDelta(t, 0.0, testutil.ToFloat64(fx.metrics.Renders), 0)

	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)
}

func TestScreen_LastKnownPosition(t *testing.T) {
	t.Run("seeds the screen from the store", func(t *testing.T) {
		fx := newFixture(t, true)
		fx.sub.On("Stop").Return(nil).Once()

		stored := &models.LocationSample{Latitude: 50.45, Longitude: 30.52, Altitude: 179}
		fx.repo.On("LoadLastPosition", mock.Anything, "car-1").Return(stored, nil).Once()
		fx.provider.On("StaticMap", mock.Anything, mock.MatchedBy(func(req mapview.Request) bool {
			return req.Center == stored.Coordinates()
		})).Return(testImage(), nil).Once()

		_, errCh := fx.start(t)

		labels := fx.host.labels()
		assert.Equal(t, "Latitude : 50.45", labels[1])
		assert.Equal(t, "Longitude : 30.52", labels[2])
		assert.Equal(t, "Altitude : 179", labels[3])
		assert.Eventually(t, func() bool {
			_, imageSets := fx.host.counts()
			return imageSets == 1
		}, 2*time.Second, 5*time.Millisecond)

		require.NoError(t, fx.service.Close())
		require.NoError(t, <-errCh)
	})

	t.Run("load failure leaves the screen empty", func(t *testing.T) {
		fx := newFixture(t, true)
		fx.sub.On("Stop").Return(nil).Once()
		fx.repo.On("LoadLastPosition", mock.Anything, "car-1").Return(nil, assert.AnError).Once()

		_, errCh := fx.start(t)

		assert.Equal(t, "Latitude : ", fx.host.labels()[1])

		require.NoError(t, fx.service.Close())
		require.NoError(t, <-errCh)
	})

	t.Run("persists the latest rendered sample", func(t *testing.T) {
		fx := newFixture(t, true)
		fx.sub.On("Stop").Return(nil).Once()
		fx.repo.On("LoadLastPosition", mock.Anything, "car-1").Return(nil, nil).Once()
		fx.provider.On("StaticMap", mock.Anything, mock.Anything).Return(testImage(), nil)

		saved := make(chan models.LocationSample, 1)
		fx.repo.On("SaveLastPosition", mock.Anything, "car-1", sample(3)).
			Run(func(args mock.Arguments) { saved <- args.Get(2).(models.LocationSample) }).
			Return(nil).
			Once()

		callback, errCh := fx.start(t)

		callback(sample(2))
		fx.clock.Add(tickInterval)
		assert.Eventually(t, func() bool {
			return testutil.ToFloat64(fx.metrics.Renders) == 1
		}, 2*time.Second, 5*time.Millisecond)

		callback(sample(3))
		fx.clock.Add(tickInterval)
		assert.Eventually(t, func() bool {
			return testutil.ToFloat64(fx.metrics.Renders) == 2
		}, 2*time.Second, 5*time.Millisecond)

		fx.clock.Add(time.Second)

		select {
		case got := <-saved:
			assert.Equal(t, sample(3), got)
		case <-time.After(2 * time.Second):
			t.Fatal("last known position was not saved")
		}

		require.NoError(t, fx.service.Close())
		require.NoError(t, <-errCh)
		assert.InDelta(t, 1.0, testutil.ToFloat64(fx.metrics.PositionsPersisted.WithLabelValues("success")), 0)
	})

	t.Run("close flushes the pending position", func(t *testing.T) {
		fx := newFixture(t, true)
		fx.sub.On("Stop").Return(nil).Once()
		fx.repo.On("LoadLastPosition", mock.Anything, "car-1").Return(nil, nil).Once()
		fx.provider.On("StaticMap", mock.Anything, mock.Anything).Return(testImage(), nil).Once()
		fx.repo.On("SaveLastPosition", mock.Anything, "car-1", sample(5)).Return(assert.AnError).Once()

		callback, errCh := fx.start(t)

		callback(sample(5))
		fx.clock.Add(tickInterval)
		assert.Eventually(t, func() bool {
			return testutil.ToFloat64(fx.metrics.Renders) == 1
		}, 2*time.Second, 5*time.Millisecond)

		err := fx.service.Close()
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorIs(t, <-errCh, assert.AnError)
		assert.InDelta(t, 1.0, testutil.ToFloat64(fx.metrics.PositionsPersisted.WithLabelValues("failure")), 0)
	})
}

func TestScreen_CloseCombinesErrors(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(assert.AnError).Once()

	_, errCh := fx.start(t)

	err := fx.service.Close()
	require.ErrorIs(t, err, assert.AnError)
	require.ErrorIs(t, <-errCh, assert.AnError)
}

func TestScreen_SecondRunRejected(t *testing.T) {
	fx := newFixture(t, false)
	fx.sub.On("Stop").Return(nil).Once()

	_, errCh := fx.start(t)

	require.ErrorIs(t, fx.service.Run(t.Context()), ErrScreenRunning)
	_, imageSets := fx.host.counts()
	assert.Zero(t, imageSets)
	assert.Len(t, fx.host.labels(), 4, "the running screen keeps its single layout")

	require.NoError(t, fx.service.Close())
	require.NoError(t, <-errCh)
	require.ErrorIs(t, fx.service.Run(t.Context()), ErrScreenClosed)
}
