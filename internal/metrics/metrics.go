package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SamplesReceived    prometheus.Counter
	SamplesSuperseded  prometheus.Counter
	Renders            prometheus.Counter
	MapFetches         *prometheus.CounterVec
	FetchSeconds       *prometheus.HistogramVec
	InflightFetches    prometheus.Gauge
	UIClients          prometheus.Gauge
	PositionsPersisted *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SamplesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lookout_location_samples_received_total",
			Help: "Total number of location samples delivered by the location source.",
		}),
		SamplesSuperseded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lookout_location_samples_superseded_total",
			Help: "Total number of location samples dropped before rendering because a newer one arrived.",
		}),
		Renders: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lookout_renders_total",
			Help: "Total number of render ticks that applied a location sample to the screen.",
		}),
		MapFetches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_map_fetches_total",
			Help: "Total number of static map fetches by outcome.",
		}, []string{"status"}),
		FetchSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookout_map_fetch_duration_seconds",
			Help:    "Duration of requests to the map tile provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		InflightFetches: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lookout_map_fetches_in_flight",
			Help: "Current number of map fetches that have not completed.",
		}),
		UIClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lookout_ui_clients",
			Help: "Current number of connected UI clients.",
		}),
		PositionsPersisted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_positions_persisted_total",
			Help: "Total number of last-known-position writes by outcome.",
		}, []string{"status"}),
	}
}
