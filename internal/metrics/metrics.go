package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media server.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	streamsCreatedTotal prometheus.Counter
	streamsFailedTotal  *prometheus.CounterVec
	streamsStoppedTotal prometheus.Counter
	artifactsServed     *prometheus.CounterVec
	activeStreams       prometheus.Gauge
	mediaFiles          prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaserver_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaserver_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		streamsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaserver_streams_created_total",
			Help: "Total number of HLS streams created",
		}),
		streamsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaserver_streams_failed_total",
			Help: "Total number of HLS stream creations that failed, by reason",
		}, []string{"reason"}),
		streamsStoppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaserver_streams_stopped_total",
			Help: "Total number of HLS streams stopped",
		}),
		artifactsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaserver_hls_artifacts_served_total",
			Help: "Total number of playlists and segments served",
		}, []string{"kind"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaserver_active_streams",
			Help: "Number of registered HLS streams",
		}),
		mediaFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaserver_media_files",
			Help: "Number of media files in the catalog",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.streamsCreatedTotal,
		m.streamsFailedTotal,
		m.streamsStoppedTotal,
		m.artifactsServed,
		m.activeStreams,
		m.mediaFiles,
	)

	return m
}

// A nil *Metrics ignores all updates.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

func (m *Metrics) IncStreamsCreated() {
	if m == nil {
		return
	}
	m.streamsCreatedTotal.Inc()
}

func (m *Metrics) IncStreamsFailed(reason string) {
	if m == nil {
		return
	}
	m.streamsFailedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncStreamsStopped() {
	if m == nil {
		return
	}
	m.streamsStoppedTotal.Inc()
}

func (m *Metrics) IncPlaylistsServed() {
	if m == nil {
		return
	}
	m.artifactsServed.WithLabelValues("playlist").Inc()
}

func (m *Metrics) IncSegmentsServed() {
	if m == nil {
		return
	}
	m.artifactsServed.WithLabelValues("segment").Inc()
}

func (m *Metrics) SetActiveStreams(n int) {
	if m == nil {
		return
	}
	m.activeStreams.Set(float64(n))
}

func (m *Metrics) SetMediaFiles(n int) {
	if m == nil {
		return
	}
	m.mediaFiles.Set(float64(n))
}

// Handler serves the registry. updateGauges is called before each scrape
// to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		handler.ServeHTTP(w, r)
	})
}
