package hlsstream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-mediaserver/internal/metrics"
	"github.com/m1k1o/go-mediaserver/internal/utils"
	"github.com/m1k1o/go-mediaserver/pkg/hlsstream"
)

type ModuleCtx struct {
	logger  zerolog.Logger
	config  Config
	catalog Catalog
	metrics *metrics.Metrics

	registry *hlsstream.Registry
	reader   *hlsstream.Reader
}

func New(config *Config, catalog Catalog, m *metrics.Metrics) *ModuleCtx {
	c := config.withDefaultValues()
	registry := hlsstream.NewRegistry(c.Config)

	module := &ModuleCtx{
		logger:  log.With().Str("module", "hlsstream").Logger(),
		config:  c,
		catalog: catalog,
		metrics: m,

		registry: registry,
		reader:   hlsstream.NewReader(registry),
	}

	registry.Start()
	return module
}

// Shutdown stops every stream and the idle reaper.
func (m *ModuleCtx) Shutdown() {
	if err := m.registry.Shutdown(); err != nil {
		m.logger.Warn().Err(err).Msg("registry shutdown")
	}
}

// ActiveStreams is the number of registered streams.
func (m *ModuleCtx) ActiveStreams() int {
	return m.registry.Len()
}

func (m *ModuleCtx) Mount(r chi.Router) {
	r.Route("/api/hls", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if m.config.CreateRateLimit > 0 {
				r.Use(m.rateLimit())
			}
			r.Get("/create", m.createStream)
			r.Post("/create", m.createStream)
		})

		r.Get("/status/{streamID}", m.streamStatus)
		r.Get("/list", m.listStreams)
		r.Get("/stop/{streamID}", m.stopStream)
		r.Post("/stop/{streamID}", m.stopStream)
	})

	r.Route("/hls/{streamID}", func(r chi.Router) {
		r.Use(cors)

		r.Get("/"+hlsstream.PlaylistName, m.playlist)
		r.Get("/{segment}", m.segment)
		r.Get("/"+hlsstream.SegmentsDir+"/{segment}", m.segment)
	})
}

func (m *ModuleCtx) rateLimit() func(http.Handler) http.Handler {
	window := m.config.CreateRateWindow

	return httprate.Limit(
		m.config.CreateRateLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			utils.HttpJsonError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
		}),
	)
}

// players are usually served from another origin
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *ModuleCtx) createStream(w http.ResponseWriter, r *http.Request) {
	mediaID := r.URL.Query().Get("media_id")
	if mediaID == "" {
		utils.HttpJsonError(w, http.StatusBadRequest, "Missing media_id parameter")
		return
	}

	media, ok := m.catalog.Get(mediaID)
	if !ok {
		utils.HttpJsonError(w, http.StatusNotFound, "Media not found")
		return
	}

	// one stream per media unless the client asks otherwise
	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		streamID = "stream_" + mediaID
	}

	id, err := m.registry.CreateStream(media.Path, mediaID, hlsstream.StreamConfig{
		StreamID:         streamID,
		ExpectedDuration: media.ExpectedDuration(),
	})
	if err != nil {
		status, reason := createErrorStatus(err)
		m.metrics.IncStreamsFailed(reason)

		logger := m.logger.With().Str("media", mediaID).Str("stream", streamID).Logger()
		if status >= 500 {
			logger.Error().Err(err).Msg("unable to create stream")
		} else {
			logger.Warn().Err(err).Msg("stream request rejected")
		}

		utils.HttpJsonError(w, status, err.Error())
		return
	}

	m.metrics.IncStreamsCreated()
	utils.HttpJson(w, http.StatusOK, createResponse{
		Success:  true,
		StreamID: id,
		Message:  "Stream created",
	})
}

func createErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, hlsstream.ErrInputNotFound):
		return http.StatusNotFound, "input_not_found"
	case errors.Is(err, hlsstream.ErrInvalidName),
		errors.Is(err, hlsstream.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, hlsstream.ErrStreamStopping):
		return http.StatusConflict, "stopping"
	case errors.Is(err, hlsstream.ErrLaunchFailure):
		return http.StatusInternalServerError, "launch_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (m *ModuleCtx) streamStatus(w http.ResponseWriter, r *http.Request) {
	status := m.registry.GetStatus(chi.URLParam(r, "streamID"))

	code := http.StatusOK
	if status.Status == hlsstream.StateNotFound {
		code = http.StatusNotFound
	}

	utils.HttpJson(w, code, status)
}

func (m *ModuleCtx) listStreams(w http.ResponseWriter, r *http.Request) {
	streams := m.registry.ListStreams()

	utils.HttpJson(w, http.StatusOK, listResponse{
		Streams: streams,
		Count:   len(streams),
	})
}

func (m *ModuleCtx) stopStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	if !m.registry.StopStream(streamID) {
		utils.HttpJson(w, http.StatusNotFound, stopResponse{
			Success:  false,
			Message:  "Stream not found",
			StreamID: streamID,
		})
		return
	}

	m.metrics.IncStreamsStopped()
	utils.HttpJson(w, http.StatusOK, stopResponse{
		Success:  true,
		Message:  "Stream stopped",
		StreamID: streamID,
	})
}

func (m *ModuleCtx) playlist(w http.ResponseWriter, r *http.Request) {
	data, err := m.reader.Playlist(chi.URLParam(r, "streamID"))
	if err != nil {
		m.readError(w, err, "Playlist not found")
		return
	}

	m.metrics.IncPlaylistsServed()

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (m *ModuleCtx) segment(w http.ResponseWriter, r *http.Request) {
	data, err := m.reader.Segment(chi.URLParam(r, "streamID"), chi.URLParam(r, "segment"))
	if err != nil {
		m.readError(w, err, "Segment not found")
		return
	}

	m.metrics.IncSegmentsServed()

	w.Header().Set("Content-Type", "video/MP2T")
	_, _ = w.Write(data)
}

func (m *ModuleCtx) readError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, hlsstream.ErrInvalidName):
		utils.HttpJsonError(w, http.StatusBadRequest, "Invalid segment name")
	case errors.Is(err, hlsstream.ErrNotFound):
		utils.HttpJsonError(w, http.StatusNotFound, notFound)
	default:
		m.logger.Error().Err(err).Msg("unable to read stream file")
		utils.HttpJsonError(w, http.StatusInternalServerError, "Unable to read stream file")
	}
}
