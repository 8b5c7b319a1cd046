package media

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-mediaserver/internal/utils"
	"github.com/m1k1o/go-mediaserver/pkg/catalog"
)

type ModuleCtx struct {
	logger  zerolog.Logger
	config  Config
	catalog *catalog.Catalog
	started time.Time
}

func New(config *Config, prober catalog.Prober) *ModuleCtx {
	c := config.withDefaultValues()

	return &ModuleCtx{
		logger:  log.With().Str("module", "media").Logger(),
		config:  c,
		catalog: catalog.New(c.Config, prober),
		started: time.Now(),
	}
}

// Catalog is used by other modules to resolve media ids.
func (m *ModuleCtx) Catalog() *catalog.Catalog {
	return m.catalog
}

func (m *ModuleCtx) Scan(ctx context.Context) (int, error) {
	return m.catalog.Scan(ctx)
}

func (m *ModuleCtx) MediaFiles() int {
	return m.catalog.Len()
}

func (m *ModuleCtx) Mount(r chi.Router) {
	r.Get("/api/status", m.status)

	r.Route("/api/media", func(r chi.Router) {
		r.Get("/list", m.list)
		r.Get("/scan", m.scan)
		r.Post("/scan", m.scan)
		r.Get("/search", m.search)
		r.Get("/{mediaID}", m.get)
	})
}

func (m *ModuleCtx) status(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	utils.HttpJson(w, http.StatusOK, statusResponse{
		Status:     "running",
		Version:    m.config.Version,
		Time:       now,
		Uptime:     int64(now.Sub(m.started).Seconds()),
		MediaFiles: m.catalog.Len(),
		ScannedAt:  m.catalog.ScannedAt(),
	})
}

func (m *ModuleCtx) list(w http.ResponseWriter, r *http.Request) {
	entries := m.catalog.All()

	res := listResponse{
		MediaFiles: entries,
		Count:      len(entries),
	}
	if len(entries) == 0 {
		res.Message = "No media files found"
	}

	utils.HttpJson(w, http.StatusOK, res)
}

func (m *ModuleCtx) scan(w http.ResponseWriter, r *http.Request) {
	count, err := m.catalog.Scan(r.Context())
	if err != nil {
		m.logger.Error().Err(err).Msg("media scan failed")
		utils.HttpJson(w, http.StatusInternalServerError, scanResponse{
			Success: false,
			Message: "Failed to scan media directory",
			Path:    m.config.MediaDir,
			Error:   err.Error(),
		})
		return
	}

	utils.HttpJson(w, http.StatusOK, scanResponse{
		Success: true,
		Message: "Media directory scanned successfully",
		Path:    m.config.MediaDir,
		Count:   count,
	})
}

func (m *ModuleCtx) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results := m.catalog.Search(query)

	utils.HttpJson(w, http.StatusOK, searchResponse{
		Query:      query,
		MediaFiles: results,
		Count:      len(results),
	})
}

func (m *ModuleCtx) get(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")

	entry, ok := m.catalog.Get(mediaID)
	if !ok {
		utils.HttpJson(w, http.StatusNotFound, map[string]any{
			"error":        "Media not found",
			"requested_id": mediaID,
		})
		return
	}

	utils.HttpJson(w, http.StatusOK, entry)
}
