package player

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-mediaserver/pkg/hlsstream"
)

//go:embed player.html
var playHTML string

type ModuleCtx struct {
	logger zerolog.Logger
	config Config
}

func New(config *Config) *ModuleCtx {
	return &ModuleCtx{
		logger: log.With().Str("module", "player").Logger(),
		config: config.withDefaultValues(),
	}
}

func (m *ModuleCtx) Mount(r chi.Router) {
	r.Get("/player/{streamID}", m.serve)
}

func (m *ModuleCtx) serve(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	// the id ends up in the page, only allow what the registry accepts
	if err := hlsstream.ValidateStreamID(streamID); err != nil {
		http.Error(w, "400 invalid stream id", http.StatusBadRequest)
		return
	}

	html := strings.NewReplacer(
		"{{HLS_JS}}", m.config.HlsJsURL,
		"{{STREAM_ID}}", streamID,
		"{{PLAYLIST}}", "/hls/"+streamID+"/"+hlsstream.PlaylistName,
	).Replace(playHTML)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}
