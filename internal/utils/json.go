package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HttpJson writes v as a JSON response with the given status code.
func HttpJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("unable to encode json response")
	}
}

// HttpJsonError writes {"success":false,"error":message}.
func HttpJsonError(w http.ResponseWriter, status int, message string) {
	HttpJson(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
