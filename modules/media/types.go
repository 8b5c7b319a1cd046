package media

import (
	"time"

	"github.com/m1k1o/go-mediaserver/pkg/catalog"
)

type Config struct {
	catalog.Config

	Version string
}

func (c Config) withDefaultValues() Config {
	if c.Version == "" {
		c.Version = "dev"
	}
	return c
}

type listResponse struct {
	MediaFiles []catalog.Entry `json:"media_files"`
	Count      int             `json:"count"`
	Message    string          `json:"message,omitempty"`
}

type searchResponse struct {
	Query      string          `json:"query"`
	MediaFiles []catalog.Entry `json:"media_files"`
	Count      int             `json:"count"`
}

type scanResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Time       time.Time `json:"time"`
	Uptime     int64     `json:"uptime"` // seconds
	MediaFiles int       `json:"media_files"`
	ScannedAt  time.Time `json:"scanned_at"`
}
