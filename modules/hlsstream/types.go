package hlsstream

import (
	"time"

	"github.com/m1k1o/go-mediaserver/pkg/catalog"
	"github.com/m1k1o/go-mediaserver/pkg/hlsstream"
)

type Config struct {
	hlsstream.Config

	// create requests allowed per client within the window, 0 disables
	CreateRateLimit  int
	CreateRateWindow time.Duration
}

func (c Config) withDefaultValues() Config {
	if c.CreateRateWindow == 0 {
		c.CreateRateWindow = time.Minute
	}
	return c
}

// Catalog resolves media ids to files.
type Catalog interface {
	Get(id string) (catalog.Entry, bool)
}

type createResponse struct {
	Success  bool   `json:"success"`
	StreamID string `json:"stream_id"`
	Message  string `json:"message"`
}

type stopResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	StreamID string `json:"stream_id"`
}

type listResponse struct {
	Streams []string `json:"streams"`
	Count   int      `json:"count"`
}
