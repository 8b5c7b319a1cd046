package player

type Config struct {
	// hls.js script url
	HlsJsURL string
}

func (c Config) withDefaultValues() Config {
	if c.HlsJsURL == "" {
		c.HlsJsURL = "https://cdn.jsdelivr.net/npm/hls.js@1"
	}
	return c
}
