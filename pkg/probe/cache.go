package probe

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const cacheFileSuffix = ".probe.json"

type Config struct {
	FFprobeBinary string
	CacheDir      string // empty disables the cache
}

func (c Config) withDefaultValues() Config {
	if c.FFprobeBinary == "" {
		c.FFprobeBinary = "ffprobe"
	}
	return c
}

// Cache probes media files and keeps the results on disk, keyed by path,
// size and modification time.
type Cache struct {
	logger zerolog.Logger
	config Config

	probe func(ctx context.Context, ffprobeBinary string, inputFilePath string) (*Data, error)
}

func NewCache(config Config) *Cache {
	return &Cache{
		logger: log.With().Str("module", "probe").Logger(),
		config: config.withDefaultValues(),
		probe:  Media,
	}
}

func (c *Cache) Media(ctx context.Context, inputFilePath string) (*Data, error) {
	if c.config.CacheDir == "" {
		return c.probe(ctx, c.config.FFprobeBinary, inputFilePath)
	}

	cachePath, err := c.cachePath(inputFilePath)
	if err != nil {
		return nil, err
	}

	if data, err := readCache(cachePath); err == nil {
		c.logger.Debug().Str("path", inputFilePath).Msg("probe cache hit")
		return data, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn().Err(err).Str("cache", cachePath).Msg("ignoring unreadable probe cache")
	}

	data, err := c.probe(ctx, c.config.FFprobeBinary, inputFilePath)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(data)
	if err == nil {
		err = writeCacheFile(cachePath, raw)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("cache", cachePath).Msg("unable to save probe cache")
	}

	return data, nil
}

func (c *Cache) cachePath(inputFilePath string) (string, error) {
	abs, err := filepath.Abs(inputFilePath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}

	h := sha1.New()
	fmt.Fprintf(h, "%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())

	fileName := fmt.Sprintf("%x%s", h.Sum(nil), cacheFileSuffix)
	return filepath.Join(c.config.CacheDir, fileName), nil
}

func readCache(cachePath string) (*Data, error) {
	raw, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	return &data, nil
}
