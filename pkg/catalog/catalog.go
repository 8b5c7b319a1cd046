package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/m1k1o/go-mediaserver/pkg/probe"
)

var mediaExtensions = map[string]struct{}{
	// video
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".flv": {},
	".webm": {}, ".wmv": {}, ".mpg": {}, ".mpeg": {}, ".m4v": {},
	// audio
	".mp3": {}, ".wav": {}, ".flac": {}, ".aac": {}, ".ogg": {},
	".m4a": {}, ".wma": {}, ".opus": {}, ".mka": {},
}

var ErrNotADirectory = errors.New("media path is not a directory")

type Prober interface {
	Media(ctx context.Context, inputFilePath string) (*probe.Data, error)
}

type Config struct {
	MediaDir string
	Workers  int // concurrent probes during a scan
}

func (c Config) withDefaultValues() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Catalog is an in-memory list of probed media files.
type Catalog struct {
	logger zerolog.Logger
	config Config
	prober Prober

	mu        sync.RWMutex
	entries   []Entry
	byID      map[string]int
	idsByPath map[string]string
	counter   int
	scannedAt time.Time
}

func New(config Config, prober Prober) *Catalog {
	return &Catalog{
		logger: log.With().Str("module", "catalog").Logger(),
		config: config.withDefaultValues(),
		prober: prober,

		byID:      make(map[string]int),
		idsByPath: make(map[string]string),
	}
}

func IsMediaFile(name string) bool {
	_, ok := mediaExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scan walks the media directory and replaces the catalog contents. Files
// that cannot be probed are left out. Known paths keep their ids.
func (c *Catalog) Scan(ctx context.Context) (int, error) {
	root := c.config.MediaDir

	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// skip unreadable subtrees, fail only on the root
			if path == root {
				return err
			}
			c.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() && IsMediaFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Strings(paths)

	results := make([]*Entry, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			entry, err := c.probeEntry(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Warn().Err(err).Str("path", path).Msg("unable to probe media file")
				return nil
			}

			results[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = c.entries[:0]
	c.byID = make(map[string]int, len(results))
	for _, entry := range results {
		if entry == nil {
			continue
		}

		id, ok := c.idsByPath[entry.Path]
		if !ok {
			c.counter++
			id = fmt.Sprintf("media_%d", c.counter)
			c.idsByPath[entry.Path] = id
		}

		entry.ID = id
		c.byID[id] = len(c.entries)
		c.entries = append(c.entries, *entry)
	}
	c.scannedAt = time.Now()

	c.logger.Info().
		Str("dir", root).
		Int("found", len(paths)).
		Int("added", len(c.entries)).
		Msg("media scan complete")

	return len(c.entries), nil
}

func (c *Catalog) probeEntry(ctx context.Context, path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	data, err := c.prober.Media(ctx, path)
	if err != nil {
		return nil, err
	}

	entry := newEntry(path, info, data)
	return &entry, nil
}

func (c *Catalog) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

func (c *Catalog) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *Catalog) ScannedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.scannedAt
}

// Search matches query case-insensitively against file name, format,
// video codec and metadata values. An empty query returns everything.
func (c *Catalog) Search(query string) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.All()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := []Entry{}
	for _, entry := range c.entries {
		if entry.matches(query) {
			results = append(results, entry)
		}
	}
	return results
}
