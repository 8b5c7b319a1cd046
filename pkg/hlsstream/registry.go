package hlsstream

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// used when the source duration is unknown
const placeholderTotalSegments = 100

type Config struct {
	BaseDir string // stream outputs live in BaseDir/streams/<stream id>

	// defaults for every new stream
	Stream StreamConfig

	IdleTimeout   time.Duration // 0 disables the idle reaper
	CleanupPeriod time.Duration // how often should be cleanup called
}

func (c Config) withDefaultValues() Config {
	if c.BaseDir == "" {
		c.BaseDir = os.TempDir()
	}
	if c.CleanupPeriod == 0 {
		c.CleanupPeriod = 10 * time.Second
	}
	c.Stream = c.Stream.withDefaultValues()
	return c
}

type entry struct {
	job     *Job
	mediaID string

	viewers    int
	lastAccess time.Time

	started  chan struct{} // closed once the job start has finished
	startErr error
}

// Registry maps stream ids to running transcode jobs.
type Registry struct {
	logger zerolog.Logger
	config Config

	mu       sync.Mutex
	streams  map[string]*entry
	stopping map[string]struct{}
	counter  uint64

	shutdown chan struct{}
	wg       sync.WaitGroup
}

func NewRegistry(config Config) *Registry {
	return &Registry{
		logger: log.With().Str("module", "hlsstream").Str("submodule", "registry").Logger(),
		config: config.withDefaultValues(),

		streams:  make(map[string]*entry),
		stopping: make(map[string]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Start runs the idle reaper, if enabled.
func (r *Registry) Start() {
	if r.config.IdleTimeout <= 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.config.CleanupPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-r.shutdown:
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Shutdown stops the reaper and every registered stream.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	select {
	case <-r.shutdown:
	default:
		close(r.shutdown)
	}
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.wg.Wait()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			r.StopStream(id)
			return nil
		})
	}

	return g.Wait()
}

func (r *Registry) nextStreamID() string {
	for {
		r.counter++
		id := fmt.Sprintf("stream_%d", r.counter)
		if _, ok := r.streams[id]; !ok {
			return id
		}
	}
}

// CreateStream starts a transcode of mediaPath. An empty config.StreamID
// gets a generated one. Creating an existing stream returns its id without
// starting a second job. On failure the registry is left unchanged.
func (r *Registry) CreateStream(mediaPath, mediaID string, config StreamConfig) (string, error) {
	if config.StreamID != "" {
		if err := ValidateStreamID(config.StreamID); err != nil {
			return "", err
		}
	}

	r.mu.Lock()

	id := config.StreamID
	if id == "" {
		id = r.nextStreamID()
	}

	if e, ok := r.streams[id]; ok {
		r.mu.Unlock()

		<-e.started
		if e.startErr != nil {
			return "", e.startErr
		}

		r.logger.Debug().Str("stream", id).Msg("stream already exists")
		return id, nil
	}

	if _, ok := r.stopping[id]; ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrStreamStopping, id)
	}

	// a running stream stays valid when its source goes away
	if _, err := os.Stat(mediaPath); err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrInputNotFound, mediaPath)
	}

	config = config.inherit(r.config.Stream)
	config.StreamID = id
	config.MediaPath = mediaPath
	config.OutputDir = filepath.Join(r.config.BaseDir, "streams", id)

	job, err := NewJob(config)
	if err != nil {
		r.mu.Unlock()
		return "", err
	}

	// reserve the id, the start itself may take a while
	e := &entry{
		job:        job,
		mediaID:    mediaID,
		lastAccess: time.Now(),
		started:    make(chan struct{}),
	}
	r.streams[id] = e
	r.mu.Unlock()

	err = job.Start()

	r.mu.Lock()
	if err != nil {
		e.startErr = err
		if r.streams[id] == e {
			delete(r.streams, id)
		}
	}
	close(e.started)
	r.mu.Unlock()

	if err != nil {
		job.Stop()
		if rmErr := os.RemoveAll(config.OutputDir); rmErr != nil {
			r.logger.Warn().Err(rmErr).Str("stream", id).Msg("unable to remove output dir")
		}
		return "", err
	}

	r.logger.Info().
		Str("stream", id).
		Str("media", mediaID).
		Str("run", job.RunID()).
		Msg("stream created")

	return id, nil
}

// GetStatus reports not_found for unknown streams, it never fails.
func (r *Registry) GetStatus(id string) Status {
	r.mu.Lock()
	e, ok := r.streams[id]
	if !ok {
		r.mu.Unlock()
		return Status{
			StreamID:     id,
			Status:       StateNotFound,
			ErrorMessage: "Stream not found",
		}
	}
	e.lastAccess = time.Now()
	viewers := e.viewers
	r.mu.Unlock()

	jobStatus := e.job.Status()
	config := e.job.Config()

	status := Status{
		StreamID:          id,
		MediaID:           e.mediaID,
		Status:            jobStatus.State,
		SegmentsGenerated: jobStatus.Segments,
		TotalSegments:     totalSegments(config),
		Viewers:           viewers,
	}

	if jobStatus.Err != nil {
		status.ErrorMessage = jobStatus.Err.Error()
	}

	if jobStatus.State == StateReady {
		status.Progress = 1
		if status.SegmentsGenerated > 0 {
			status.TotalSegments = status.SegmentsGenerated
		}
	} else if status.TotalSegments > 0 {
		status.Progress = math.Min(1, float64(status.SegmentsGenerated)/float64(status.TotalSegments))
	}

	return status
}

func totalSegments(config StreamConfig) int {
	if config.ExpectedDuration <= 0 || config.SegmentDuration <= 0 {
		return placeholderTotalSegments
	}

	total := int(math.Ceil(config.ExpectedDuration.Seconds() / float64(config.SegmentDuration)))
	if total < 1 {
		total = 1
	}
	return total
}

// acquire registers a viewer on the stream. The returned release must be
// called once the read is over, it is safe to call more than once.
func (r *Registry) acquire(id string) (*entry, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.streams[id]
	if !ok {
		return nil, nil, ErrNotFound
	}

	e.viewers++
	e.lastAccess = time.Now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			e.viewers--
			e.lastAccess = time.Now()
			r.mu.Unlock()
		})
	}

	return e, release, nil
}

func (r *Registry) GetPlaylist(id string) ([]byte, error) {
	e, release, err := r.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.job.ReadPlaylist()
}

func (r *Registry) GetSegment(id, name string) ([]byte, error) {
	e, release, err := r.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.job.ReadSegment(name)
}

// ListStreams returns a sorted snapshot of registered stream ids.
func (r *Registry) ListStreams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.streams)
}

// StopStream stops the job, removes its entry and deletes its output.
// Returns false for unknown ids.
func (r *Registry) StopStream(id string) bool {
	return r.stopStream(id, nil)
}

// stopStream skips the stream when keep reports true under the lock.
func (r *Registry) stopStream(id string, keep func(e *entry) bool) bool {
	r.mu.Lock()
	e, ok := r.streams[id]
	if !ok || (keep != nil && keep(e)) {
		r.mu.Unlock()
		return false
	}
	delete(r.streams, id)
	r.stopping[id] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.stopping, id)
		r.mu.Unlock()
	}()

	// a job still starting must not be left without its process reaped
	<-e.started

	e.job.Stop()

	outputDir := e.job.Config().OutputDir
	if err := os.RemoveAll(outputDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn().Err(err).Str("stream", id).Msg("unable to remove output dir")
	}

	r.logger.Info().Str("stream", id).Msg("stream stopped")
	return true
}

func (r *Registry) isIdle(e *entry) bool {
	return e.viewers == 0 && time.Since(e.lastAccess) >= r.config.IdleTimeout
}

// Cleanup stops streams nobody has touched for IdleTimeout. Streams in
// error state are kept so pollers can still see the failure.
func (r *Registry) Cleanup() {
	if r.config.IdleTimeout <= 0 {
		return
	}

	r.mu.Lock()
	idle := make(map[string]*entry)
	for id, e := range r.streams {
		if r.isIdle(e) {
			idle[id] = e
		}
	}
	r.mu.Unlock()

	for id, e := range idle {
		state := e.job.Status().State
		if state == StateError || state == StateStarting {
			continue
		}

		stopped := r.stopStream(id, func(current *entry) bool {
			return current != e || !r.isIdle(current)
		})

		if stopped {
			r.logger.Info().
				Str("stream", id).
				Str("state", string(state)).
				Dur("idle", r.config.IdleTimeout).
				Msg("stopped idle stream")
		}
	}
}
