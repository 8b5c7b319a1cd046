package hlsstream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-mediaserver/internal/utils"
)

// how often Start checks for the first playlist
const readyPollPeriod = 100 * time.Millisecond

var ffmpegLogLevel atomic.Int32

func init() {
	ffmpegLogLevel.Store(int32(zerolog.DebugLevel))
}

// SetFFmpegLogLevel sets the level transcoder stderr lines are logged at.
func SetFFmpegLogLevel(level zerolog.Level) {
	ffmpegLogLevel.Store(int32(level))
}

// Job owns one transcoder process and its output directory.
type Job struct {
	logger zerolog.Logger
	config StreamConfig
	runID  string

	mu       sync.Mutex
	state    State
	err      error
	segments int
	lastLine string
	cmd      *exec.Cmd

	stopOnce sync.Once
	done     chan struct{} // closed when the supervisor returns
}

func NewJob(config StreamConfig) (*Job, error) {
	config = config.withDefaultValues()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()

	return &Job{
		logger: log.With().
			Str("module", "hlsstream").
			Str("submodule", "job").
			Str("stream", config.StreamID).
			Str("run", runID).
			Logger(),
		config: config,
		runID:  runID,
		state:  StateStarting,
		done:   make(chan struct{}),
	}, nil
}

func (j *Job) Config() StreamConfig {
	return j.config
}

func (j *Job) RunID() string {
	return j.runID
}

// Start launches the transcoder and waits a bounded time for the playlist
// to appear. Failures leave the job in error state.
func (j *Job) Start() error {
	j.mu.Lock()
	if j.state == StateStopped {
		j.mu.Unlock()
		return fmt.Errorf("%w: job was stopped", ErrLaunchFailure)
	}
	if j.state != StateStarting || j.cmd != nil {
		j.mu.Unlock()
		return errors.New("job has already started")
	}
	j.mu.Unlock()

	j.logger.Debug().Msg("performing start")

	input, err := filepath.Abs(j.config.MediaPath)
	if err == nil {
		_, err = os.Stat(input)
	}
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrInputNotFound, j.config.MediaPath)
		j.fail(err)
		return err
	}

	if err := os.MkdirAll(filepath.Join(j.config.OutputDir, SegmentsDir), 0755); err != nil {
		err = fmt.Errorf("%w: unable to create output dir: %v", ErrLaunchFailure, err)
		j.fail(err)
		return err
	}

	cmd := exec.Command(j.config.FFmpegBinary, transcoderArgs(j.config, input)...)
	cmd.Dir = j.config.OutputDir
	cmd.Stderr = utils.LogEvent(j.onCmdLog)
	configureProcessGroup(cmd)

	j.mu.Lock()
	// stopped before launch
	if j.state != StateStarting {
		j.mu.Unlock()
		return fmt.Errorf("%w: job was stopped", ErrLaunchFailure)
	}

	if err := cmd.Start(); err != nil {
		j.mu.Unlock()
		err = fmt.Errorf("%w: %v", ErrLaunchFailure, err)
		j.fail(err)
		return err
	}

	j.cmd = cmd
	j.setState(StateTranscoding)
	j.mu.Unlock()

	j.logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("input", input).
		Str("output", j.config.OutputDir).
		Msg("transcoder started")

	go j.supervise(cmd)

	j.waitForPlaylist()
	return nil
}

func (j *Job) waitForPlaylist() {
	ticker := time.NewTicker(readyPollPeriod)
	defer ticker.Stop()

	timeout := time.NewTimer(j.config.ReadyTimeout)
	defer timeout.Stop()

	playlistPath := filepath.Join(j.config.OutputDir, PlaylistName)
	for {
		if _, err := os.Stat(playlistPath); err == nil {
			j.logger.Debug().Msg("playlist is available")
			return
		}

		select {
		case <-j.done:
			return
		case <-timeout.C:
			j.logger.Warn().Dur("timeout", j.config.ReadyTimeout).Msg("playlist not available yet")
			return
		case <-ticker.C:
		}
	}
}

// supervise is the single background worker of a job. It reaps the process
// and, with sweep retention, prunes old segments while it runs.
func (j *Job) supervise(cmd *exec.Cmd) {
	defer close(j.done)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	var sweep <-chan time.Time
	if j.config.Retention == RetentionSweep {
		ticker := time.NewTicker(j.config.SweepPeriod)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case err := <-waitCh:
			j.exited(err)
			return
		case <-sweep:
			j.sweep()
		}
	}
}

func (j *Job) sweep() {
	removed, err := PruneSegments(j.segmentsDir(), j.config.MaxSegments)
	if err != nil {
		j.logger.Err(err).Msg("segment sweep failed")
		return
	}

	if len(removed) > 0 {
		j.logger.Debug().Strs("removed", removed).Msg("segment sweep")
	}
}

func (j *Job) exited(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.countSegments()

	if j.state == StateStopped {
		j.logger.Info().Msg("transcoder stopped")
		return
	}

	if err == nil {
		j.logger.Info().Msg("the program has successfully exited")
		j.setState(StateReady)
		return
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// WaitStatus is defined for both unix and windows
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			code = status.ExitStatus()
		}
	}

	msg := fmt.Sprintf("exit status %d", code)
	if j.lastLine != "" {
		msg = fmt.Sprintf("%s: %s", msg, j.lastLine)
	}

	j.err = fmt.Errorf("%w: %s", ErrRuntimeFailure, msg)
	j.setState(StateError)

	j.logger.Warn().Int("exit-status", code).Str("last-line", j.lastLine).Msg("the program has exited with an error")
}

func (j *Job) onCmdLog(message string) {
	j.mu.Lock()
	j.lastLine = message
	j.mu.Unlock()

	j.logger.WithLevel(zerolog.Level(ffmpegLogLevel.Load())).Str("source", "ffmpeg").Msg(message)
}

// Stop terminates the transcoder process group: SIGTERM first, SIGKILL
// after StopTimeout. Every call returns only after the process is gone.
func (j *Job) Stop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		j.setState(StateStopped)
		cmd := j.cmd
		j.mu.Unlock()

		if cmd == nil {
			return
		}

		select {
		case <-j.done:
			return
		default:
		}

		j.logger.Debug().Msg("performing stop")

		if err := interruptProcessGroup(cmd); err != nil {
			j.logger.Err(err).Msg("interrupting process group")
		}

		select {
		case <-j.done:
			return
		case <-time.After(j.config.StopTimeout):
		}

		j.logger.Warn().Dur("timeout", j.config.StopTimeout).Msg("transcoder did not exit in time, killing")
		if err := killProcessGroup(cmd); err != nil {
			j.logger.Err(err).Msg("killing process group")
		}

		<-j.done
	})
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateStarting {
		j.countSegments()
	}

	return JobStatus{
		State:    j.state,
		Segments: j.segments,
		Err:      j.err,
	}
}

func (j *Job) ReadPlaylist() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(j.config.OutputDir, PlaylistName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (j *Job) ReadSegment(name string) ([]byte, error) {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return nil, ErrInvalidName
	}

	data, err := os.ReadFile(filepath.Join(j.segmentsDir(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (j *Job) segmentsDir() string {
	return filepath.Join(j.config.OutputDir, SegmentsDir)
}

// countSegments never lowers the counter, retention removes old files.
// Must be called with mu held.
func (j *Job) countSegments() {
	segments, err := listSegments(j.segmentsDir())
	if err != nil || len(segments) == 0 {
		return
	}

	if next := segments[len(segments)-1].index + 1; next > j.segments {
		j.segments = next
	}
}

// Must be called with mu held.
func (j *Job) setState(state State) {
	if j.state == state {
		return
	}

	// stopped is final, other terminal states may only move to stopped
	if j.state == StateStopped || (j.state.terminal() && state != StateStopped) {
		return
	}

	j.logger.Debug().Str("from", string(j.state)).Str("to", string(state)).Msg("state change")
	j.state = state
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.err = err
	j.setState(StateError)

	j.logger.Warn().Err(err).Msg("transcoder start failed")
}
