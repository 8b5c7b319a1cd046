package hlsstream

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/m1k1o/go-mediaserver/internal/testutil"
)

func newTestJob(t *testing.T, ffmpeg string, modify func(c *StreamConfig)) *Job {
	t.Helper()

	config := StreamConfig{
		StreamID:     "s1",
		MediaPath:    testutil.MediaFile(t, "movie.mp4"),
		OutputDir:    filepath.Join(t.TempDir(), "streams", "s1"),
		FFmpegBinary: ffmpeg,
		StopTimeout:  2 * time.Second,
	}
	if modify != nil {
		modify(&config)
	}

	job, err := NewJob(config)
	require.NoError(t, err)
	t.Cleanup(job.Stop)

	return job
}

func waitForState(t *testing.T, job *Job, state State) JobStatus {
	t.Helper()

	var status JobStatus
	require.Eventually(t, func() bool {
		status = job.Status()
		return status.State == state
	}, 5*time.Second, 20*time.Millisecond, "job never reached %s", state)

	return status
}

func TestNewJobValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *StreamConfig)
		want   error
	}{
		{"negative segment duration", func(c *StreamConfig) { c.SegmentDuration = -1 }, ErrInvalidConfig},
		{"negative max segments", func(c *StreamConfig) { c.MaxSegments = -3 }, ErrInvalidConfig},
		{"bad resolution", func(c *StreamConfig) { c.Resolution = "big" }, ErrInvalidConfig},
		{"bad retention", func(c *StreamConfig) { c.Retention = "forever" }, ErrInvalidConfig},
		{"missing output", func(c *StreamConfig) { c.OutputDir = "" }, ErrInvalidConfig},
		{"bad stream id", func(c *StreamConfig) { c.StreamID = "../s1" }, ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := StreamConfig{
				StreamID:  "s1",
				MediaPath: "/media/movie.mp4",
				OutputDir: "/tmp/s1",
			}
			tt.modify(&config)

			_, err := NewJob(config)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJobStartAndStop(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 3, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)

	require.Equal(t, StateStarting, job.Status().State)
	require.NoError(t, job.Start())

	status := waitForState(t, job, StateTranscoding)
	require.Equal(t, 3, status.Segments)
	require.NoError(t, status.Err)

	playlist, err := job.ReadPlaylist()
	require.NoError(t, err)
	require.Contains(t, string(playlist), "segment_000.ts")

	segment, err := job.ReadSegment("segment_001.ts")
	require.NoError(t, err)
	require.Equal(t, "segment-data-1", string(segment))

	job.Stop()
	require.Equal(t, StateStopped, job.Status().State)

	// second stop is a no-op
	job.Stop()
	require.Equal(t, StateStopped, job.Status().State)
}

func TestJobStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, func(c *StreamConfig) {
		c.Retention = RetentionSweep
		c.SweepPeriod = 10 * time.Millisecond
	})

	require.NoError(t, job.Start())
	waitForState(t, job, StateTranscoding)

	job.Stop()
}

func TestJobStopKillsAfterTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitIgnoreTerm)
	job := newTestJob(t, ffmpeg, func(c *StreamConfig) {
		c.StopTimeout = 300 * time.Millisecond
	})

	require.NoError(t, job.Start())
	waitForState(t, job, StateTranscoding)

	started := time.Now()
	job.Stop()
	elapsed := time.Since(started)

	require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	require.Less(t, elapsed, 3*time.Second)
	require.Equal(t, StateStopped, job.Status().State)

	select {
	case <-job.done:
	default:
		t.Fatal("supervisor still running after stop")
	}
}

func TestJobConcurrentStop(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)
	require.NoError(t, job.Start())

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			job.Stop()
			done <- struct{}{}
		}()
	}

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("stop did not return")
		}
	}

	require.Equal(t, StateStopped, job.Status().State)
}

func TestJobMissingInput(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, func(c *StreamConfig) {
		c.MediaPath = "/no/such/file.mp4"
	})

	err := job.Start()
	require.ErrorIs(t, err, ErrInputNotFound)

	status := job.Status()
	require.Equal(t, StateError, status.State)
	require.ErrorIs(t, status.Err, ErrInputNotFound)
}

func TestJobLaunchFailure(t *testing.T) {
	job := newTestJob(t, filepath.Join(t.TempDir(), "no-such-ffmpeg"), nil)

	err := job.Start()
	require.ErrorIs(t, err, ErrLaunchFailure)

	status := job.Status()
	require.Equal(t, StateError, status.State)
	require.NotEmpty(t, status.Err.Error())
}

func TestJobRuntimeFailure(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 2, testutil.ExitFailure)
	job := newTestJob(t, ffmpeg, nil)

	// the failure happens after launch
	require.NoError(t, job.Start())

	status := waitForState(t, job, StateError)
	require.ErrorIs(t, status.Err, ErrRuntimeFailure)
	require.Contains(t, status.Err.Error(), "exit status 1")
	require.Contains(t, status.Err.Error(), "Conversion failed!")
	require.Equal(t, 2, status.Segments)

	// error is terminal until stopped
	job.Stop()
	require.Equal(t, StateStopped, job.Status().State)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestJobLogsFFmpegAtConfiguredLevel(t *testing.T) {
	out := &syncBuffer{}
	logger := log.Logger
	log.Logger = zerolog.New(out)
	SetFFmpegLogLevel(zerolog.WarnLevel)
	t.Cleanup(func() {
		log.Logger = logger
		SetFFmpegLogLevel(zerolog.DebugLevel)
	})

	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitFailure)
	job := newTestJob(t, ffmpeg, nil)

	require.NoError(t, job.Start())
	waitForState(t, job, StateError)

	found := false
	for _, line := range strings.Split(out.String(), "\n") {
		if !strings.Contains(line, `"source":"ffmpeg"`) {
			continue
		}
		require.Contains(t, line, `"level":"warn"`)
		require.Contains(t, line, "Conversion failed!")
		found = true
	}
	require.True(t, found, "no transcoder line logged")
}

func TestJobFinishes(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 4, testutil.ExitSuccess)
	job := newTestJob(t, ffmpeg, nil)

	require.NoError(t, job.Start())

	status := waitForState(t, job, StateReady)
	require.Equal(t, 4, status.Segments)
	require.NoError(t, status.Err)
}

func TestJobStartTwice(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)

	require.NoError(t, job.Start())
	require.Error(t, job.Start())
}

func TestJobStopBeforeStart(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)

	job.Stop()
	require.ErrorIs(t, job.Start(), ErrLaunchFailure)
	require.Equal(t, StateStopped, job.Status().State)
}

func TestJobSegmentCountNeverDecreases(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 6, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)

	require.NoError(t, job.Start())
	require.Equal(t, 6, waitForState(t, job, StateTranscoding).Segments)

	_, err := PruneSegments(filepath.Join(job.Config().OutputDir, SegmentsDir), 2)
	require.NoError(t, err)

	require.Equal(t, 6, job.Status().Segments)
}

func TestJobSweepRetention(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 8, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, func(c *StreamConfig) {
		c.Retention = RetentionSweep
		c.SweepPeriod = 20 * time.Millisecond
		c.MaxSegments = 3
	})

	require.NoError(t, job.Start())

	dir := filepath.Join(job.Config().OutputDir, SegmentsDir)
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) == 3
	}, 5*time.Second, 20*time.Millisecond)

	_, err := job.ReadSegment("segment_000.ts")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = job.ReadSegment("segment_007.ts")
	require.NoError(t, err)

	require.Equal(t, 8, job.Status().Segments)
}

func TestJobReadSegmentRejectsTraversal(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)

	// a file right outside the segments dir
	outside := filepath.Join(job.Config().OutputDir, "secret.ts")
	require.NoError(t, os.MkdirAll(filepath.Dir(outside), 0755))
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))

	for _, name := range []string{
		"",
		".",
		"..",
		"../secret.ts",
		"../../etc/passwd",
		"segments/../../secret.ts",
		`..\secret.ts`,
		"/etc/passwd",
	} {
		data, err := job.ReadSegment(name)
		require.ErrorIs(t, err, ErrInvalidName, name)
		require.Nil(t, data)
	}
}

func TestJobReadMissingArtifacts(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	job := newTestJob(t, ffmpeg, nil)

	_, err := job.ReadPlaylist()
	require.ErrorIs(t, err, ErrNotFound)

	_, err = job.ReadSegment("segment_042.ts")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJobRunIDs(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 1, testutil.ExitNever)
	a := newTestJob(t, ffmpeg, nil)
	b := newTestJob(t, ffmpeg, nil)

	require.NotEqual(t, a.RunID(), b.RunID())
	require.Len(t, strings.Split(a.RunID(), "-"), 5)
}
