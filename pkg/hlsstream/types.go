package hlsstream

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Layout of a stream output directory.
const (
	PlaylistName = "playlist.m3u8"
	SegmentsDir  = "segments"
)

var (
	ErrInputNotFound  = errors.New("input not found")
	ErrLaunchFailure  = errors.New("transcoder could not be launched")
	ErrRuntimeFailure = errors.New("transcoder exited abnormally")
	ErrNotFound       = errors.New("not found")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidConfig  = errors.New("invalid stream config")
	ErrStreamStopping = errors.New("stream is being stopped")
)

var (
	streamIDRegex   = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)
	resolutionRegex = regexp.MustCompile(`^[0-9]+x[0-9]+$`)
)

type State string

const (
	StateStarting    State = "starting"
	StateTranscoding State = "transcoding"
	StateReady       State = "ready"
	StateError       State = "error"
	StateStopped     State = "stopped"

	// only reported by the registry, never held by a job
	StateNotFound State = "not_found"
)

// Terminal states cannot be left, except for stopping a finished job.
func (s State) terminal() bool {
	return s == StateReady || s == StateError || s == StateStopped
}

type Retention string

const (
	RetentionTool  Retention = "tool"  // transcoder deletes old segments itself
	RetentionSweep Retention = "sweep" // periodic PruneSegments by the job supervisor
	RetentionNone  Retention = "none"  // keep everything
)

type StreamConfig struct {
	StreamID  string
	MediaPath string
	OutputDir string

	SegmentDuration int // seconds
	MaxSegments     int
	VideoBitrate    int // kbps
	AudioBitrate    int // kbps
	Resolution      string
	VideoCodec      string
	AudioCodec      string
	Preset          string

	Retention   Retention
	SweepPeriod time.Duration

	FFmpegBinary string
	ReadyTimeout time.Duration // how long can Start wait for the first playlist
	StopTimeout  time.Duration // how long to wait after SIGTERM before killing

	// optional, used to estimate total segment count
	ExpectedDuration time.Duration
}

func (c StreamConfig) withDefaultValues() StreamConfig {
	if c.SegmentDuration == 0 {
		c.SegmentDuration = 4
	}
	if c.MaxSegments == 0 {
		c.MaxSegments = 10
	}
	if c.VideoBitrate == 0 {
		c.VideoBitrate = 2000
	}
	if c.AudioBitrate == 0 {
		c.AudioBitrate = 128
	}
	if c.Resolution == "" {
		c.Resolution = "1920x1080"
	}
	if c.VideoCodec == "" {
		c.VideoCodec = "libx264"
	}
	if c.AudioCodec == "" {
		c.AudioCodec = "aac"
	}
	if c.Preset == "" {
		c.Preset = "ultrafast"
	}
	if c.Retention == "" {
		c.Retention = RetentionTool
	}
	if c.SweepPeriod == 0 {
		c.SweepPeriod = 2 * time.Second
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 3 * time.Second
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 5 * time.Second
	}
	return c
}

// inherit fills every unset field from base.
func (c StreamConfig) inherit(base StreamConfig) StreamConfig {
	if c.SegmentDuration == 0 {
		c.SegmentDuration = base.SegmentDuration
	}
	if c.MaxSegments == 0 {
		c.MaxSegments = base.MaxSegments
	}
	if c.VideoBitrate == 0 {
		c.VideoBitrate = base.VideoBitrate
	}
	if c.AudioBitrate == 0 {
		c.AudioBitrate = base.AudioBitrate
	}
	if c.Resolution == "" {
		c.Resolution = base.Resolution
	}
	if c.VideoCodec == "" {
		c.VideoCodec = base.VideoCodec
	}
	if c.AudioCodec == "" {
		c.AudioCodec = base.AudioCodec
	}
	if c.Preset == "" {
		c.Preset = base.Preset
	}
	if c.Retention == "" {
		c.Retention = base.Retention
	}
	if c.SweepPeriod == 0 {
		c.SweepPeriod = base.SweepPeriod
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = base.FFmpegBinary
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = base.ReadyTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = base.StopTimeout
	}
	return c
}

func ValidateStreamID(id string) error {
	if !streamIDRegex.MatchString(id) {
		return fmt.Errorf("%w: stream id %q", ErrInvalidName, id)
	}
	return nil
}

func (c StreamConfig) Validate() error {
	if err := ValidateStreamID(c.StreamID); err != nil {
		return err
	}
	if c.MediaPath == "" {
		return fmt.Errorf("%w: media path is empty", ErrInvalidConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output dir is empty", ErrInvalidConfig)
	}
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration must be positive", ErrInvalidConfig)
	}
	if c.MaxSegments <= 0 {
		return fmt.Errorf("%w: max segments must be positive", ErrInvalidConfig)
	}
	if c.VideoBitrate < 0 || c.AudioBitrate < 0 {
		return fmt.Errorf("%w: bitrate must not be negative", ErrInvalidConfig)
	}
	if !resolutionRegex.MatchString(c.Resolution) {
		return fmt.Errorf("%w: resolution %q", ErrInvalidConfig, c.Resolution)
	}
	switch c.Retention {
	case RetentionTool, RetentionSweep, RetentionNone:
	default:
		return fmt.Errorf("%w: retention %q", ErrInvalidConfig, c.Retention)
	}
	return nil
}

type JobStatus struct {
	State    State
	Segments int
	Err      error
}

// Status is what the registry reports for a single stream.
type Status struct {
	StreamID          string  `json:"stream_id"`
	MediaID           string  `json:"media_id"`
	Status            State   `json:"status"`
	ErrorMessage      string  `json:"error_message"`
	SegmentsGenerated int     `json:"segments_generated"`
	TotalSegments     int     `json:"total_segments"`
	Progress          float64 `json:"progress"`
	Viewers           int     `json:"viewers"`
}
