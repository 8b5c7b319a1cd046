package serve

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type HLS struct {
	SegmentDuration int           `mapstructure:"segment-duration"` // seconds
	MaxSegments     int           `mapstructure:"max-segments"`
	VideoBitrate    int           `mapstructure:"video-bitrate"` // kbps
	AudioBitrate    int           `mapstructure:"audio-bitrate"` // kbps
	Resolution      string        `mapstructure:"resolution"`
	VideoCodec      string        `mapstructure:"video-codec"`
	AudioCodec      string        `mapstructure:"audio-codec"`
	Preset          string        `mapstructure:"preset"`
	Retention       string        `mapstructure:"retention"`
	ReadyTimeout    time.Duration `mapstructure:"ready-timeout"`
	StopTimeout     time.Duration `mapstructure:"stop-timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle-timeout"`
	CreateRateLimit int           `mapstructure:"create-rate-limit"`
}

type Config struct {
	MediaDir      string `mapstructure:"media-dir"`
	OutputDir     string `mapstructure:"output-dir"`
	FFmpegBinary  string `mapstructure:"ffmpeg-binary"`
	FFprobeBinary string `mapstructure:"ffprobe-binary"`
	ProbeCacheDir string `mapstructure:"probe-cache-dir"`
	ScanWorkers   int    `mapstructure:"scan-workers"`
	HlsJsURL      string `mapstructure:"hlsjs-url"`

	HLS HLS `mapstructure:"hls"`
}

func (Config) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("media-dir", "./media", "directory scanned for media files")
	if err := viper.BindPFlag("media-dir", cmd.PersistentFlags().Lookup("media-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("output-dir", "", "directory for stream outputs, temporary directory when empty")
	if err := viper.BindPFlag("output-dir", cmd.PersistentFlags().Lookup("output-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("ffmpeg-binary", "ffmpeg", "path to the ffmpeg binary")
	if err := viper.BindPFlag("ffmpeg-binary", cmd.PersistentFlags().Lookup("ffmpeg-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("ffprobe-binary", "ffprobe", "path to the ffprobe binary")
	if err := viper.BindPFlag("ffprobe-binary", cmd.PersistentFlags().Lookup("ffprobe-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("probe-cache-dir", "", "directory to cache probe results in, disabled when empty")
	if err := viper.BindPFlag("probe-cache-dir", cmd.PersistentFlags().Lookup("probe-cache-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("scan-workers", 4, "number of media files probed concurrently")
	if err := viper.BindPFlag("scan-workers", cmd.PersistentFlags().Lookup("scan-workers")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("hlsjs-url", "", "hls.js script used by the player page")
	if err := viper.BindPFlag("hlsjs-url", cmd.PersistentFlags().Lookup("hlsjs-url")); err != nil {
		return err
	}

	//
	// hls
	//

	cmd.PersistentFlags().Int("hls.segment-duration", 4, "target segment duration in seconds")
	if err := viper.BindPFlag("hls.segment-duration", cmd.PersistentFlags().Lookup("hls.segment-duration")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("hls.max-segments", 10, "segments kept in the playlist")
	if err := viper.BindPFlag("hls.max-segments", cmd.PersistentFlags().Lookup("hls.max-segments")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("hls.video-bitrate", 2000, "video bitrate in kbps")
	if err := viper.BindPFlag("hls.video-bitrate", cmd.PersistentFlags().Lookup("hls.video-bitrate")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("hls.audio-bitrate", 128, "audio bitrate in kbps")
	if err := viper.BindPFlag("hls.audio-bitrate", cmd.PersistentFlags().Lookup("hls.audio-bitrate")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("hls.resolution", "1920x1080", "output resolution WIDTHxHEIGHT")
	if err := viper.BindPFlag("hls.resolution", cmd.PersistentFlags().Lookup("hls.resolution")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("hls.video-codec", "libx264", "ffmpeg video encoder")
	if err := viper.BindPFlag("hls.video-codec", cmd.PersistentFlags().Lookup("hls.video-codec")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("hls.audio-codec", "aac", "ffmpeg audio encoder")
	if err := viper.BindPFlag("hls.audio-codec", cmd.PersistentFlags().Lookup("hls.audio-codec")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("hls.preset", "ultrafast", "encoder preset")
	if err := viper.BindPFlag("hls.preset", cmd.PersistentFlags().Lookup("hls.preset")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("hls.retention", "tool", "segment retention: tool, sweep or none")
	if err := viper.BindPFlag("hls.retention", cmd.PersistentFlags().Lookup("hls.retention")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("hls.ready-timeout", 3*time.Second, "how long stream creation waits for the first playlist")
	if err := viper.BindPFlag("hls.ready-timeout", cmd.PersistentFlags().Lookup("hls.ready-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("hls.stop-timeout", 5*time.Second, "how long to wait for ffmpeg to exit before killing it")
	if err := viper.BindPFlag("hls.stop-timeout", cmd.PersistentFlags().Lookup("hls.stop-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("hls.idle-timeout", 0, "stop streams nobody requested for this long, 0 disables")
	if err := viper.BindPFlag("hls.idle-timeout", cmd.PersistentFlags().Lookup("hls.idle-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("hls.create-rate-limit", 0, "stream creations allowed per client ip and minute, 0 disables")
	if err := viper.BindPFlag("hls.create-rate-limit", cmd.PersistentFlags().Lookup("hls.create-rate-limit")); err != nil {
		return err
	}

	return nil
}

func (c *Config) Set() {
	// a temporary output dir survives config reloads
	previous := c.OutputDir

	if err := viper.Unmarshal(c); err != nil {
		log.Panic().Err(err).Msg("unable to unmarshal config structure")
	}

	if c.OutputDir == "" && previous != "" {
		c.OutputDir = previous
	} else if c.OutputDir == "" {
		var err error
		c.OutputDir, err = os.MkdirTemp(os.TempDir(), "go-mediaserver")
		if err != nil {
			log.Panic().Err(err).Msg("unable to create output dir")
		}
	} else if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		log.Panic().Err(err).Str("dir", c.OutputDir).Msg("unable to create output dir")
	}

	if c.ProbeCacheDir != "" {
		if err := os.MkdirAll(c.ProbeCacheDir, 0755); err != nil {
			log.Panic().Err(err).Str("dir", c.ProbeCacheDir).Msg("unable to create probe cache dir")
		}
	}
}
