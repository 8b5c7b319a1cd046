package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m1k1o/go-mediaserver/pkg/probe"
)

type Entry struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`

	Duration float64 `json:"duration"` // seconds
	Format   string  `json:"format"`
	BitRate  int64   `json:"bitrate"`

	VideoCodec string  `json:"video_codec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`

	AudioCodec      string `json:"audio_codec"`
	AudioSampleRate int    `json:"audio_sample_rate"`
	AudioChannels   int    `json:"audio_channels"`
	ChannelLayout   string `json:"channel_layout"`

	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedTime string            `json:"created_time"`
}

func newEntry(path string, info os.FileInfo, data *probe.Data) Entry {
	entry := Entry{
		Filename:    filepath.Base(path),
		Path:        path,
		Size:        info.Size(),
		Duration:    data.Duration.Seconds(),
		Format:      strings.Join(data.FormatName, ","),
		BitRate:     data.BitRate,
		VideoCodec:  "unknown",
		AudioCodec:  "unknown",
		Metadata:    data.Tags,
		CreatedTime: info.ModTime().Format(time.DateTime),
	}

	// drop values probers are known to report for broken streams
	if video := data.Video; video != nil {
		if video.Codec != "" {
			entry.VideoCodec = video.Codec
		}
		if video.Width > 0 && video.Width <= 100000 && video.Height > 0 && video.Height <= 100000 {
			entry.Width = video.Width
			entry.Height = video.Height
		}
		if video.FrameRate > 0 && video.FrameRate <= 1000 {
			entry.FrameRate = video.FrameRate
		}
	}

	if len(data.Audio) > 0 {
		audio := data.Audio[0]
		if audio.Codec != "" {
			entry.AudioCodec = audio.Codec
		}
		if audio.SampleRate > 0 && audio.SampleRate <= 384000 {
			entry.AudioSampleRate = audio.SampleRate
		}
		if audio.Channels > 0 && audio.Channels <= 100 {
			entry.AudioChannels = audio.Channels
		}
	}

	entry.ChannelLayout = channelLayout(entry.AudioChannels)
	return entry
}

func channelLayout(channels int) string {
	switch channels {
	case 0:
		return "unknown"
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return strconv.Itoa(channels) + " channels"
	}
}

// ExpectedDuration is the probed duration, zero when unknown.
func (e Entry) ExpectedDuration() time.Duration {
	return time.Duration(e.Duration * float64(time.Second))
}

func (e Entry) matches(query string) bool {
	if strings.Contains(strings.ToLower(e.Filename), query) ||
		strings.Contains(strings.ToLower(e.Format), query) ||
		strings.Contains(strings.ToLower(e.VideoCodec), query) {
		return true
	}

	for _, value := range e.Metadata {
		if strings.Contains(strings.ToLower(value), query) {
			return true
		}
	}

	return false
}
