package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type Data struct {
	FormatName []string          `json:"format_name"`
	Duration   time.Duration     `json:"duration"`
	BitRate    int64             `json:"bit_rate"`
	Tags       map[string]string `json:"tags,omitempty"` // lowercased keys

	Video *VideoData  `json:"video,omitempty"`
	Audio []AudioData `json:"audio,omitempty"`
}

type VideoData struct {
	Codec     string  `json:"codec"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

type AudioData struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitRate    int64  `json:"bit_rate"`
}

// Media runs ffprobe on inputFilePath.
func Media(ctx context.Context, ffprobeBinary string, inputFilePath string) (*Data, error) {
	args := []string{
		"-v", "error", // Hide debug information
		"-show_format",  // Show container information
		"-show_streams", // Show codec information
		"-of", "json",
		inputFilePath,
	}

	cmd := exec.CommandContext(ctx, ffprobeBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return Parse(stdout.Bytes())
}

// Parse reads ffprobe JSON output.
func Parse(output []byte) (*Data, error) {
	out := struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
			CodecType string `json:"codec_type"`

			// For video streams.
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`

			// For audio streams.
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			BitRate    string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			FormatName string            `json:"format_name"`
			Duration   string            `json:"duration"`
			BitRate    string            `json:"bit_rate"`
			Tags       map[string]string `json:"tags"`
		} `json:"format"`
	}{}

	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("unable to parse ffprobe output: %w", err)
	}

	data := Data{}
	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			// first video stream wins, attached pictures come later
			if data.Video != nil {
				continue
			}

			data.Video = &VideoData{
				Codec:     stream.CodecName,
				Width:     stream.Width,
				Height:    stream.Height,
				FrameRate: parseFrameRate(stream.RFrameRate),
			}
		case "audio":
			sampleRate, _ := strconv.Atoi(stream.SampleRate)
			bitRate, _ := strconv.ParseInt(stream.BitRate, 10, 64)

			data.Audio = append(data.Audio, AudioData{
				Codec:      stream.CodecName,
				SampleRate: sampleRate,
				Channels:   stream.Channels,
				BitRate:    bitRate,
			})
		}
	}

	if out.Format.FormatName != "" {
		data.FormatName = strings.Split(out.Format.FormatName, ",")
	}

	if out.Format.Duration != "" {
		duration, err := time.ParseDuration(out.Format.Duration + "s")
		if err != nil {
			return nil, fmt.Errorf("unable to parse format duration: %w", err)
		}
		data.Duration = duration
	}

	if out.Format.BitRate != "" {
		bitRate, err := strconv.ParseInt(out.Format.BitRate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse format bitrate: %w", err)
		}
		data.BitRate = bitRate
	}

	if len(out.Format.Tags) > 0 {
		data.Tags = make(map[string]string, len(out.Format.Tags))
		for key, value := range out.Format.Tags {
			data.Tags[strings.ToLower(key)] = value
		}
	}

	return &data, nil
}

// parseFrameRate reads ffprobe rationals like 30000/1001.
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}

	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}

	return n / d
}

// VideoCodec returns the video codec name or an empty string.
func (d *Data) VideoCodec() string {
	if d == nil || d.Video == nil {
		return ""
	}
	return d.Video.Codec
}

// AudioCodec returns the first audio codec name or an empty string.
func (d *Data) AudioCodec() string {
	if d == nil || len(d.Audio) == 0 {
		return ""
	}
	return d.Audio[0].Codec
}

// Resolution returns WxH of the video stream or an empty string.
func (d *Data) Resolution() string {
	if d == nil || d.Video == nil || d.Video.Width == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", d.Video.Width, d.Video.Height)
}
