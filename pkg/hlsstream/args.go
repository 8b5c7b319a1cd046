package hlsstream

import (
	"fmt"
	"strconv"
	"strings"
)

// keyframe interval in frames, independent of source frame rate
const gopSize = 48

// transcoderArgs builds the ffmpeg invocation. Output paths are relative,
// the command is expected to run inside the stream output directory.
func transcoderArgs(c StreamConfig, input string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-i", input,

		// video
		"-c:v", c.VideoCodec,
		"-preset", c.Preset,
		"-crf", "23",
		"-maxrate", fmt.Sprintf("%dk", c.VideoBitrate),
		"-bufsize", fmt.Sprintf("%dk", 2*c.VideoBitrate),
		"-vf", "scale=" + strings.Replace(c.Resolution, "x", ":", 1),
		"-pix_fmt", "yuv420p",
		"-g", strconv.Itoa(gopSize),
		"-keyint_min", strconv.Itoa(gopSize),
		"-sc_threshold", "0",

		// audio
		"-c:a", c.AudioCodec,
		"-b:a", fmt.Sprintf("%dk", c.AudioBitrate),

		// hls
		"-f", "hls",
		"-hls_time", strconv.Itoa(c.SegmentDuration),
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", SegmentsDir + "/segment_%03d.ts",
	}

	// temp_file keeps unfinished segments away from the .ts name
	switch c.Retention {
	case RetentionTool:
		args = append(args,
			"-hls_list_size", strconv.Itoa(c.MaxSegments),
			"-hls_flags", "delete_segments+temp_file",
		)
	case RetentionSweep:
		args = append(args,
			"-hls_list_size", strconv.Itoa(c.MaxSegments),
			"-hls_flags", "temp_file",
		)
	default:
		args = append(args,
			"-hls_list_size", "0",
			"-hls_flags", "temp_file",
		)
	}

	return append(args, PlaylistName)
}
