package hlsstream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-mediaserver/internal/testutil"
)

func TestValidateSegmentName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"segment_000.ts", true},
		{"segment_123.ts", true},
		{"segment_1000.ts", true},
		{"", false},
		{"segment_00.ts", false},
		{"segment_000.ts.tmp", false},
		{"segment_abc.ts", false},
		{"playlist.m3u8", false},
		{"../segment_000.ts", false},
		{"../../etc/passwd", false},
		{"segments/segment_000.ts", false},
		{`..\segment_000.ts`, false},
		{".segment_000.ts.deleted", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSegmentName(tt.name)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestReader(t *testing.T) {
	ffmpeg := testutil.FakeFFmpeg(t, 2, testutil.ExitNever)
	registry := newTestRegistry(t, ffmpeg, nil)
	reader := NewReader(registry)
	media := testutil.MediaFile(t, "movie.mp4")

	_, err := registry.CreateStream(media, "m1", StreamConfig{StreamID: "s1"})
	require.NoError(t, err)

	t.Run("playlist", func(t *testing.T) {
		data, err := reader.Playlist("s1")
		require.NoError(t, err)
		require.Contains(t, string(data), "#EXTM3U")
	})

	t.Run("segment", func(t *testing.T) {
		data, err := reader.Segment("s1", "segment_001.ts")
		require.NoError(t, err)
		require.Equal(t, "segment-data-1", string(data))
	})

	t.Run("missing segment", func(t *testing.T) {
		_, err := reader.Segment("s1", "segment_555.ts")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown stream", func(t *testing.T) {
		_, err := reader.Playlist("nope")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = reader.Segment("nope", "segment_000.ts")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("traversal is rejected before lookup", func(t *testing.T) {
		// unknown stream, but the name fails first
		_, err := reader.Segment("nope", "../../etc/passwd")
		require.ErrorIs(t, err, ErrInvalidName)

		_, err = reader.Segment("s1", "../playlist.m3u8")
		require.ErrorIs(t, err, ErrInvalidName)
	})

	require.Equal(t, 0, registry.GetStatus("s1").Viewers)
}
