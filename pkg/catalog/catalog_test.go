package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-mediaserver/pkg/probe"
)

type stubProber struct {
	mu     sync.Mutex
	calls  int
	broken map[string]bool
}

func (s *stubProber) Media(ctx context.Context, path string) (*probe.Data, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	name := filepath.Base(path)
	if s.broken[name] {
		return nil, errors.New("invalid data found when processing input")
	}

	if strings.HasSuffix(name, ".flac") {
		return &probe.Data{
			FormatName: []string{"flac"},
			Duration:   90 * time.Second,
			Audio:      []probe.AudioData{{Codec: "flac", SampleRate: 44100, Channels: 2}},
		}, nil
	}

	return &probe.Data{
		FormatName: []string{"mov", "mp4"},
		Duration:   10 * time.Minute,
		BitRate:    4000000,
		Tags:       map[string]string{"title": "Holiday " + name},
		Video:      &probe.VideoData{Codec: "h264", Width: 1920, Height: 1080, FrameRate: 25},
		Audio:      []probe.AudioData{{Codec: "aac", SampleRate: 48000, Channels: 6}},
	}, nil
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()

	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	}
}

func TestIsMediaFile(t *testing.T) {
	for name, want := range map[string]bool{
		"movie.mp4":   true,
		"MOVIE.MKV":   true,
		"song.flac":   true,
		"clip.webm":   true,
		"notes.txt":   false,
		"cover.jpg":   false,
		"noextension": false,
		"movie.mp4.x": false,
	} {
		require.Equal(t, want, IsMediaFile(name), name)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"b.mkv",
		"a.mp4",
		"nested/deeper/c.flac",
		"readme.txt",
		"broken.avi",
	)

	prober := &stubProber{broken: map[string]bool{"broken.avi": true}}
	catalog := New(Config{MediaDir: root, Workers: 2}, prober)

	n, err := catalog.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 4, prober.calls)

	all := catalog.All()
	require.Len(t, all, 3)

	// ids follow path order
	require.Equal(t, "a.mp4", all[0].Filename)
	require.Equal(t, "media_1", all[0].ID)
	require.Equal(t, "b.mkv", all[1].Filename)
	require.Equal(t, "media_2", all[1].ID)
	require.Equal(t, "c.flac", all[2].Filename)
	require.Equal(t, "media_3", all[2].ID)

	entry, ok := catalog.Get("media_1")
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "a.mp4"), entry.Path)
	require.Equal(t, "h264", entry.VideoCodec)
	require.Equal(t, 1920, entry.Width)
	require.Equal(t, "5.1", entry.ChannelLayout)
	require.Equal(t, 600.0, entry.Duration)
	require.Equal(t, 10*time.Minute, entry.ExpectedDuration())
	require.Equal(t, "mov,mp4", entry.Format)

	audio, ok := catalog.Get("media_3")
	require.True(t, ok)
	require.Equal(t, "unknown", audio.VideoCodec)
	require.Equal(t, "stereo", audio.ChannelLayout)

	_, ok = catalog.Get("media_99")
	require.False(t, ok)

	require.False(t, catalog.ScannedAt().IsZero())
}

func TestRescanKeepsIDs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "b.mp4")

	catalog := New(Config{MediaDir: root}, &stubProber{})

	_, err := catalog.Scan(context.Background())
	require.NoError(t, err)

	writeFiles(t, root, "a.mp4")
	_, err = catalog.Scan(context.Background())
	require.NoError(t, err)

	a, ok := catalog.Get("media_2")
	require.True(t, ok)
	require.Equal(t, "a.mp4", a.Filename)

	b, ok := catalog.Get("media_1")
	require.True(t, ok)
	require.Equal(t, "b.mp4", b.Filename)

	require.NoError(t, os.Remove(filepath.Join(root, "b.mp4")))
	n, err := catalog.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok = catalog.Get("media_1")
	require.False(t, ok)
}

func TestScanErrors(t *testing.T) {
	catalog := New(Config{MediaDir: filepath.Join(t.TempDir(), "missing")}, &stubProber{})
	_, err := catalog.Scan(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file.mp4")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	catalog = New(Config{MediaDir: file}, &stubProber{})
	_, err = catalog.Scan(context.Background())
	require.ErrorIs(t, err, ErrNotADirectory)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.mp4", "b.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	catalog := New(Config{MediaDir: root}, &cancelledProber{})
	_, err := catalog.Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, catalog.Len())
}

type cancelledProber struct{}

func (cancelledProber) Media(ctx context.Context, path string) (*probe.Data, error) {
	return nil, ctx.Err()
}

func TestSearch(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Beach.mp4", "mountains.mkv", "song.flac")

	catalog := New(Config{MediaDir: root}, &stubProber{})
	_, err := catalog.Scan(context.Background())
	require.NoError(t, err)

	names := func(entries []Entry) []string {
		out := []string{}
		for _, entry := range entries {
			out = append(out, entry.Filename)
		}
		return out
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Beach.mp4", "mountains.mkv", "song.flac"}},
		{"beach", []string{"Beach.mp4"}},
		{"FLAC", []string{"song.flac"}},
		{"h264", []string{"Beach.mp4", "mountains.mkv"}},
		{"holiday mountains", []string{"mountains.mkv"}},
		{"nothing like this", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			require.Equal(t, tt.want, names(catalog.Search(tt.query)))
		})
	}
}

func TestChannelLayout(t *testing.T) {
	require.Equal(t, "unknown", channelLayout(0))
	require.Equal(t, "mono", channelLayout(1))
	require.Equal(t, "7.1", channelLayout(8))
	require.Equal(t, "3 channels", channelLayout(3))
}
