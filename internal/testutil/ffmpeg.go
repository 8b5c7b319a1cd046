// Package testutil provides a scripted stand-in for the ffmpeg binary.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

type Exit int

const (
	// keeps running until it is signaled
	ExitNever Exit = iota
	// exits with status 0 once all segments are written
	ExitSuccess
	// writes segments, prints an error line and exits with status 1
	ExitFailure
	// ignores SIGTERM and keeps running until it is killed
	ExitIgnoreTerm
)

const scriptTemplate = `#!/bin/sh
%s
seg=""
prev=""
last=""
for arg in "$@"; do
	if [ "$prev" = "-hls_segment_filename" ]; then
		seg="$arg"
	fi
	prev="$arg"
	last="$arg"
done

dir=$(dirname "$seg")
mkdir -p "$dir"

printf '#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n' > "$last.tmp"
i=0
while [ $i -lt %d ]; do
	name=$(printf 'segment_%%03d.ts' $i)
	printf 'segment-data-%%d' $i > "$dir/$name"
	printf '#EXTINF:4.000000,\n%%s/%%s\n' "$dir" "$name" >> "$last.tmp"
	i=$((i+1))
done
mv "$last.tmp" "$last"

%s
`

// SkipOnWindows skips tests that rely on the shell script transcoder.
func SkipOnWindows(t testing.TB) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake transcoder requires /bin/sh")
	}
}

// FakeFFmpeg writes an executable script that behaves like ffmpeg producing
// an HLS output with the given number of segments, and returns its path.
func FakeFFmpeg(t testing.TB, segments int, exit Exit) string {
	t.Helper()
	SkipOnWindows(t)

	var head, tail string
	switch exit {
	case ExitSuccess:
		tail = "exit 0"
	case ExitFailure:
		tail = "echo 'Conversion failed!' >&2\nexit 1"
	case ExitIgnoreTerm:
		// set before any output, children inherit the ignored signal
		head = "trap '' TERM"
		tail = "while true; do sleep 1; done"
	default:
		tail = "exec sleep 30"
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := fmt.Sprintf(scriptTemplate, head, segments, tail)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("unable to write fake ffmpeg: %v", err)
	}

	return path
}

// MediaFile creates a placeholder input file and returns its path.
func MediaFile(t testing.TB, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really a movie"), 0644); err != nil {
		t.Fatalf("unable to write media file: %v", err)
	}

	return path
}
