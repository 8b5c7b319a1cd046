package hlsstream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var segmentFileRegex = regexp.MustCompile(`^segment_([0-9]+)\.ts$`)

type segmentFile struct {
	name  string
	index int
}

// listSegments returns completed segment files in dir ordered by index.
func listSegments(dir string) ([]segmentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	segments := make([]segmentFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		match := segmentFileRegex.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		segments = append(segments, segmentFile{
			name:  entry.Name(),
			index: index,
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		if segments[i].index == segments[j].index {
			return segments[i].name < segments[j].name
		}
		return segments[i].index < segments[j].index
	})

	return segments, nil
}

// PruneSegments removes all but the newest keep segment files from dir and
// returns the names it removed. Files not shaped like segments are ignored.
func PruneSegments(dir string, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("%w: keep count must not be negative", ErrInvalidConfig)
	}

	segments, err := listSegments(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if len(segments) <= keep {
		return nil, nil
	}

	var removed []string
	for _, segment := range segments[:len(segments)-keep] {
		if err := removeSegment(dir, segment.name); err != nil {
			return removed, err
		}
		removed = append(removed, segment.name)
	}

	return removed, nil
}

// removeSegment renames the file out of the segment namespace first, so a
// reader opening it by name gets either the whole file or not-found.
func removeSegment(dir, name string) error {
	path := filepath.Join(dir, name)
	tombstone := filepath.Join(dir, "."+name+".deleted")

	if err := os.Rename(path, tombstone); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := os.Remove(tombstone); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
