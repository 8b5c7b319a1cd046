package hlsstream

import (
	"regexp"
	"strings"
)

var segmentNameRegex = regexp.MustCompile(`^segment_[0-9]{3,}\.ts$`)

// Reader serves playlist and segment bytes of registered streams.
type Reader struct {
	registry *Registry
}

func NewReader(registry *Registry) *Reader {
	return &Reader{
		registry: registry,
	}
}

func (r *Reader) Playlist(streamID string) ([]byte, error) {
	return r.registry.GetPlaylist(streamID)
}

// Segment rejects malformed names before the registry is consulted.
func (r *Reader) Segment(streamID, name string) ([]byte, error) {
	if err := ValidateSegmentName(name); err != nil {
		return nil, err
	}

	return r.registry.GetSegment(streamID, name)
}

func ValidateSegmentName(name string) error {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) ||
		!segmentNameRegex.MatchString(name) {
		return ErrInvalidName
	}

	return nil
}
