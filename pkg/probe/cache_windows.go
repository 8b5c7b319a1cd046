//go:build windows
// +build windows

package probe

import (
	"os"
	"path/filepath"
)

func writeCacheFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
