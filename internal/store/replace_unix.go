//go:build !windows

package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// replaceFile moves the finished temp file over the manifest path. The
// parent directory is synced afterwards so the new entry survives a crash;
// a manifest naming skipped tests must not silently vanish.
func replaceFile(tmpPath, finalPath string) error {
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("replace %s: %w", finalPath, err)
	}
	d, err := os.Open(filepath.Dir(finalPath))
	if err != nil {
		return nil
	}
	_ = d.Sync()
	_ = d.Close()
	return nil
}
