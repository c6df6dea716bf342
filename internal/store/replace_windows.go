//go:build windows

package store

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// replaceFile moves the finished temp file over the manifest path.
// MOVEFILE_WRITE_THROUGH makes the replacement durable before returning,
// matching the directory sync on the unix side.
func replaceFile(tmpPath, finalPath string) error {
	from, err := windows.UTF16PtrFromString(tmpPath)
	if err != nil {
		return fmt.Errorf("replace %s: %w", finalPath, err)
	}
	to, err := windows.UTF16PtrFromString(finalPath)
	if err != nil {
		return fmt.Errorf("replace %s: %w", finalPath, err)
	}
	err = windows.MoveFileEx(from, to,
		windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
	if err != nil {
		return fmt.Errorf("replace %s: %w", finalPath, err)
	}
	return nil
}
