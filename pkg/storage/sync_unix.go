//go:build unix

package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// syncDir fsyncs the directory holding path so that a newly created or
// resized store file survives a crash. Without it the directory entry can be
// lost even though the mapping itself is flushed.
func syncDir(path string) error {
	d, err := os.Open(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("storage: failed to open directory for sync: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("storage: failed to sync directory: %w", err)
	}
	return nil
}
