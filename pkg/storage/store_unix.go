//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Open opens or creates the file at path and maps it as an array of cells.
//
// A new or empty file is sized to exactly cells × CellSize bytes and reads as
// zero. An existing file of the right size is mapped as is, so learned state
// survives restarts. An existing file of any other size is rejected with
// ErrGeometryMismatch unless opts.ResizeOnMismatch is set.
//
// On error nothing is left open.
func Open(path string, cells int, opts Options) (*Store, error) {
	if err := checkGeometry(cells); err != nil {
		return nil, err
	}
	want := ExpectedBytes(cells)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open %s: %w", path, err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("storage: failed to stat %s: %w", path, err)
	}

	if st.Size != want {
		if st.Size != 0 && !opts.ResizeOnMismatch {
			return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrGeometryMismatch, path, st.Size, want)
		}
		if err := unix.Ftruncate(fd, want); err != nil {
			return nil, fmt.Errorf("storage: failed to set length of %s: %w", path, err)
		}
		if err := syncDir(path); err != nil {
			return nil, err
		}
	}

	data, err := unix.Mmap(fd, 0, int(want), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to map %s: %w", path, err)
	}

	return &Store{
		path:  path,
		data:  data,
		cells: cellView(data),
	}, nil
}

// Sync flushes dirty pages of the mapping to the file.
func (s *Store) Sync() error {
	if s.data == nil {
		return ErrClosed
	}
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("storage: failed to sync %s: %w", s.path, err)
	}
	return nil
}

// Close unmaps the store. Cells obtained earlier must not be used afterwards.
// Closing twice is a no-op.
func (s *Store) Close() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	s.cells = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("storage: failed to unmap %s: %w", s.path, err)
	}
	return nil
}
