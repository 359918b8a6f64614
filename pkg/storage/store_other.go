//go:build !unix

package storage

// Open is not available without POSIX memory mapping.
func Open(path string, cells int, opts Options) (*Store, error) {
	if err := checkGeometry(cells); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

// Sync is not available without POSIX memory mapping.
func (s *Store) Sync() error { return ErrUnsupported }

// Close releases nothing on platforms without memory mapping.
func (s *Store) Close() error { return nil }
