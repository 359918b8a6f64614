// Package storage provides the persistent, memory-mapped cell store of the
// visual memory.
//
// The store is a flat array of cells backed by a file. There is no header and
// no versioning: the file is exactly cells × CellSize bytes, ordered
// sample-position-major, dense-LED-minor, each cell being two native-endian
// float32 values (short-term, then long-term). All supported hosts are
// little-endian, so the on-disk format is little-endian.
//
// Usage:
//
//	store, err := storage.Open("/var/lib/vismem/memory.bin", samples*leds, storage.Options{})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	row := store.Row(sample, leds)
//	row[led].ShortTerm += 1
//
// A store has a single writer. Concurrent readers see whatever the writer last
// stored, possibly mid-update; the learning dynamics tolerate that.
package storage

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/orneryd/vismem/pkg/decay"
)

// Cell is the persisted record. Field order is part of the file format.
type Cell = decay.Cell

// CellSize is the serialized size of one Cell in bytes.
const CellSize = int(unsafe.Sizeof(Cell{}))

// Common store errors
var (
	ErrInvalidGeometry  = errors.New("storage: cell count must be positive")
	ErrGeometryMismatch = errors.New("storage: file size does not match geometry")
	ErrClosed           = errors.New("storage: closed")
	ErrUnsupported      = errors.New("storage: memory mapping not supported on this platform")
)

// Options control how an existing file is treated.
type Options struct {
	// ResizeOnMismatch truncates or extends an existing file whose size does
	// not match the requested geometry instead of rejecting it. Cells beyond
	// the old end read as zero; the old contents are reinterpreted in place.
	ResizeOnMismatch bool
}

// Store is a memory-mapped array of cells.
type Store struct {
	path  string
	data  []byte
	cells []Cell
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Len returns the number of cells.
func (s *Store) Len() int { return len(s.cells) }

// Bytes returns the mapped size in bytes.
func (s *Store) Bytes() int64 { return int64(len(s.data)) }

// Cells returns the whole mapped array. Writes go straight to the mapping.
func (s *Store) Cells() []Cell { return s.cells }

// Row returns the cells of one sample position for a store that is width
// cells wide.
func (s *Store) Row(sample, width int) []Cell {
	start := sample * width
	return s.cells[start : start+width : start+width]
}

// LongTermMax returns the largest long-term value in the store, or 0 for an
// empty store.
func (s *Store) LongTermMax() float32 {
	return LongTermMax(s.cells)
}

// LongTermMax returns the largest long-term value of cells, or 0 if cells is empty.
func LongTermMax(cells []Cell) float32 {
	if len(cells) == 0 {
		return 0
	}
	m := cells[0].LongTerm
	for i := 1; i < len(cells); i++ {
		if cells[i].LongTerm > m {
			m = cells[i].LongTerm
		}
	}
	return m
}

// ExpectedBytes returns the file size for a geometry.
func ExpectedBytes(cells int) int64 {
	return int64(cells) * int64(CellSize)
}

// CellsForSize returns how many cells a file of size bytes holds, and false if
// the size is not a whole number of cells.
func CellsForSize(size int64) (int, bool) {
	if size <= 0 || size%int64(CellSize) != 0 {
		return 0, false
	}
	return int(size / int64(CellSize)), true
}

func checkGeometry(cells int) error {
	if cells <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidGeometry, cells)
	}
	return nil
}

func cellView(data []byte) []Cell {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*Cell)(unsafe.Pointer(&data[0])), len(data)/CellSize)
}
