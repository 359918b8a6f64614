// Package pixel compacts the sparse LED address space into a dense index.
//
// A layout may address more pixels than are physically wired. Learned state is
// stored only for wired pixels, so storage is addressed by dense index while
// anything published to renderers is expanded back to the sparse space.
package pixel

// Mapping describes which logical pixels are wired to hardware.
type Mapping interface {
	PixelCount() int
	IsMapped(index int) bool
}

// Index is an immutable dense <-> sparse pixel mapping.
type Index struct {
	denseToSparse []int
	sparseToDense []int // -1 for unmapped pixels
}

// Compact builds the dense index over every mapped pixel, in sparse order.
func Compact(m Mapping) *Index {
	n := m.PixelCount()
	if n < 0 {
		n = 0
	}

	idx := &Index{
		denseToSparse: make([]int, 0, n),
		sparseToDense: make([]int, n),
	}
	for i := 0; i < n; i++ {
		if m.IsMapped(i) {
			idx.sparseToDense[i] = len(idx.denseToSparse)
			idx.denseToSparse = append(idx.denseToSparse, i)
		} else {
			idx.sparseToDense[i] = -1
		}
	}
	return idx
}

// DenseCount is the number of wired pixels.
func (x *Index) DenseCount() int { return len(x.denseToSparse) }

// SparseCount is the size of the full logical pixel space.
func (x *Index) SparseCount() int { return len(x.sparseToDense) }

// Sparse returns the sparse index of a dense index. It panics if dense is out
// of range, like a slice access.
func (x *Index) Sparse(dense int) int { return x.denseToSparse[dense] }

// Dense returns the dense index of a sparse pixel, and false if the pixel is
// unmapped or out of range.
func (x *Index) Dense(sparse int) (int, bool) {
	if sparse < 0 || sparse >= len(x.sparseToDense) {
		return 0, false
	}
	d := x.sparseToDense[sparse]
	return d, d >= 0
}

// DenseToSparse returns a copy of the dense-to-sparse table.
func (x *Index) DenseToSparse() []int {
	out := make([]int, len(x.denseToSparse))
	copy(out, x.denseToSparse)
	return out
}

// Table returns the dense-to-sparse table without copying, for hot loops.
// Callers must not modify it.
func (x *Index) Table() []int { return x.denseToSparse }
