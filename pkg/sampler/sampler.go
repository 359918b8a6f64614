// Package sampler turns camera frames into per-position luminance samples.
//
// The camera image is divided into a grid of blocks; each block is one sample
// position. Sample indices run row by row, so BlockX and BlockY recover the
// grid position of a sample for debug rendering.
package sampler

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned by Geometry.Validate.
var ErrInvalidGeometry = errors.New("sampler: invalid geometry")

// Chunk is one piece of raw video handed to a Sampler.
type Chunk []byte

// Geometry describes the sampling grid over a camera frame.
type Geometry struct {
	FrameWidth  int
	FrameHeight int
	BlocksWide  int
	BlocksHigh  int
}

// DefaultGeometry samples a 640x480 frame with 16x16 pixel blocks.
func DefaultGeometry() Geometry {
	return Geometry{
		FrameWidth:  640,
		FrameHeight: 480,
		BlocksWide:  40,
		BlocksHigh:  30,
	}
}

// Samples returns the number of sample positions.
func (g Geometry) Samples() int { return g.BlocksWide * g.BlocksHigh }

// BlockX returns the grid column of a sample.
func (g Geometry) BlockX(sample int) int { return sample % g.BlocksWide }

// BlockY returns the grid row of a sample.
func (g Geometry) BlockY(sample int) int { return sample / g.BlocksWide }

// FrameBytes is the size of one 8-bit grayscale frame.
func (g Geometry) FrameBytes() int { return g.FrameWidth * g.FrameHeight }

// Validate checks that the grid is non-empty and fits the frame.
func (g Geometry) Validate() error {
	switch {
	case g.BlocksWide <= 0 || g.BlocksHigh <= 0:
		return fmt.Errorf("%w: %dx%d blocks", ErrInvalidGeometry, g.BlocksWide, g.BlocksHigh)
	case g.FrameWidth < g.BlocksWide || g.FrameHeight < g.BlocksHigh:
		return fmt.Errorf("%w: %dx%d frame cannot hold %dx%d blocks",
			ErrInvalidGeometry, g.FrameWidth, g.FrameHeight, g.BlocksWide, g.BlocksHigh)
	}
	return nil
}

// Sampler extracts luminance samples from raw video.
type Sampler interface {
	// Geometry reports the sampling grid.
	Geometry() Geometry

	// Sample calls emit once per sample found in chunk. A malformed chunk
	// yields no samples.
	Sample(chunk Chunk, emit func(index int, luminance uint8))
}
