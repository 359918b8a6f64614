package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometry(t *testing.T) {
	g := DefaultGeometry()
	require.NoError(t, g.Validate())
	assert.Equal(t, 1200, g.Samples())
	assert.Equal(t, 3, g.BlockX(43))
	assert.Equal(t, 1, g.BlockY(43))

	assert.ErrorIs(t, Geometry{FrameWidth: 4, FrameHeight: 4}.Validate(), ErrInvalidGeometry)
	assert.ErrorIs(t, Geometry{FrameWidth: 2, FrameHeight: 4, BlocksWide: 3, BlocksHigh: 1}.Validate(), ErrInvalidGeometry)
}

func collect(s Sampler, chunk Chunk) map[int]uint8 {
	out := map[int]uint8{}
	s.Sample(chunk, func(i int, l uint8) { out[i] = l })
	return out
}

func TestGridSampler(t *testing.T) {
	g := Geometry{FrameWidth: 4, FrameHeight: 2, BlocksWide: 2, BlocksHigh: 1}
	s := NewGridSampler(g)

	t.Run("averages_blocks", func(t *testing.T) {
		frame := Chunk{
			0, 10, 200, 200,
			20, 30, 100, 100,
		}
		got := collect(s, frame)
		assert.Equal(t, map[int]uint8{0: 15, 1: 150}, got)
	})

	t.Run("malformed_chunk_yields_nothing", func(t *testing.T) {
		assert.Empty(t, collect(s, Chunk{1, 2, 3}))
		assert.Empty(t, collect(s, nil))
	})

	t.Run("render_round_trip", func(t *testing.T) {
		big := NewGridSampler(DefaultGeometry())
		lum := make([]uint8, big.Geometry().Samples())
		for i := range lum {
			lum[i] = uint8(i * 7)
		}
		got := collect(big, big.Render(lum))
		require.Len(t, got, len(lum))
		for i, l := range lum {
			assert.Equal(t, l, got[i])
		}
	})
}

func TestGridSampler_EmptyGeometry(t *testing.T) {
	var s *GridSampler
	require.NotPanics(t, func() { s = NewGridSampler(Geometry{}) })
	assert.ErrorIs(t, s.Geometry().Validate(), ErrInvalidGeometry)
	assert.Empty(t, collect(s, nil))
	assert.Empty(t, collect(s, Chunk{1, 2, 3, 4}))
	assert.Empty(t, s.Render([]uint8{9}))

	s = NewGridSampler(Geometry{FrameWidth: 4, FrameHeight: 4, BlocksWide: 2})
	assert.Empty(t, collect(s, make(Chunk, 16)))
}
