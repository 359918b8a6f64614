package sampler

// GridSampler samples whole 8-bit grayscale frames, averaging each block.
// Frames whose width does not divide evenly lose the remainder columns and
// rows at the right and bottom edges.
type GridSampler struct {
	geom   Geometry
	blockW int
	blockH int
}

// NewGridSampler returns a sampler for g. If g has no blocks the sampler
// emits nothing; callers reject such a geometry through Geometry().Validate.
func NewGridSampler(g Geometry) *GridSampler {
	s := &GridSampler{geom: g}
	if g.BlocksWide > 0 && g.BlocksHigh > 0 {
		s.blockW = g.FrameWidth / g.BlocksWide
		s.blockH = g.FrameHeight / g.BlocksHigh
	}
	return s
}

// Geometry implements Sampler.
func (s *GridSampler) Geometry() Geometry { return s.geom }

// Sample implements Sampler. chunk must be exactly one frame.
func (s *GridSampler) Sample(chunk Chunk, emit func(index int, luminance uint8)) {
	if len(chunk) != s.geom.FrameBytes() || s.blockW == 0 || s.blockH == 0 {
		return
	}

	area := uint32(s.blockW * s.blockH)
	stride := s.geom.FrameWidth

	for by := 0; by < s.geom.BlocksHigh; by++ {
		for bx := 0; bx < s.geom.BlocksWide; bx++ {
			var sum uint32
			x0, y0 := bx*s.blockW, by*s.blockH
			for y := y0; y < y0+s.blockH; y++ {
				row := chunk[y*stride+x0 : y*stride+x0+s.blockW]
				for _, v := range row {
					sum += uint32(v)
				}
			}
			emit(by*s.geom.BlocksWide+bx, uint8((sum+area/2)/area))
		}
	}
}

// Render fills a frame so that every pixel of a block has that block's
// luminance. It is the inverse of Sample and is used to synthesize camera
// frames.
func (s *GridSampler) Render(luminance []uint8) Chunk {
	frame := make(Chunk, s.geom.FrameBytes())
	stride := s.geom.FrameWidth
	for i, l := range luminance {
		if i >= s.geom.Samples() {
			break
		}
		x0 := s.geom.BlockX(i) * s.blockW
		y0 := s.geom.BlockY(i) * s.blockH
		for y := y0; y < y0+s.blockH; y++ {
			row := frame[y*stride+x0 : y*stride+x0+s.blockW]
			for x := range row {
				row[x] = l
			}
		}
	}
	return frame
}
