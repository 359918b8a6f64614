package vismem

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/orneryd/vismem/pkg/sampler"
	"github.com/orneryd/vismem/pkg/storage"
)

// SnapshotLayout is the tiling used by RenderSnapshot: one block of
// BlocksWide x BlocksHigh pixels per LED, LEDs arranged in an artificial
// square grid.
type SnapshotLayout struct {
	LEDsWide int
	LEDsHigh int
	Width    int
	Height   int
}

// NewSnapshotLayout computes the tiling for dense LEDs.
func NewSnapshotLayout(dense int, g sampler.Geometry) SnapshotLayout {
	if dense <= 0 {
		return SnapshotLayout{}
	}
	wide := int(math.Ceil(math.Sqrt(float64(dense))))
	high := (dense + wide - 1) / wide
	return SnapshotLayout{
		LEDsWide: wide,
		LEDsHigh: high,
		Width:    wide * g.BlocksWide,
		Height:   high * g.BlocksHigh,
	}
}

// Origin returns the top-left pixel of an LED's block.
func (l SnapshotLayout) Origin(led int, g sampler.Geometry) (x, y int) {
	return (led % l.LEDsWide) * g.BlocksWide, (led / l.LEDsWide) * g.BlocksHigh
}

// RenderSnapshot draws a store as an opaque RGB image. Every LED gets a
// block with one pixel per sample position, placed by the sampling grid.
// Short-term state goes to red, long-term state to green and blue. Values
// are normalized by the largest long-term value, which is also returned, and
// drawn with a quartic response so weak noise fades and strong memories
// stand out.
func RenderSnapshot(cells []storage.Cell, dense int, g sampler.Geometry) (*image.RGBA, float32) {
	layout := NewSnapshotLayout(dense, g)
	img := image.NewRGBA(image.Rect(0, 0, layout.Width, layout.Height))
	if dense <= 0 {
		return img, 0
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	cellMax := storage.LongTermMax(cells)
	var scale float32
	if cellMax > 0 {
		scale = 1 / cellMax
	}

	samples := min(len(cells)/dense, g.Samples())
	for sample := 0; sample < samples; sample++ {
		sx, sy := g.BlockX(sample), g.BlockY(sample)
		row := cells[sample*dense : (sample+1)*dense]
		for led, c := range row {
			ox, oy := layout.Origin(led, g)
			l := quartic(c.LongTerm * scale)
			img.SetRGBA(ox+sx, oy+sy, color.RGBA{R: quartic(c.ShortTerm * scale), G: l, B: l, A: 0xff})
		}
	}
	return img, cellMax
}

func quartic(v float32) uint8 {
	q := v*v*v*v*255 + 0.5
	if q > 255.5 {
		q = 255.5
	}
	return uint8(int(q))
}

// WriteSnapshot encodes img to path with enc.
func WriteSnapshot(path string, img image.Image, enc Encoder) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vismem: snapshot: %w", err)
	}
	if err := enc(f, img); err != nil {
		f.Close()
		return fmt.Errorf("vismem: snapshot: encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vismem: snapshot: %w", err)
	}
	return nil
}

// Snapshot renders the store to path. It only reads the store; while the
// learner is running the image may mix values from neighbouring sweeps.
func (e *Engine) Snapshot(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		e.log.Log("error", "snapshot failed", map[string]any{"path": path, "error": ErrNotStarted.Error()})
		return ErrNotStarted
	}

	img, cellMax := RenderSnapshot(e.store.Cells(), e.index.DenseCount(), e.geom)
	e.log.Log("info", "snapshot range", map[string]any{"run_id": e.runID, "range": cellMax})

	if err := WriteSnapshot(path, img, e.cfg.Encoder); err != nil {
		e.log.Log("error", "snapshot failed", map[string]any{"run_id": e.runID, "path": path, "error": err.Error()})
		return err
	}
	e.log.Log("info", "snapshot saved", map[string]any{"run_id": e.runID, "path": path})
	return nil
}
