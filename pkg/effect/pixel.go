// Package effect holds the LED-side collaborators of the learning engine: the
// pixel layout and the time-indexed history of rendered LED frames.
package effect

import (
	"github.com/lucasb-eyer/go-colorful"
)

// PixelInfo describes one logical pixel of the layout.
type PixelInfo struct {
	Index  int
	Point  [3]float64
	Mapped bool
}

// IsMapped reports whether the pixel is wired to a physical LED.
func (p PixelInfo) IsMapped() bool { return p.Mapped }

// PixelInfoVec is a full layout, indexed by sparse pixel index. It satisfies
// pixel.Mapping.
type PixelInfoVec []PixelInfo

// PixelCount returns the number of logical pixels.
func (v PixelInfoVec) PixelCount() int { return len(v) }

// IsMapped reports whether pixel index is wired.
func (v PixelInfoVec) IsMapped(index int) bool {
	return index >= 0 && index < len(v) && v[index].Mapped
}

// Frame is one rendered LED frame. Colors is indexed by sparse pixel index.
type Frame struct {
	Timestamp int64 // unix nanoseconds
	Colors    []colorful.Color
}

// Color returns the color of a pixel, or black when the frame is shorter
// than the layout.
func (f *Frame) Color(index int) colorful.Color {
	if index < 0 || index >= len(f.Colors) {
		return colorful.Color{}
	}
	return f.Colors[index]
}
