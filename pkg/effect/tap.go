package effect

import (
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// History is a time-indexed, append-only record of LED output.
type History interface {
	// Get returns the frame that was on the LEDs delay ago, or nil if the
	// history does not reach back that far yet.
	Get(delay time.Duration) *Frame
}

// TapConfig sizes a Tap.
type TapConfig struct {
	// Capacity is the number of frames retained.
	Capacity int

	// Now is the clock used to stamp and look up frames. Defaults to time.Now.
	Now func() time.Time
}

// DefaultTapConfig keeps two seconds of output at 60 fps.
func DefaultTapConfig() TapConfig {
	return TapConfig{Capacity: 120}
}

// Tap records frames as a renderer emits them and serves delayed lookups.
// Push and Get may be called from different goroutines.
type Tap struct {
	mu     sync.RWMutex
	now    func() time.Time
	frames []*Frame // ring buffer
	next   int
	count  int
}

// NewTap creates a Tap.
func NewTap(cfg TapConfig) *Tap {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultTapConfig().Capacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tap{
		now:    cfg.Now,
		frames: make([]*Frame, cfg.Capacity),
	}
}

// Push records a frame stamped with the current time. The colors slice is
// owned by the tap afterwards.
func (t *Tap) Push(colors []colorful.Color) {
	f := &Frame{Timestamp: t.now().UnixNano(), Colors: colors}

	t.mu.Lock()
	t.frames[t.next] = f
	t.next = (t.next + 1) % len(t.frames)
	if t.count < len(t.frames) {
		t.count++
	}
	t.mu.Unlock()
}

// Get implements History: it returns the newest frame stamped at or before
// now-delay.
func (t *Tap) Get(delay time.Duration) *Frame {
	cutoff := t.now().Add(-delay).UnixNano()

	t.mu.RLock()
	defer t.mu.RUnlock()

	// newest to oldest
	for i := 1; i <= t.count; i++ {
		f := t.frames[(t.next-i+len(t.frames))%len(t.frames)]
		if f.Timestamp <= cutoff {
			return f
		}
	}
	return nil
}

// Len returns the number of frames retained.
func (t *Tap) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Depth returns how far back the retained history reaches.
func (t *Tap) Depth() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.count == 0 {
		return 0
	}
	oldest := t.frames[(t.next-t.count+len(t.frames))%len(t.frames)]
	return time.Duration(t.now().UnixNano() - oldest.Timestamp)
}
