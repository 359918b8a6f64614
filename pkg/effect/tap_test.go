package effect

import (
	"sync"
	"testing"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func solid(v float64) []colorful.Color {
	return []colorful.Color{{R: v, G: v, B: v}}
}

func TestTap_Get(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tap := NewTap(TapConfig{Capacity: 4, Now: clock.Now})

	t.Run("absent_when_empty", func(t *testing.T) {
		assert.Nil(t, tap.Get(0))
		assert.Zero(t, tap.Depth())
	})

	for i := 1; i <= 3; i++ {
		tap.Push(solid(float64(i) / 10))
		clock.Advance(100 * time.Millisecond)
	}

	t.Run("returns_delayed_frame", func(t *testing.T) {
		f := tap.Get(150 * time.Millisecond)
		require.NotNil(t, f)
		assert.Equal(t, 0.2, f.Colors[0].R)
	})

	t.Run("zero_delay_returns_newest", func(t *testing.T) {
		f := tap.Get(0)
		require.NotNil(t, f)
		assert.Equal(t, 0.3, f.Colors[0].R)
	})

	t.Run("absent_when_not_deep_enough", func(t *testing.T) {
		assert.Nil(t, tap.Get(time.Second))
	})

	t.Run("ring_drops_oldest", func(t *testing.T) {
		for i := 4; i <= 6; i++ {
			tap.Push(solid(float64(i) / 10))
			clock.Advance(100 * time.Millisecond)
		}
		assert.Equal(t, 4, tap.Len())
		assert.Equal(t, 400*time.Millisecond, tap.Depth())
		assert.Nil(t, tap.Get(450*time.Millisecond))
		f := tap.Get(400 * time.Millisecond)
		require.NotNil(t, f)
		assert.Equal(t, 0.3, f.Colors[0].R)
	})
}

func TestPixelInfoVec(t *testing.T) {
	v := PixelInfoVec{{Index: 0, Mapped: true}, {Index: 1}, {Index: 2, Mapped: true}}
	assert.Equal(t, 3, v.PixelCount())
	assert.True(t, v.IsMapped(0))
	assert.False(t, v.IsMapped(1))
	assert.False(t, v.IsMapped(7))
}

func TestFrame_Color(t *testing.T) {
	f := &Frame{Colors: solid(0.5)}
	assert.Equal(t, 0.5, f.Color(0).G)
	assert.Equal(t, colorful.Color{}, f.Color(3))
}
