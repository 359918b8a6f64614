// Package simulate is a virtual LED installation for exercising the learning
// engine without hardware.
//
// A Rig owns a pixel layout, a renderer that animates the LEDs and records
// every frame in an effect.Tap, and a camera that photographs the LEDs
// through a fixed random light-transport model. The camera sees each LED
// frame Latency after it was rendered, the way a real camera sees a real
// installation.
//
// Example:
//
//	rig, err := simulate.New(simulate.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	eng, _ := vismem.New(vismem.DefaultConfig(), rig.Sampler())
//	eng.Start("memory.bin", rig.Layout(), rig.History())
//	rig.Run(ctx, eng.Ingest)
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/orneryd/vismem/pkg/effect"
	"github.com/orneryd/vismem/pkg/sampler"
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("simulate: invalid config")

// Config describes a virtual installation.
type Config struct {
	// Pixels is the number of logical pixels in the layout.
	Pixels int

	// UnmappedEvery leaves every n-th pixel unwired. Zero wires all pixels.
	UnmappedEvery int

	// LEDRate and CameraRate are frames per second.
	LEDRate    int
	CameraRate int

	// Latency is how old an LED frame is when the camera sees it.
	Latency time.Duration

	// Geometry is the camera sampling grid.
	Geometry sampler.Geometry

	// Spread is the number of sample positions each LED lights.
	Spread int

	// Gain scales light reaching the camera before it saturates.
	Gain float64

	// Seed fixes the light-transport model.
	Seed int64
}

// DefaultConfig is a small installation that learns in seconds.
func DefaultConfig() Config {
	return Config{
		Pixels:        48,
		UnmappedEvery: 7,
		LEDRate:       60,
		CameraRate:    30,
		Latency:       300 * time.Millisecond,
		Geometry:      sampler.Geometry{FrameWidth: 64, FrameHeight: 48, BlocksWide: 16, BlocksHigh: 12},
		Spread:        4,
		Gain:          2.5,
		Seed:          1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Pixels <= 0:
		return fmt.Errorf("%w: pixels must be positive", ErrInvalidConfig)
	case c.UnmappedEvery < 0:
		return fmt.Errorf("%w: unmapped interval must not be negative", ErrInvalidConfig)
	case c.LEDRate <= 0 || c.CameraRate <= 0:
		return fmt.Errorf("%w: frame rates must be positive", ErrInvalidConfig)
	case c.Latency < 0:
		return fmt.Errorf("%w: negative latency", ErrInvalidConfig)
	case c.Spread <= 0:
		return fmt.Errorf("%w: spread must be positive", ErrInvalidConfig)
	case c.Gain <= 0:
		return fmt.Errorf("%w: gain must be positive", ErrInvalidConfig)
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// link is one path of light from an LED to a sample position.
type link struct {
	pixel  int
	weight float64
}

// Rig is a running virtual installation.
type Rig struct {
	cfg    Config
	layout effect.PixelInfoVec
	tap    *effect.Tap
	camera *sampler.GridSampler
	phase  []float64
	lights [][]link // by sample position

	ledFrames    atomic.Uint64
	cameraFrames atomic.Uint64
}

// New builds a rig. The same config always builds the same rig.
func New(cfg Config) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := mathrand.New(mathrand.NewSource(cfg.Seed))
	samples := cfg.Geometry.Samples()

	layout := make(effect.PixelInfoVec, cfg.Pixels)
	phase := make([]float64, cfg.Pixels)
	lights := make([][]link, samples)
	for p := range layout {
		mapped := cfg.UnmappedEvery == 0 || (p+1)%cfg.UnmappedEvery != 0
		// pixels sit on a helix around the camera's view axis
		a := 2 * math.Pi * float64(p) / float64(cfg.Pixels)
		layout[p] = effect.PixelInfo{
			Index:  p,
			Point:  [3]float64{math.Cos(a), math.Sin(a), float64(p) / float64(cfg.Pixels)},
			Mapped: mapped,
		}
		phase[p] = rng.Float64()

		if !mapped {
			continue
		}
		for i := 0; i < cfg.Spread; i++ {
			s := rng.Intn(samples)
			lights[s] = append(lights[s], link{pixel: p, weight: 0.5 + rng.Float64()/2})
		}
	}

	// History must reach back past the latency with room for jitter.
	depth := int(cfg.Latency.Seconds()*float64(cfg.LEDRate))*2 + cfg.LEDRate
	tapCfg := effect.DefaultTapConfig()
	if depth > tapCfg.Capacity {
		tapCfg.Capacity = depth
	}

	return &Rig{
		cfg:    cfg,
		layout: layout,
		tap:    effect.NewTap(tapCfg),
		camera: sampler.NewGridSampler(cfg.Geometry),
		phase:  phase,
		lights: lights,
	}, nil
}

// Layout returns the pixel layout.
func (r *Rig) Layout() effect.PixelInfoVec { return r.layout }

// History returns the record of rendered LED frames.
func (r *Rig) History() *effect.Tap { return r.tap }

// Sampler returns a sampler that understands the rig's camera frames.
func (r *Rig) Sampler() *sampler.GridSampler { return r.camera }

// Frames returns how many LED and camera frames have been produced.
func (r *Rig) Frames() (led, camera uint64) {
	return r.ledFrames.Load(), r.cameraFrames.Load()
}

// Colors renders the LEDs at time t since the start of the animation. Each
// pixel cycles through the hue wheel and pulses in brightness with its own
// phase. Unmapped pixels stay dark.
func (r *Rig) Colors(t time.Duration) []colorful.Color {
	sec := t.Seconds()
	colors := make([]colorful.Color, len(r.layout))
	for p, px := range r.layout {
		if !px.Mapped {
			continue
		}
		hue := math.Mod(360*float64(p)/float64(len(r.layout))+45*sec, 360)
		value := 0.5 + 0.5*math.Sin(2*math.Pi*(0.5*sec+r.phase[p]))
		colors[p] = colorful.Hsv(hue, 1, value).Clamped()
	}
	return colors
}

// Expose computes the luminance of every sample position for one LED frame.
func (r *Rig) Expose(colors []colorful.Color) []uint8 {
	luminance := make([]uint8, len(r.lights))
	for s, links := range r.lights {
		var light float64
		for _, l := range links {
			if l.pixel >= len(colors) {
				continue
			}
			c := colors[l.pixel].Clamped()
			light += l.weight * (c.R + c.G + c.B) / 3
		}
		luminance[s] = uint8(math.Round(255 * math.Min(1, light*r.cfg.Gain)))
	}
	return luminance
}

// Photograph renders the camera frame for one LED frame.
func (r *Rig) Photograph(colors []colorful.Color) sampler.Chunk {
	return r.camera.Render(r.Expose(colors))
}

// Run animates the LEDs and films them until ctx ends, handing every camera
// frame to ingest. ingest is only ever called from one goroutine.
func (r *Rig) Run(ctx context.Context, ingest func(sampler.Chunk)) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.render(ctx)
	}()
	go func() {
		defer wg.Done()
		r.film(ctx, ingest)
	}()
	wg.Wait()
}

func (r *Rig) render(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.LEDRate))
	defer ticker.Stop()

	start := time.Now()
	for {
		r.tap.Push(r.Colors(time.Since(start)))
		r.ledFrames.Add(1)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Rig) film(ctx context.Context, ingest func(sampler.Chunk)) {
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.CameraRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The light the camera sees now left the LEDs Latency ago.
		frame := r.tap.Get(r.cfg.Latency)
		if frame == nil {
			continue
		}
		ingest(r.Photograph(frame.Colors))
		r.cameraFrames.Add(1)
	}
}
