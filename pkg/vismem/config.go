package vismem

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/orneryd/vismem/pkg/decay"
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("vismem: invalid config")

// Encoder writes a debug snapshot image.
type Encoder func(w io.Writer, img image.Image) error

// Config holds engine configuration.
type Config struct {
	// Learning holds the tuned learning constants.
	Learning decay.Params

	// ExpectedDelay is the camera-to-light round trip. The learner pairs
	// each camera sample with the LED frame that was showing this long ago.
	ExpectedDelay time.Duration

	// RetryWait is how long the learner yields when the LED history is not
	// deep enough yet.
	RetryWait time.Duration

	// IdleWait is how long the learner yields after a sweep in which no
	// sample was bright enough to learn from.
	IdleWait time.Duration

	// StatsInterval is how often throughput is measured and logged.
	StatsInterval time.Duration

	// ResizeOnMismatch lets Start resize an existing store file whose size
	// does not match the current geometry instead of failing.
	ResizeOnMismatch bool

	// Logger receives diagnostics. Defaults to the standard logger.
	Logger Logger

	// Encoder writes snapshots. Defaults to PNG.
	Encoder Encoder
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Learning:      decay.DefaultParams(),
		ExpectedDelay: 300 * time.Millisecond,
		RetryWait:     10 * time.Millisecond,
		IdleWait:      time.Millisecond,
		StatsInterval: 2 * time.Second,
		Logger:        defaultLogger{},
		Encoder:       png.Encode,
	}
}

// Validate checks the configuration for values the learner cannot run with.
func (c Config) Validate() error {
	p := c.Learning
	switch {
	case p.ShortTermPermeability <= 0 || p.ShortTermPermeability > 1:
		return fmt.Errorf("%w: short-term permeability %v not in (0,1]", ErrInvalidConfig, p.ShortTermPermeability)
	case p.LongTermPermeability <= 0 || p.LongTermPermeability > 1:
		return fmt.Errorf("%w: long-term permeability %v not in (0,1]", ErrInvalidConfig, p.LongTermPermeability)
	case p.LuminanceMax <= 0:
		return fmt.Errorf("%w: luminance max must be positive", ErrInvalidConfig)
	case p.ToleranceFloor <= 0:
		return fmt.Errorf("%w: tolerance floor must be positive", ErrInvalidConfig)
	case p.InitialTolerance < p.ToleranceFloor:
		return fmt.Errorf("%w: initial tolerance below floor", ErrInvalidConfig)
	case p.RecallEpsilon <= 0:
		return fmt.Errorf("%w: recall epsilon must be positive", ErrInvalidConfig)
	case c.ExpectedDelay < 0 || c.RetryWait < 0 || c.IdleWait < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	case c.StatsInterval <= 0:
		return fmt.Errorf("%w: stats interval must be positive", ErrInvalidConfig)
	}
	return nil
}
