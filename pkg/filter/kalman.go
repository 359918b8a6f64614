// Package filter provides a scalar Kalman filter for smoothing noisy
// diagnostics such as learning throughput.
//
// The filter models the signal as a random walk: between measurements the
// true value may drift by ProcessNoise, and each measurement is off by
// MeasurementNoise. Sweep rates jitter with scheduler and page-fault noise;
// smoothing keeps the reported rate readable without hiding real slowdowns.
//
// Example Usage:
//
//	k := filter.NewKalman(filter.ThroughputConfig())
//	for _, rate := range rates {
//		fmt.Printf("%.1f sweeps/s\n", k.Process(rate))
//	}
package filter

import (
	"math"
	"sync"
)

// Config holds Kalman filter configuration.
type Config struct {
	// ProcessNoise (Q) - how much we expect the true value to drift between
	// measurements. Higher values follow changes faster.
	ProcessNoise float64

	// MeasurementNoise (R) - how much we distrust individual measurements.
	// Higher values give smoother output.
	MeasurementNoise float64

	// InitialCovariance (P) - initial uncertainty of the first estimate.
	InitialCovariance float64
}

// DefaultConfig returns general purpose defaults.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:      0.1,
		MeasurementNoise:  1.0,
		InitialCovariance: 1.0,
	}
}

// ThroughputConfig returns a config for per-interval rate measurements.
func ThroughputConfig() Config {
	return Config{
		ProcessNoise:      0.05, // sustained throughput changes slowly
		MeasurementNoise:  0.5,
		InitialCovariance: 1.0,
	}
}

// Kalman is a scalar Kalman filter. It is safe for concurrent use.
type Kalman struct {
	mu sync.RWMutex

	cfg Config

	x float64 // state estimate
	p float64 // estimate covariance
	k float64 // last gain

	observations int
}

// NewKalman creates a filter. The first measurement seeds the state.
func NewKalman(cfg Config) *Kalman {
	return &Kalman{cfg: cfg, p: cfg.InitialCovariance}
}

// Process folds a measurement into the estimate and returns the new estimate.
// NaN and infinite measurements are ignored.
func (k *Kalman) Process(measurement float64) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	if math.IsNaN(measurement) || math.IsInf(measurement, 0) {
		return k.x
	}

	if k.observations == 0 {
		k.x = measurement
		k.observations++
		return k.x
	}

	// Noise is relative to the magnitude of the signal so one config serves
	// rates of 5/s and 5000/s alike.
	scale := math.Max(math.Abs(k.x), 1)
	q := k.cfg.ProcessNoise * scale * scale
	r := k.cfg.MeasurementNoise * scale * scale

	k.p += q
	k.k = k.p / (k.p + r)
	k.x += k.k * (measurement - k.x)
	k.p = (1 - k.k) * k.p

	k.observations++
	return k.x
}

// State returns the current estimate.
func (k *Kalman) State() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.x
}

// Gain returns the last Kalman gain (0-1).
func (k *Kalman) Gain() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.k
}

// Observations returns the number of measurements processed.
func (k *Kalman) Observations() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.observations
}

// Reset forgets all measurements.
func (k *Kalman) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.x = 0
	k.p = k.cfg.InitialCovariance
	k.k = 0
	k.observations = 0
}
