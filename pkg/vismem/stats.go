package vismem

import (
	"math"
	"sync/atomic"
)

// Stats is a point-in-time view of learner activity.
type Stats struct {
	RunID   string
	Running bool

	// Sweeps is the number of completed sweeps since New.
	Sweeps uint64
	// Publishes is the number of sweeps that published recall.
	Publishes uint64
	// SkippedRows counts rows too dark to learn from.
	SkippedRows uint64
	// HistoryMisses counts rows skipped because the LED history was too shallow.
	HistoryMisses uint64

	// SweepsPerSecond is the last measured throughput.
	SweepsPerSecond float64
	// SmoothedSweepsPerSecond is throughput after Kalman smoothing.
	SmoothedSweepsPerSecond float64
}

type counters struct {
	sweeps        atomic.Uint64
	publishes     atomic.Uint64
	skippedRows   atomic.Uint64
	historyMisses atomic.Uint64
	rate          atomic.Uint64 // float64 bits
	smoothed      atomic.Uint64 // float64 bits

	reportedMisses uint64 // learner-private
}

// Stats returns learner counters. It is safe to call at any time.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	runID, running := e.runID, e.running
	e.mu.Unlock()

	return Stats{
		RunID:                   runID,
		Running:                 running,
		Sweeps:                  e.stats.sweeps.Load(),
		Publishes:               e.stats.publishes.Load(),
		SkippedRows:             e.stats.skippedRows.Load(),
		HistoryMisses:           e.stats.historyMisses.Load(),
		SweepsPerSecond:         math.Float64frombits(e.stats.rate.Load()),
		SmoothedSweepsPerSecond: math.Float64frombits(e.stats.smoothed.Load()),
	}
}

// reportThroughput records and logs a throughput measurement. Diagnostic only.
func (e *Engine) reportThroughput(rate float64) {
	smoothed := e.throughput.Process(rate)
	e.stats.rate.Store(math.Float64bits(rate))
	e.stats.smoothed.Store(math.Float64bits(smoothed))

	e.log.Log("info", "learning throughput", map[string]any{
		"run_id":            e.runID,
		"sweeps_per_second": math.Round(rate*100) / 100,
		"smoothed":          math.Round(smoothed*100) / 100,
	})

	misses := e.stats.historyMisses.Load()
	if fresh := misses - e.stats.reportedMisses; fresh > 0 {
		e.log.Log("warn", "led history too shallow", map[string]any{
			"run_id":         e.runID,
			"history_misses": fresh,
			"expected_delay": e.cfg.ExpectedDelay.String(),
		})
	}
	e.stats.reportedMisses = misses
}
