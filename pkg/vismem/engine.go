// Package vismem is the visual-feedback learning engine.
//
// A camera watches an LED installation. For every pair of (camera sample
// position, LED) the engine learns how strongly that LED's recent color
// explains what the camera sees, and publishes a per-LED recall signal that
// renderers can use to modulate future effects.
//
// # Architecture
//
//	┌──────────────┐  Ingest   ┌───────────────┐
//	│ video thread │──────────▶│ sample buffer │  plain memory, no locks
//	└──────────────┘           └───────┬───────┘
//	                                   │ racy reads
//	┌──────────────┐  Get(delay)┌──────▼───────┐   ┌─────────────────────┐
//	│  LED history │───────────▶│   learner    │◀─▶│ mmap'd cell store   │
//	└──────────────┘            │  goroutine   │   └─────────────────────┘
//	                            └──────┬───────┘
//	                                   │ once per sweep
//	                            ┌──────▼───────┐
//	                            │ recall buffer│  read by renderers
//	                            └──────────────┘
//
// # Sharing discipline
//
// The sample buffer has exactly one writer (Ingest) and one reader (the
// learner). The store, recall buffer and tolerances have exactly one writer
// (the learner). None of them is locked: luminance is a coarse, slowly varying
// signal and recall is a lagging statistic, so a stale or torn read only adds
// a little noise to statistics that converge over thousands of sweeps.
// Readers that need an exact picture should Stop the engine first.
//
// Example:
//
//	eng, err := vismem.New(vismem.DefaultConfig(), sampler.NewGridSampler(sampler.DefaultGeometry()))
//	if err != nil {
//		return err
//	}
//	if err := eng.Start("memory.bin", layout, tap); err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	camera.OnFrame(eng.Ingest)
//	recall := eng.Recall()
package vismem

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/orneryd/vismem/pkg/effect"
	"github.com/orneryd/vismem/pkg/filter"
	"github.com/orneryd/vismem/pkg/pixel"
	"github.com/orneryd/vismem/pkg/sampler"
	"github.com/orneryd/vismem/pkg/storage"
)

// Common engine errors
var (
	ErrNotStarted      = errors.New("vismem: engine not started")
	ErrNoMappedPixels  = errors.New("vismem: layout has no mapped pixels")
	ErrNoCollaborators = errors.New("vismem: pixel mapping and LED history are required")
)

// Engine owns the learning goroutine and everything it writes.
type Engine struct {
	cfg     Config
	log     Logger
	sampler sampler.Sampler
	geom    sampler.Geometry

	// Written by Ingest, read by the learner. Not synchronized.
	samples []uint8
	emit    func(index int, luminance uint8)

	mu      sync.Mutex // lifecycle only; the learner never takes it
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	runID   string
	index   *pixel.Index
	store   *storage.Store
	history effect.History

	// Written by the learner only.
	recall    []float32 // sparse
	tolerance []float32 // dense
	acc       []float32 // dense, learner-private

	// Set once per successful Start; read without e.mu.
	readout atomic.Pointer[readout]

	stats      counters
	throughput *filter.Kalman
}

// readout holds the buffers renderers poll.
type readout struct {
	recall    []float32
	tolerance []float32
}

// New creates an inert engine. Ingest works immediately; learning begins
// with Start.
func New(cfg Config, s sampler.Sampler) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger{}
	}
	if cfg.Encoder == nil {
		cfg.Encoder = DefaultConfig().Encoder
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: sampler is required", ErrInvalidConfig)
	}
	geom := s.Geometry()
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	e := &Engine{
		cfg:        cfg,
		log:        cfg.Logger,
		sampler:    s,
		geom:       geom,
		samples:    make([]uint8, geom.Samples()),
		throughput: filter.NewKalman(filter.ThroughputConfig()),
	}
	e.emit = e.storeSample
	return e, nil
}

// Start compacts the pixel layout, maps the store at path and launches the
// learner.
//
// Start is idempotent: on a running engine it does nothing, and on a stopped
// engine that still holds its store it resumes learning on that store (the
// arguments are ignored). On failure nothing is retained; the engine stays
// inert and Recall stays empty.
func (e *Engine) Start(path string, mapping pixel.Mapping, history effect.History) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store != nil {
		if !e.running {
			e.launch()
		}
		return nil
	}

	if mapping == nil || history == nil {
		return e.startFailed(path, ErrNoCollaborators)
	}

	index := pixel.Compact(mapping)
	dense := index.DenseCount()
	if dense == 0 {
		return e.startFailed(path, ErrNoMappedPixels)
	}

	runID := uuid.NewString()
	cells := len(e.samples) * dense
	e.log.Log("info", "memory geometry", map[string]any{
		"run_id":         runID,
		"camera_samples": len(e.samples),
		"led_pixels":     dense,
		"cells":          cells,
		"size":           humanize.IBytes(uint64(storage.ExpectedBytes(cells))),
	})

	store, err := storage.Open(path, cells, storage.Options{ResizeOnMismatch: e.cfg.ResizeOnMismatch})
	if err != nil {
		return e.startFailed(path, err)
	}

	tolerance := make([]float32, dense)
	for i := range tolerance {
		tolerance[i] = e.cfg.Learning.InitialTolerance
	}

	e.runID = runID
	e.index = index
	e.store = store
	e.history = history
	e.recall = make([]float32, index.SparseCount())
	e.tolerance = tolerance
	e.acc = make([]float32, dense)
	e.readout.Store(&readout{recall: e.recall, tolerance: e.tolerance})

	e.launch()
	return nil
}

func (e *Engine) startFailed(path string, err error) error {
	e.log.Log("error", "engine not started", map[string]any{
		"path":  path,
		"error": err.Error(),
	})
	return fmt.Errorf("vismem: start: %w", err)
}

// launch must be called with e.mu held.
func (e *Engine) launch() {
	e.done = make(chan struct{})
	e.running = true
	e.wg.Add(1)
	go e.learn(e.done)
}

// Stop asks the learner to finish its current sweep and waits for it. The
// store stays mapped, so Snapshot and Start still work.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running {
		return
	}
	close(e.done)
	e.wg.Wait()
	e.running = false
}

// Close stops the learner, flushes the store to disk and unmaps it. Recall
// keeps its last values. The store is unmapped even if the flush fails.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	if e.store == nil {
		return nil
	}
	syncErr := e.store.Sync()
	if syncErr != nil {
		e.log.Log("error", "memory flush failed", map[string]any{
			"run_id": e.runID,
			"path":   e.store.Path(),
			"error":  syncErr.Error(),
		})
		syncErr = fmt.Errorf("vismem: close: flushing memory: %w", syncErr)
	} else {
		e.log.Log("info", "memory flushed", map[string]any{"run_id": e.runID, "path": e.store.Path()})
	}
	err := e.store.Close()
	e.store = nil
	return errors.Join(syncErr, err)
}

// Running reports whether the learner goroutine is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Ingest feeds one chunk of raw video through the sampler into the sample
// buffer. It never blocks and never fails; a malformed chunk changes nothing.
// It may be called from any goroutine. Overlapping calls race on the sample
// buffer the same way the learner does.
func (e *Engine) Ingest(chunk sampler.Chunk) {
	e.sampler.Sample(chunk, e.emit)
}

func (e *Engine) storeSample(index int, luminance uint8) {
	if index >= 0 && index < len(e.samples) {
		e.samples[index] = luminance
	}
}

// Samples returns the live sample buffer, one luminance per sample position.
// Do not modify it.
func (e *Engine) Samples() []uint8 { return e.samples }

// Recall returns the live recall buffer, indexed by sparse pixel. It is empty
// until Start succeeds. Entries of unmapped pixels stay zero. Do not modify it.
// Recall never blocks, even while Stop, Close or Snapshot are in progress.
func (e *Engine) Recall() []float32 {
	if r := e.readout.Load(); r != nil {
		return r.recall
	}
	return nil
}

// Tolerance returns the live recall tolerances, indexed by dense pixel.
func (e *Engine) Tolerance() []float32 {
	if r := e.readout.Load(); r != nil {
		return r.tolerance
	}
	return nil
}

// DenseIndex returns the pixel compaction in use, or nil before Start.
func (e *Engine) DenseIndex() *pixel.Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// Geometry returns the sampling geometry.
func (e *Engine) Geometry() sampler.Geometry { return e.geom }

// RunID identifies the current start of the engine in logs.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// wait sleeps for d unless done closes first. It reports false if done closed.
func wait(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
