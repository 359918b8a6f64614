package vismem

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vismem/pkg/effect"
	"github.com/orneryd/vismem/pkg/sampler"
	"github.com/orneryd/vismem/pkg/storage"
)

// 2x2 frame, one pixel per block: 4 sample positions.
var tinyGeometry = sampler.Geometry{FrameWidth: 2, FrameHeight: 2, BlocksWide: 2, BlocksHigh: 2}

type fixedHistory struct {
	frame *effect.Frame
	gets  atomic.Int64
}

func (h *fixedHistory) Get(time.Duration) *effect.Frame {
	h.gets.Add(1)
	return h.frame
}

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) Log(level, msg string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = NopLogger{}
	cfg.RetryWait = 0
	cfg.IdleWait = time.Millisecond
	return cfg
}

func ledLayout(mapped ...bool) effect.PixelInfoVec {
	v := make(effect.PixelInfoVec, len(mapped))
	for i, m := range mapped {
		v[i] = effect.PixelInfo{Index: i, Mapped: m}
	}
	return v
}

func frameOf(colors ...colorful.Color) *effect.Frame {
	return &effect.Frame{Colors: colors}
}

var white = colorful.Color{R: 1, G: 1, B: 1}

// startPaused starts an engine and stops the learner again, leaving a mapped
// store whose sweeps the test drives by hand. The sample buffer is dark while
// the learner runs, so nothing is learned before the test takes over.
func startPaused(t *testing.T, cfg Config, mapping effect.PixelInfoVec, h effect.History) (*Engine, string) {
	t.Helper()
	e, err := New(cfg, sampler.NewGridSampler(tinyGeometry))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "memory.bin")
	require.NoError(t, e.Start(path, mapping, h))
	e.Stop()
	t.Cleanup(func() { e.Close() })
	return e, path
}

func step(t *testing.T, e *Engine, sweeps int) {
	t.Helper()
	never := make(chan struct{})
	for i := 0; i < sweeps; i++ {
		_, ok := e.sweep(never)
		require.True(t, ok)
	}
}

func TestNew(t *testing.T) {
	t.Run("rejects_invalid_learning_params", func(t *testing.T) {
		cfg := testConfig()
		cfg.Learning.ShortTermPermeability = 0
		_, err := New(cfg, sampler.NewGridSampler(tinyGeometry))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects_invalid_geometry", func(t *testing.T) {
		_, err := New(testConfig(), sampler.NewGridSampler(sampler.Geometry{}))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects_nil_sampler", func(t *testing.T) {
		_, err := New(testConfig(), nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("ingest_before_start", func(t *testing.T) {
		e, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
		require.NoError(t, err)
		e.Ingest(sampler.Chunk{1, 2, 3, 4})
		assert.Equal(t, []uint8{1, 2, 3, 4}, e.Samples())

		e.Ingest(sampler.Chunk{9})
		assert.Equal(t, []uint8{1, 2, 3, 4}, e.Samples(), "malformed chunk must not change samples")
		assert.Empty(t, e.Recall())
	})
}

func TestEngine_Start(t *testing.T) {
	t.Run("failure_leaves_engine_inert", func(t *testing.T) {
		logs := &captureLogger{}
		cfg := testConfig()
		cfg.Logger = logs
		e, err := New(cfg, sampler.NewGridSampler(tinyGeometry))
		require.NoError(t, err)

		err = e.Start(filepath.Join(t.TempDir(), "missing", "memory.bin"), ledLayout(true, true), &fixedHistory{})
		require.Error(t, err)
		assert.False(t, e.Running())
		assert.Empty(t, e.Recall())
		assert.Nil(t, e.DenseIndex())
		assert.True(t, logs.has("error: engine not started"))
		assert.ErrorIs(t, e.Snapshot(filepath.Join(t.TempDir(), "x.png")), ErrNotStarted)
	})

	t.Run("geometry_mismatch_is_reported", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memory.bin")
		require.NoError(t, os.WriteFile(path, make([]byte, 5), 0644))

		e, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
		require.NoError(t, err)
		err = e.Start(path, ledLayout(true, true), &fixedHistory{})
		assert.ErrorIs(t, err, storage.ErrGeometryMismatch)
		assert.False(t, e.Running())
	})

	t.Run("no_mapped_pixels", func(t *testing.T) {
		e, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
		require.NoError(t, err)
		err = e.Start(filepath.Join(t.TempDir(), "memory.bin"), ledLayout(false, false), &fixedHistory{})
		assert.ErrorIs(t, err, ErrNoMappedPixels)
	})

	t.Run("missing_collaborators", func(t *testing.T) {
		e, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
		require.NoError(t, err)
		err = e.Start(filepath.Join(t.TempDir(), "memory.bin"), ledLayout(true), nil)
		assert.ErrorIs(t, err, ErrNoCollaborators)
	})

	t.Run("idempotent_and_sized", func(t *testing.T) {
		e, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
		require.NoError(t, err)
		defer e.Close()

		path := filepath.Join(t.TempDir(), "memory.bin")
		mapping := ledLayout(true, false, true)
		require.NoError(t, e.Start(path, mapping, &fixedHistory{}))
		runID := e.RunID()
		require.NoError(t, e.Start(path, mapping, &fixedHistory{}))
		assert.Equal(t, runID, e.RunID())
		assert.True(t, e.Running())

		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, int64(4*2*storage.CellSize), fi.Size())
		assert.Len(t, e.Recall(), 3)
		assert.Len(t, e.Tolerance(), 2)
		assert.Equal(t, []float32{1, 1}, e.Tolerance())

		e.Stop()
		assert.False(t, e.Running())
		require.NoError(t, e.Start("ignored", nil, nil))
		assert.True(t, e.Running())

		require.NoError(t, e.Close())
		assert.False(t, e.Running())
		require.NoError(t, e.Close())
	})
}

func TestEngine_ThresholdGating(t *testing.T) {
	h := &fixedHistory{frame: frameOf(white, white)}
	e, _ := startPaused(t, testConfig(), ledLayout(true, true), h)

	recallBefore := append([]float32(nil), e.Recall()...)
	gets := h.gets.Load()

	// (127/255)^2 < 0.25: no LED color can reach the threshold
	e.Ingest(sampler.Chunk{127, 100, 0, 127})
	step(t, e, 1)

	assert.Equal(t, gets, h.gets.Load(), "history must not be consulted for dark rows")
	assert.Equal(t, recallBefore, e.Recall())
	for _, c := range e.store.Cells() {
		assert.Zero(t, c.ShortTerm)
		assert.Zero(t, c.LongTerm)
	}
}

func TestEngine_RowGatingIgnoresActualColor(t *testing.T) {
	h := &fixedHistory{frame: frameOf(colorful.Color{R: 1}, colorful.Color{R: 0.1})}
	e, _ := startPaused(t, testConfig(), ledLayout(true, true), h)

	e.Ingest(sampler.Chunk{120, 255, 0, 0})
	step(t, e, 5)

	row0 := e.store.Row(0, 2)
	assert.Equal(t, storage.Cell{}, row0[0])
	assert.Equal(t, storage.Cell{}, row0[1])

	// row 1: red reaches 1/3 >= 0.25, dim red does not
	row1 := e.store.Row(1, 2)
	assert.Greater(t, row1[0].ShortTerm, float32(0))
	assert.Equal(t, storage.Cell{}, row1[1])
}

func TestEngine_Convergence(t *testing.T) {
	h := &fixedHistory{frame: frameOf(white, white)}
	cfg := testConfig()
	e, _ := startPaused(t, cfg, ledLayout(true, true), h)

	e.Ingest(sampler.Chunk{255, 0, 0, 0})
	target := cfg.Learning.SteadyState(cfg.Learning.MaxReinforcement(255))

	step(t, e, 10)
	c := e.store.Row(0, 2)[0]
	assert.Greater(t, c.ShortTerm-c.LongTerm, float32(1), "long-term should trail")

	prev := c.LongTerm
	for i := 0; i < 10000; i++ {
		step(t, e, 1)
		c = e.store.Row(0, 2)[0]
		require.GreaterOrEqual(t, c.LongTerm, prev)
		require.LessOrEqual(t, c.LongTerm, c.ShortTerm)
		prev = c.LongTerm
	}

	assert.InEpsilon(t, target, c.ShortTerm, 0.01)
	assert.InEpsilon(t, target, c.LongTerm, 0.1)

	for s := 1; s < 4; s++ {
		for _, other := range e.store.Row(s, 2) {
			assert.Equal(t, storage.Cell{}, other)
		}
	}

	// both LEDs saw the same thing, so they share recall evenly
	assert.InDelta(t, 1.0, e.Recall()[0], 1e-4)
	assert.InDelta(t, 1.0, e.Recall()[1], 1e-4)
}

func TestEngine_RecallNormalization(t *testing.T) {
	h := &fixedHistory{frame: frameOf(
		white,
		colorful.Color{},
		colorful.Color{R: 0.9, G: 0.6, B: 0.5},
		colorful.Color{R: 1, G: 0, B: 0},
	)}
	e, _ := startPaused(t, testConfig(), ledLayout(true, false, true, true), h)
	e.Ingest(sampler.Chunk{255, 200, 0, 180})

	idx := e.DenseIndex()
	require.Equal(t, 3, idx.DenseCount())

	for i := 0; i < 50; i++ {
		step(t, e, 1)
		if e.stats.publishes.Load() == 0 {
			continue
		}
		var sum float32
		for d := 0; d < idx.DenseCount(); d++ {
			sum += e.Recall()[idx.Sparse(d)]
		}
		assert.InDelta(t, 1.0, sum/float32(idx.DenseCount()), 1e-4)
	}
	assert.NotZero(t, e.stats.publishes.Load())
	assert.Zero(t, e.Recall()[1], "unmapped pixel must never receive recall")
}

func TestEngine_ToleranceFloor(t *testing.T) {
	e, _ := startPaused(t, testConfig(), ledLayout(true, true), &fixedHistory{})
	floor := e.cfg.Learning.ToleranceFloor

	for i := 0; i < 20000; i++ {
		e.acc[0], e.acc[1] = 2, 0
		e.publish(2)
		require.GreaterOrEqual(t, e.tolerance[0], floor)
	}
	assert.Equal(t, floor, e.tolerance[0])
	assert.Greater(t, e.tolerance[1], float32(1))
	assert.Equal(t, float32(2), e.Recall()[0])
}

func TestEngine_HistoryNotDeepEnough(t *testing.T) {
	h := &fixedHistory{}
	e, _ := startPaused(t, testConfig(), ledLayout(true, true), h)
	e.Ingest(sampler.Chunk{255, 255, 255, 255})

	misses := e.stats.historyMisses.Load()
	learned, ok := e.sweep(make(chan struct{}))
	require.True(t, ok)
	assert.Zero(t, learned)
	assert.Equal(t, misses+4, e.stats.historyMisses.Load())
	for _, c := range e.store.Cells() {
		assert.Equal(t, storage.Cell{}, c)
	}

	t.Run("stop_interrupts_retry_wait", func(t *testing.T) {
		e.cfg.RetryWait = time.Hour
		done := make(chan struct{})
		close(done)
		_, ok := e.sweep(done)
		assert.False(t, ok)
	})
}

func TestEngine_PersistsAcrossRestart(t *testing.T) {
	h := &fixedHistory{frame: frameOf(white, white)}
	e, path := startPaused(t, testConfig(), ledLayout(true, true), h)
	e.Ingest(sampler.Chunk{0, 0, 255, 0})
	step(t, e, 20)
	want := e.store.Row(2, 2)[1]
	require.NotZero(t, want.ShortTerm)
	require.NoError(t, e.Close())

	again, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
	require.NoError(t, err)
	require.NoError(t, again.Start(path, ledLayout(true, true), &fixedHistory{}))
	again.Stop()
	defer again.Close()

	assert.Equal(t, want, again.store.Row(2, 2)[1])
}

func TestEngine_Background(t *testing.T) {
	h := &fixedHistory{frame: frameOf(white, colorful.Color{R: 0.8, G: 0.8})}
	e, err := New(testConfig(), sampler.NewGridSampler(tinyGeometry))
	require.NoError(t, err)
	defer e.Close()

	e.Ingest(sampler.Chunk{255, 230, 0, 200})
	require.NoError(t, e.Start(filepath.Join(t.TempDir(), "memory.bin"), ledLayout(true, true), h))

	require.Eventually(t, func() bool {
		return e.Stats().Publishes > 10
	}, 5*time.Second, 5*time.Millisecond)

	e.Stop()
	stats := e.Stats()
	assert.False(t, stats.Running)
	assert.NotEmpty(t, stats.RunID)
	assert.GreaterOrEqual(t, stats.Sweeps, stats.Publishes)
	assert.Equal(t, stats.Sweeps, stats.SkippedRows, "one dark row per sweep")

	r := e.Recall()
	assert.InDelta(t, 1.0, (r[0]+r[1])/2, 1e-4)
}

func TestEngine_Snapshot(t *testing.T) {
	h := &fixedHistory{frame: frameOf(white, colorful.Color{})}
	logs := &captureLogger{}
	cfg := testConfig()
	cfg.Logger = logs
	e, _ := startPaused(t, cfg, ledLayout(true, true, false), h)
	e.Ingest(sampler.Chunk{255, 0, 0, 255})
	step(t, e, 200)

	out := filepath.Join(t.TempDir(), "snapshot.png")
	require.NoError(t, e.Snapshot(out))
	assert.True(t, logs.has("info: snapshot saved"))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	// 2 LEDs -> 2x1 grid of 2x2 blocks
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	r, g, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.NotZero(t, r)
	assert.NotZero(t, g)

	// LED 1 was dark throughout
	r, g, b, _ := img.At(2, 0).RGBA()
	assert.Zero(t, r+g+b)

	t.Run("write_failure_is_reported", func(t *testing.T) {
		err := e.Snapshot(filepath.Join(t.TempDir(), "missing", "snapshot.png"))
		assert.Error(t, err)
		assert.True(t, logs.has("error: snapshot failed"))
	})
}

func TestEngine_RecallDuringSnapshot(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	cfg := testConfig()
	cfg.Encoder = func(w io.Writer, img image.Image) error {
		close(entered)
		<-release
		return png.Encode(w, img)
	}
	e, _ := startPaused(t, cfg, ledLayout(true, false, true), &fixedHistory{frame: frameOf(white, white, white)})

	out := filepath.Join(t.TempDir(), "snapshot.png")
	snapErr := make(chan error, 1)
	go func() { snapErr <- e.Snapshot(out) }()
	<-entered

	read := make(chan int, 1)
	go func() { read <- len(e.Recall()) + len(e.Tolerance()) }()
	select {
	case n := <-read:
		assert.Equal(t, 3+2, n)
	case <-time.After(time.Second):
		t.Fatal("Recall blocked while a snapshot was being written")
	}

	close(release)
	require.NoError(t, <-snapErr)
}

func TestEngine_CloseFlushes(t *testing.T) {
	logs := &captureLogger{}
	cfg := testConfig()
	cfg.Logger = logs
	h := &fixedHistory{frame: frameOf(white, white)}
	e, path := startPaused(t, cfg, ledLayout(true, true), h)
	e.Ingest(sampler.Chunk{255, 255, 255, 255})
	step(t, e, 5)
	want := append([]storage.Cell(nil), e.store.Cells()...)

	require.NoError(t, e.Close())
	assert.True(t, logs.has("info: memory flushed"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, storage.ExpectedBytes(len(want)), int64(len(raw)))
	got, err := storage.Open(path, len(want), storage.Options{})
	require.NoError(t, err)
	defer got.Close()
	assert.Equal(t, want, got.Cells())
}
