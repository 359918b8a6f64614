package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/vismem/pkg/config"
	"github.com/orneryd/vismem/pkg/simd"
	"github.com/orneryd/vismem/pkg/storage"
	"github.com/orneryd/vismem/pkg/vismem"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render a store file to a debug image",
		Long: `Render an existing cell store to a PNG without running the engine.

Each LED gets one block with a pixel per camera sample position. Red is
short-term memory, green and blue are long-term memory.`,
		RunE: runSnapshot,
	}
	addStoreFlags(cmd)
	cmd.Flags().String("out", "", "Output PNG path (default from config)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print geometry and value ranges of a store file",
		RunE:  runInspect,
	}
	addStoreFlags(cmd)
	return cmd
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "", "Cell store path (default from config)")
	cmd.Flags().Int("leds", 0, "Mapped LED count (0 = infer from file size)")
}

// openStore opens an existing store file read-write without resizing it.
func openStore(cmd *cobra.Command) (*config.Config, *storage.Store, int, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, 0, err
	}
	if cmd.Flags().Changed("store") {
		cfg.Storage.Path, _ = cmd.Flags().GetString("store")
	}
	leds, _ := cmd.Flags().GetInt("leds")

	fi, err := os.Stat(cfg.Storage.Path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("store not found: %w", err)
	}
	dense, err := storeGeometry(fi.Size(), cfg.Sampler.Samples(), leds)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%s: %w", cfg.Storage.Path, err)
	}

	s, err := storage.Open(cfg.Storage.Path, cfg.Sampler.Samples()*dense, storage.Options{})
	if err != nil {
		return nil, nil, 0, err
	}
	return cfg, s, dense, nil
}

// storeGeometry works out the LED count of a store file of size bytes.
func storeGeometry(size int64, samples, leds int) (int, error) {
	cells, ok := storage.CellsForSize(size)
	if !ok {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of cells", storage.ErrGeometryMismatch, size)
	}
	if samples <= 0 || cells%samples != 0 {
		return 0, fmt.Errorf("%w: %d cells do not divide into %d sample positions",
			storage.ErrGeometryMismatch, cells, samples)
	}
	dense := cells / samples
	if leds > 0 && leds != dense {
		return 0, fmt.Errorf("%w: file holds %d LEDs, expected %d", storage.ErrGeometryMismatch, dense, leds)
	}
	return dense, nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, s, dense, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.Snapshot.Path
	}

	img, cellMax := vismem.RenderSnapshot(s.Cells(), dense, samplerGeometry(cfg.Sampler))
	if err := vismem.WriteSnapshot(out, img, png.Encode); err != nil {
		return err
	}
	fmt.Printf("📸 Snapshot written to %s (%dx%d, long-term range %.4g)\n",
		out, img.Bounds().Dx(), img.Bounds().Dy(), cellMax)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, s, dense, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cells := s.Cells()
	short := make([]float32, len(cells))
	long := make([]float32, len(cells))
	learned := 0
	for i, c := range cells {
		short[i], long[i] = c.ShortTerm, c.LongTerm
		if c.ShortTerm != 0 || c.LongTerm != 0 {
			learned++
		}
	}

	fmt.Printf("📦 Store: %s\n", s.Path())
	fmt.Printf("   Size:      %s (%s cells)\n", humanize.IBytes(uint64(s.Bytes())), humanize.Comma(int64(s.Len())))
	fmt.Printf("   Geometry:  %d samples (%dx%d) x %d LEDs\n",
		cfg.Sampler.Samples(), cfg.Sampler.BlocksWide, cfg.Sampler.BlocksHigh, dense)
	fmt.Printf("   Learned:   %s cells (%.1f%%)\n",
		humanize.Comma(int64(learned)), 100*float64(learned)/float64(len(cells)))
	fmt.Printf("   Short-term: min %.4g  mean %.4g  max %.4g\n", simd.Min(short), simd.Mean(short), simd.Max(short))
	fmt.Printf("   Long-term:  min %.4g  mean %.4g  max %.4g\n", simd.Min(long), simd.Mean(long), simd.Max(long))
	return nil
}
