package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/vismem/pkg/config"
	"github.com/orneryd/vismem/pkg/simd"
	"github.com/orneryd/vismem/pkg/simulate"
	"github.com/orneryd/vismem/pkg/storage"
	"github.com/orneryd/vismem/pkg/vismem"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the learning engine against a virtual installation",
		Long: `Run the learning engine against a simulated LED installation and camera.

The simulated LEDs cycle through colors, the simulated camera sees them
after --latency, and the engine learns which camera positions each LED
lights. Learned memory is kept in --store and reused on the next run.`,
		RunE: runSimulate,
	}
	cmd.Flags().String("store", "", "Cell store path (default from config)")
	cmd.Flags().Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	cmd.Flags().Bool("snapshot", false, "Write a debug snapshot on exit")
	cmd.Flags().String("snapshot-path", "", "Snapshot path (default from config)")
	cmd.Flags().Duration("expected-delay", 0, "Camera-to-light delay the engine assumes")
	cmd.Flags().Duration("latency", 0, "Camera-to-light delay of the simulated installation")
	cmd.Flags().Int("pixels", 0, "Number of simulated pixels")
	cmd.Flags().Int64("seed", 0, "Seed of the simulated light transport")
	cmd.Flags().Bool("resize", false, "Resize a store whose geometry changed instead of failing")
	cmd.Flags().Duration("progress", 2*time.Second, "Progress report interval")
	return cmd
}

// applySimulateFlags overrides cfg with flags that were set explicitly.
func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("store") {
		cfg.Storage.Path, _ = f.GetString("store")
	}
	if f.Changed("duration") {
		cfg.Simulation.Duration, _ = f.GetDuration("duration")
	}
	if f.Changed("snapshot-path") {
		cfg.Snapshot.Path, _ = f.GetString("snapshot-path")
	}
	if f.Changed("expected-delay") {
		cfg.Learning.ExpectedDelay, _ = f.GetDuration("expected-delay")
	}
	if f.Changed("latency") {
		cfg.Simulation.Latency, _ = f.GetDuration("latency")
	}
	if f.Changed("pixels") {
		cfg.Simulation.Pixels, _ = f.GetInt("pixels")
	}
	if f.Changed("seed") {
		cfg.Simulation.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("resize") {
		cfg.Storage.ResizeOnMismatch, _ = f.GetBool("resize")
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applySimulateFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	writeSnapshot, _ := cmd.Flags().GetBool("snapshot")
	progress, _ := cmd.Flags().GetDuration("progress")

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	fmt.Printf("🚀 Starting vismem simulation v%s\n", version)

	rig, err := simulate.New(rigConfig(cfg))
	if err != nil {
		return err
	}

	eng, err := vismem.New(engineConfig(cfg, logger), rig.Sampler())
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	if err := eng.Start(cfg.Storage.Path, rig.Layout(), rig.History()); err != nil {
		return err
	}

	idx := eng.DenseIndex()
	cells := cfg.Sampler.Samples() * idx.DenseCount()
	fmt.Printf("🧠 Memory: %s (%d samples x %d LEDs, %s)\n",
		cfg.Storage.Path, cfg.Sampler.Samples(), idx.DenseCount(),
		humanize.IBytes(uint64(storage.ExpectedBytes(cells))))
	fmt.Printf("💡 Pixels: %d (%d mapped), latency %v, engine expects %v\n",
		idx.SparseCount(), idx.DenseCount(), cfg.Simulation.Latency, cfg.Learning.ExpectedDelay)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Simulation.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Simulation.Duration)
		defer cancel()
		fmt.Printf("⏱️  Running for %v\n", cfg.Simulation.Duration)
	} else {
		fmt.Println("⏱️  Running until interrupted (Ctrl+C)")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.Run(ctx, eng.Ingest)
	}()

	if progress > 0 {
		ticker := time.NewTicker(progress)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-done:
				break loop
			case <-ticker.C:
				printProgress(eng, rig)
			}
		}
	}
	<-done

	fmt.Println("\n🛑 Stopping...")
	eng.Stop()
	printProgress(eng, rig)

	if writeSnapshot {
		if err := eng.Snapshot(cfg.Snapshot.Path); err != nil {
			return err
		}
		fmt.Printf("📸 Snapshot written to %s\n", cfg.Snapshot.Path)
	}

	if err := eng.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	fmt.Println("✅ Simulation stopped")
	return nil
}

func printProgress(eng *vismem.Engine, rig *simulate.Rig) {
	st := eng.Stats()
	led, camera := rig.Frames()
	recall := eng.Recall()
	fmt.Printf("   sweeps=%s published=%s misses=%s rate=%.0f/s led=%d camera=%d recall[max]=%.3f\n",
		humanize.Comma(int64(st.Sweeps)), humanize.Comma(int64(st.Publishes)),
		humanize.Comma(int64(st.HistoryMisses)), st.SmoothedSweepsPerSecond,
		led, camera, simd.Max(recall))
}
