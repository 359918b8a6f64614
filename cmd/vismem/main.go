// Package main provides the vismem CLI entry point.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/orneryd/vismem/pkg/config"
	"github.com/orneryd/vismem/pkg/decay"
	"github.com/orneryd/vismem/pkg/sampler"
	"github.com/orneryd/vismem/pkg/simd"
	"github.com/orneryd/vismem/pkg/simulate"
	"github.com/orneryd/vismem/pkg/vismem"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vismem",
		Short: "vismem - visual feedback memory for LED installations",
		Long: `vismem watches an LED installation through a camera and learns, for
every camera sample position and every LED, how strongly that LED's recent
color explains what the camera sees.

The learned memory lives in a memory-mapped file and survives restarts.
A per-LED recall signal reports where the installation currently looks
different from what it has learned to expect.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search standard locations)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := simd.Info()
			fmt.Printf("vismem v%s (%s) built %s\n", version, commit, buildTime)
			fmt.Printf("   Go:   %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Printf("   SIMD: %s (accelerated=%v) %s\n", info.Implementation, info.Accelerated, strings.Join(info.Features, ","))
		},
	})

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newInspectCmd())
	return rootCmd
}

// loadConfig applies defaults, then the config file, then VISMEM_* env vars.
// Flags are applied by each command afterwards.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fmt.Printf("📄 Loaded config from: %s\n", configPath)
		}
	}
	return cfg, nil
}

// setupLogging points the standard logger at cfg.Logging.Output and returns
// an engine logger filtered at cfg.Logging.Level. The returned func closes a
// log file if one was opened.
func setupLogging(cfg *config.Config) (vismem.Logger, func(), error) {
	closer := func() {}
	switch cfg.Logging.Output {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log output: %w", err)
		}
		log.SetOutput(f)
		closer = func() {
			log.SetOutput(os.Stderr)
			f.Close()
		}
	}
	return vismem.NewLevelLogger(cfg.Logging.Level, vismem.DefaultLogger()), closer, nil
}

func learningParams(l config.LearningConfig) decay.Params {
	p := decay.DefaultParams()
	p.LearningThreshold = float32(l.Threshold)
	p.ShortTermPermeability = float32(l.ShortTermPermeability)
	p.LongTermPermeability = float32(l.LongTermPermeability)
	p.ToleranceRate = float32(l.ToleranceRate)
	p.ToleranceFloor = float32(l.ToleranceFloor)
	p.InitialTolerance = float32(l.InitialTolerance)
	p.RecallEpsilon = float32(l.RecallEpsilon)
	p.LuminanceMax = float32(l.LuminanceMax)
	return p
}

func engineConfig(cfg *config.Config, logger vismem.Logger) vismem.Config {
	ec := vismem.DefaultConfig()
	ec.Learning = learningParams(cfg.Learning)
	ec.ExpectedDelay = cfg.Learning.ExpectedDelay
	ec.RetryWait = cfg.Learning.RetryWait
	ec.IdleWait = cfg.Learning.IdleWait
	ec.StatsInterval = cfg.Learning.StatsInterval
	ec.ResizeOnMismatch = cfg.Storage.ResizeOnMismatch
	if logger != nil {
		ec.Logger = logger
	}
	return ec
}

func samplerGeometry(s config.SamplerConfig) sampler.Geometry {
	return sampler.Geometry{
		FrameWidth:  s.FrameWidth,
		FrameHeight: s.FrameHeight,
		BlocksWide:  s.BlocksWide,
		BlocksHigh:  s.BlocksHigh,
	}
}

func rigConfig(cfg *config.Config) simulate.Config {
	s := cfg.Simulation
	return simulate.Config{
		Pixels:        s.Pixels,
		UnmappedEvery: s.UnmappedEvery,
		LEDRate:       s.LEDRate,
		CameraRate:    s.CameraRate,
		Latency:       s.Latency,
		Geometry:      samplerGeometry(cfg.Sampler),
		Spread:        s.Spread,
		Gain:          s.Gain,
		Seed:          s.Seed,
	}
}
