// Package config handles vismem configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--store, --expected-delay, etc.)
//  2. Environment variables (VISMEM_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Store: %s (%d samples)\n",
//		cfg.Storage.Path, cfg.Sampler.BlocksWide*cfg.Sampler.BlocksHigh)
//
// Environment Variables (all use VISMEM_ prefix):
//
// Storage:
//   - VISMEM_STORE_PATH="./data/memory.bin"
//   - VISMEM_RESIZE_ON_MISMATCH=false
//
// Learning:
//   - VISMEM_LEARNING_THRESHOLD=0.25
//   - VISMEM_SHORT_TERM_PERMEABILITY=0.1
//   - VISMEM_LONG_TERM_PERMEABILITY=0.0001
//   - VISMEM_EXPECTED_DELAY="300ms"
//
// Sampler:
//   - VISMEM_FRAME_WIDTH=640
//   - VISMEM_BLOCKS_WIDE=40
//
// Logging:
//   - VISMEM_LOG_LEVEL="info"
//   - VISMEM_LOG_OUTPUT="stderr"
//
// For a complete list, see applyEnvVars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all vismem configuration.
//
// Configuration is organized into logical sections:
//   - Storage: where the cell store lives
//   - Learning: the tuned learning constants and learner timing
//   - Sampler: the camera sampling grid
//   - Snapshot: debug image output
//   - Simulation: the virtual installation used by `vismem simulate`
//   - Logging: diagnostics
type Config struct {
	Storage    StorageConfig
	Learning   LearningConfig
	Sampler    SamplerConfig
	Snapshot   SnapshotConfig
	Simulation SimulationConfig
	Logging    LoggingConfig
}

// StorageConfig holds cell store settings.
type StorageConfig struct {
	// Path of the memory-mapped cell file
	Path string
	// ResizeOnMismatch resizes a store whose size does not match the
	// current geometry instead of refusing to start
	ResizeOnMismatch bool
}

// LearningConfig holds the learning constants and learner timing.
//
// The constants were tuned against a physical installation. The defaults
// should only be changed together with a fresh store.
type LearningConfig struct {
	Threshold             float64
	ShortTermPermeability float64
	LongTermPermeability  float64
	ToleranceRate         float64
	ToleranceFloor        float64
	InitialTolerance      float64
	RecallEpsilon         float64
	// LuminanceMax is the largest luminance the camera reports
	LuminanceMax float64

	// ExpectedDelay is the camera-to-light round trip
	ExpectedDelay time.Duration
	// RetryWait is the pause when LED history is not deep enough yet
	RetryWait time.Duration
	// IdleWait is the pause after a sweep with nothing bright enough to learn
	IdleWait time.Duration
	// StatsInterval is how often throughput is logged
	StatsInterval time.Duration
}

// SamplerConfig holds the camera sampling grid.
type SamplerConfig struct {
	FrameWidth  int
	FrameHeight int
	BlocksWide  int
	BlocksHigh  int
}

// Samples returns the number of sample positions.
func (s SamplerConfig) Samples() int { return s.BlocksWide * s.BlocksHigh }

// SnapshotConfig holds debug snapshot settings.
type SnapshotConfig struct {
	// Path of the PNG written by `simulate --snapshot`
	Path string
}

// SimulationConfig holds the virtual installation used for demos.
type SimulationConfig struct {
	Pixels        int
	UnmappedEvery int
	LEDRate       int
	CameraRate    int
	Latency       time.Duration
	Spread        int
	Gain          float64
	Seed          int64
	// Duration limits a run; zero runs until interrupted
	Duration time.Duration
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (info, warn, error)
	Level string
	// Output (stdout, stderr, or file path)
	Output string
}

// LoadDefaults returns the built-in defaults.
func LoadDefaults() *Config {
	config := &Config{}

	// Storage defaults
	config.Storage.Path = "./data/memory.bin"
	config.Storage.ResizeOnMismatch = false

	// Learning defaults (tuned; see LearningConfig)
	config.Learning.Threshold = 0.25
	config.Learning.ShortTermPermeability = 1e-1
	config.Learning.LongTermPermeability = 1e-4
	config.Learning.ToleranceRate = 2e-4
	config.Learning.ToleranceFloor = 1e-20
	config.Learning.InitialTolerance = 1.0
	config.Learning.RecallEpsilon = 1e-4
	config.Learning.LuminanceMax = 255
	config.Learning.ExpectedDelay = 300 * time.Millisecond
	config.Learning.RetryWait = 10 * time.Millisecond
	config.Learning.IdleWait = time.Millisecond
	config.Learning.StatsInterval = 2 * time.Second

	// Sampler defaults: 640x480 camera, 16x16 pixel blocks
	config.Sampler.FrameWidth = 640
	config.Sampler.FrameHeight = 480
	config.Sampler.BlocksWide = 40
	config.Sampler.BlocksHigh = 30

	config.Snapshot.Path = "./data/snapshot.png"

	// Simulation defaults
	config.Simulation.Pixels = 48
	config.Simulation.UnmappedEvery = 7
	config.Simulation.LEDRate = 60
	config.Simulation.CameraRate = 30
	config.Simulation.Latency = 300 * time.Millisecond
	config.Simulation.Spread = 24
	config.Simulation.Gain = 2.5
	config.Simulation.Seed = 1

	config.Logging.Level = "info"
	config.Logging.Output = "stderr"

	return config
}

// LoadFromEnv returns the defaults with VISMEM_* environment overrides applied.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

func applyEnvVars(config *Config) {
	// Storage
	config.Storage.Path = getEnv("VISMEM_STORE_PATH", config.Storage.Path)
	config.Storage.ResizeOnMismatch = getEnvBool("VISMEM_RESIZE_ON_MISMATCH", config.Storage.ResizeOnMismatch)

	// Learning
	l := &config.Learning
	l.Threshold = getEnvFloat("VISMEM_LEARNING_THRESHOLD", l.Threshold)
	l.ShortTermPermeability = getEnvFloat("VISMEM_SHORT_TERM_PERMEABILITY", l.ShortTermPermeability)
	l.LongTermPermeability = getEnvFloat("VISMEM_LONG_TERM_PERMEABILITY", l.LongTermPermeability)
	l.ToleranceRate = getEnvFloat("VISMEM_TOLERANCE_RATE", l.ToleranceRate)
	l.ToleranceFloor = getEnvFloat("VISMEM_TOLERANCE_FLOOR", l.ToleranceFloor)
	l.InitialTolerance = getEnvFloat("VISMEM_INITIAL_TOLERANCE", l.InitialTolerance)
	l.RecallEpsilon = getEnvFloat("VISMEM_RECALL_EPSILON", l.RecallEpsilon)
	l.LuminanceMax = getEnvFloat("VISMEM_LUMINANCE_MAX", l.LuminanceMax)
	l.ExpectedDelay = getEnvDuration("VISMEM_EXPECTED_DELAY", l.ExpectedDelay)
	l.RetryWait = getEnvDuration("VISMEM_RETRY_WAIT", l.RetryWait)
	l.IdleWait = getEnvDuration("VISMEM_IDLE_WAIT", l.IdleWait)
	l.StatsInterval = getEnvDuration("VISMEM_STATS_INTERVAL", l.StatsInterval)

	// Sampler
	config.Sampler.FrameWidth = getEnvInt("VISMEM_FRAME_WIDTH", config.Sampler.FrameWidth)
	config.Sampler.FrameHeight = getEnvInt("VISMEM_FRAME_HEIGHT", config.Sampler.FrameHeight)
	config.Sampler.BlocksWide = getEnvInt("VISMEM_BLOCKS_WIDE", config.Sampler.BlocksWide)
	config.Sampler.BlocksHigh = getEnvInt("VISMEM_BLOCKS_HIGH", config.Sampler.BlocksHigh)

	config.Snapshot.Path = getEnv("VISMEM_SNAPSHOT_PATH", config.Snapshot.Path)

	// Simulation
	s := &config.Simulation
	s.Pixels = getEnvInt("VISMEM_SIM_PIXELS", s.Pixels)
	s.UnmappedEvery = getEnvInt("VISMEM_SIM_UNMAPPED_EVERY", s.UnmappedEvery)
	s.LEDRate = getEnvInt("VISMEM_SIM_LED_RATE", s.LEDRate)
	s.CameraRate = getEnvInt("VISMEM_SIM_CAMERA_RATE", s.CameraRate)
	s.Latency = getEnvDuration("VISMEM_SIM_LATENCY", s.Latency)
	s.Spread = getEnvInt("VISMEM_SIM_SPREAD", s.Spread)
	s.Gain = getEnvFloat("VISMEM_SIM_GAIN", s.Gain)
	s.Seed = int64(getEnvInt("VISMEM_SIM_SEED", int(s.Seed)))
	s.Duration = getEnvDuration("VISMEM_SIM_DURATION", s.Duration)

	// Logging
	config.Logging.Level = strings.ToLower(getEnv("VISMEM_LOG_LEVEL", config.Logging.Level))
	config.Logging.Output = getEnv("VISMEM_LOG_OUTPUT", config.Logging.Output)
}

// ApplyEnvVars applies environment variable overrides to an existing config.
func ApplyEnvVars(config *Config) {
	applyEnvVars(config)
}

// Validate checks the configuration for values the engine cannot run with.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("store path is required")
	}

	l := c.Learning
	if l.Threshold < 0 {
		return fmt.Errorf("learning threshold must not be negative: %v", l.Threshold)
	}
	if l.LuminanceMax <= 0 {
		return fmt.Errorf("luminance max must be positive: %v", l.LuminanceMax)
	}
	if l.ShortTermPermeability <= 0 || l.ShortTermPermeability > 1 {
		return fmt.Errorf("short-term permeability must be in (0,1]: %v", l.ShortTermPermeability)
	}
	if l.LongTermPermeability <= 0 || l.LongTermPermeability > 1 {
		return fmt.Errorf("long-term permeability must be in (0,1]: %v", l.LongTermPermeability)
	}
	if l.ToleranceFloor <= 0 {
		return fmt.Errorf("tolerance floor must be positive: %v", l.ToleranceFloor)
	}
	if l.InitialTolerance < l.ToleranceFloor {
		return fmt.Errorf("initial tolerance %v below floor %v", l.InitialTolerance, l.ToleranceFloor)
	}
	if l.RecallEpsilon <= 0 {
		return fmt.Errorf("recall epsilon must be positive: %v", l.RecallEpsilon)
	}
	if l.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive: %v", l.StatsInterval)
	}

	s := c.Sampler
	if s.BlocksWide <= 0 || s.BlocksHigh <= 0 {
		return fmt.Errorf("invalid sampling grid: %dx%d", s.BlocksWide, s.BlocksHigh)
	}
	if s.FrameWidth < s.BlocksWide || s.FrameHeight < s.BlocksHigh {
		return fmt.Errorf("frame %dx%d cannot hold %dx%d blocks", s.FrameWidth, s.FrameHeight, s.BlocksWide, s.BlocksHigh)
	}

	switch c.Logging.Level {
	case "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	return nil
}

// String returns a short representation of the Config, suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Store: %s, Grid: %dx%d, ExpectedDelay: %v, LogLevel: %s}",
		c.Storage.Path,
		c.Sampler.BlocksWide, c.Sampler.BlocksHigh,
		c.Learning.ExpectedDelay,
		c.Logging.Level,
	)
}

// YAMLConfig represents the YAML configuration file structure.
// Durations are strings in time.ParseDuration format. Learning constants are
// pointers so that an explicit 0 (e.g. threshold: 0) is honored.
type YAMLConfig struct {
	Storage struct {
		Path             string `yaml:"path"`
		ResizeOnMismatch bool   `yaml:"resize_on_mismatch"`
	} `yaml:"storage"`

	Learning struct {
		Threshold             *float64 `yaml:"threshold"`
		ShortTermPermeability *float64 `yaml:"short_term_permeability"`
		LongTermPermeability  *float64 `yaml:"long_term_permeability"`
		ToleranceRate         *float64 `yaml:"tolerance_rate"`
		ToleranceFloor        *float64 `yaml:"tolerance_floor"`
		InitialTolerance      *float64 `yaml:"initial_tolerance"`
		RecallEpsilon         *float64 `yaml:"recall_epsilon"`
		LuminanceMax          *float64 `yaml:"luminance_max"`
		ExpectedDelay         string   `yaml:"expected_delay"`
		RetryWait             string   `yaml:"retry_wait"`
		IdleWait              string   `yaml:"idle_wait"`
		StatsInterval         string   `yaml:"stats_interval"`
	} `yaml:"learning"`

	Sampler struct {
		FrameWidth  int `yaml:"frame_width"`
		FrameHeight int `yaml:"frame_height"`
		BlocksWide  int `yaml:"blocks_wide"`
		BlocksHigh  int `yaml:"blocks_high"`
	} `yaml:"sampler"`

	Snapshot struct {
		Path string `yaml:"path"`
	} `yaml:"snapshot"`

	Simulation struct {
		Pixels        int     `yaml:"pixels"`
		UnmappedEvery int     `yaml:"unmapped_every"`
		LEDRate       int     `yaml:"led_rate"`
		CameraRate    int     `yaml:"camera_rate"`
		Latency       string  `yaml:"latency"`
		Spread        int     `yaml:"spread"`
		Gain          float64 `yaml:"gain"`
		Seed          int64   `yaml:"seed"`
		Duration      string  `yaml:"duration"`
	} `yaml:"simulation"`

	Logging struct {
		Level  string `yaml:"level"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables (highest priority before CLI args)
//
// Command-line arguments are applied by the caller (main.go) after this.
// A missing file is not an error.
//
// Example YAML:
//
//	storage:
//	  path: "/var/lib/vismem/memory.bin"
//	learning:
//	  expected_delay: "250ms"
//	sampler:
//	  blocks_wide: 32
//	  blocks_high: 24
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			var yamlCfg YAMLConfig
			if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			if err := applyYAML(config, &yamlCfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, y *YAMLConfig) error {
	// === Storage ===
	if y.Storage.Path != "" {
		config.Storage.Path = y.Storage.Path
	}
	if y.Storage.ResizeOnMismatch {
		config.Storage.ResizeOnMismatch = true
	}

	// === Learning ===
	l := &config.Learning
	setFloatPtr(&l.Threshold, y.Learning.Threshold)
	setFloatPtr(&l.ShortTermPermeability, y.Learning.ShortTermPermeability)
	setFloatPtr(&l.LongTermPermeability, y.Learning.LongTermPermeability)
	setFloatPtr(&l.ToleranceRate, y.Learning.ToleranceRate)
	setFloatPtr(&l.ToleranceFloor, y.Learning.ToleranceFloor)
	setFloatPtr(&l.InitialTolerance, y.Learning.InitialTolerance)
	setFloatPtr(&l.RecallEpsilon, y.Learning.RecallEpsilon)
	setFloatPtr(&l.LuminanceMax, y.Learning.LuminanceMax)
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"learning.expected_delay", y.Learning.ExpectedDelay, &l.ExpectedDelay},
		{"learning.retry_wait", y.Learning.RetryWait, &l.RetryWait},
		{"learning.idle_wait", y.Learning.IdleWait, &l.IdleWait},
		{"learning.stats_interval", y.Learning.StatsInterval, &l.StatsInterval},
		{"simulation.latency", y.Simulation.Latency, &config.Simulation.Latency},
		{"simulation.duration", y.Simulation.Duration, &config.Simulation.Duration},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	// === Sampler ===
	setInt(&config.Sampler.FrameWidth, y.Sampler.FrameWidth)
	setInt(&config.Sampler.FrameHeight, y.Sampler.FrameHeight)
	setInt(&config.Sampler.BlocksWide, y.Sampler.BlocksWide)
	setInt(&config.Sampler.BlocksHigh, y.Sampler.BlocksHigh)

	if y.Snapshot.Path != "" {
		config.Snapshot.Path = y.Snapshot.Path
	}

	// === Simulation ===
	s := &config.Simulation
	setInt(&s.Pixels, y.Simulation.Pixels)
	setInt(&s.UnmappedEvery, y.Simulation.UnmappedEvery)
	setInt(&s.LEDRate, y.Simulation.LEDRate)
	setInt(&s.CameraRate, y.Simulation.CameraRate)
	setInt(&s.Spread, y.Simulation.Spread)
	setFloat(&s.Gain, y.Simulation.Gain)
	if y.Simulation.Seed != 0 {
		s.Seed = y.Simulation.Seed
	}

	// === Logging ===
	if y.Logging.Level != "" {
		config.Logging.Level = strings.ToLower(y.Logging.Level)
	}
	if y.Logging.Output != "" {
		config.Logging.Output = y.Logging.Output
	}
	return nil
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setFloatPtr(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// FindConfigFile searches for config file in standard locations.
// Returns the path to the first config file found, or empty string if none found.
// Search order:
//  1. ~/.vismem/config.yaml (user home directory - highest priority)
//  2. Same directory as the binary (config.yaml, vismem.yaml)
//  3. Current working directory (config.yaml, vismem.yaml)
//  4. ~/.config/vismem/config.yaml (XDG standard)
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".vismem", "config.yaml"))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config.yaml"),
			filepath.Join(exeDir, "vismem.yaml"),
		)
	}

	candidates = append(candidates,
		"config.yaml",
		"vismem.yaml",
	)

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "vismem", "config.yaml"))
	} else if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "vismem", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as milliseconds
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
