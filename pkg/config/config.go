package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/dbehnke/convfec/pkg/harness"
)

// Config represents the application configuration
type Config struct {
	Trial    TrialConfig    `mapstructure:"trial"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
}

// TrialConfig describes the trial batch to run
type TrialConfig struct {
	Code            string    `mapstructure:"code"`       // code registry name
	FrameBits       int       `mapstructure:"frame_bits"` // including tail
	Trials          int       `mapstructure:"trials"`
	EbN0            float64   `mapstructure:"ebn0"`  // dB
	Sweep           []float64 `mapstructure:"sweep"` // Eb/N0 values to run in turn, overrides ebn0
	Signal          float64   `mapstructure:"signal"`
	Scale           float64   `mapstructure:"scale"`
	Delta           int64     `mapstructure:"delta"`
	MaxCycles       int       `mapstructure:"max_cycles"` // Fano moves per bit
	Decoder         string    `mapstructure:"decoder"`    // viterbi, fano, hybrid
	Workers         int       `mapstructure:"workers"`
	Seed            int64     `mapstructure:"seed"`
	ZeroData        bool      `mapstructure:"zero_data"`
	SoftViterbi     bool      `mapstructure:"soft_viterbi"`
	Renormalization uint32    `mapstructure:"renormalization"`
	ProgressEvery   int       `mapstructure:"progress_every"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig holds the run history database configuration
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Keep    int    `mapstructure:"keep_days"` // prune runs older than this, 0 keeps everything
}

// Harness converts the trial section for one Eb/N0 point
func (t TrialConfig) Harness(ebn0 float64) harness.Config {
	return harness.Config{
		Code:            t.Code,
		FrameBits:       t.FrameBits,
		Trials:          t.Trials,
		EbN0:            ebn0,
		Signal:          t.Signal,
		Scale:           t.Scale,
		Delta:           t.Delta,
		MaxCycles:       t.MaxCycles,
		Decoder:         harness.DecoderKind(t.Decoder),
		Workers:         t.Workers,
		Seed:            t.Seed,
		ZeroData:        t.ZeroData,
		SoftViterbi:     t.SoftViterbi,
		Renormalization: t.Renormalization,
		ProgressEvery:   t.ProgressEvery,
	}
}

// Points returns the Eb/N0 values to run
func (t TrialConfig) Points() []float64 {
	if len(t.Sweep) > 0 {
		return t.Sweep
	}
	return []float64{t.EbN0}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Set defaults
	setDefaults()

	// Set config file
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("fectest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/convfec")
	}

	// Environment variables
	viper.SetEnvPrefix("FEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	d := harness.DefaultConfig()

	// Trial defaults
	viper.SetDefault("trial.code", d.Code)
	viper.SetDefault("trial.frame_bits", d.FrameBits)
	viper.SetDefault("trial.trials", d.Trials)
	viper.SetDefault("trial.ebn0", d.EbN0)
	viper.SetDefault("trial.signal", d.Signal)
	viper.SetDefault("trial.scale", d.Scale)
	viper.SetDefault("trial.delta", d.Delta)
	viper.SetDefault("trial.max_cycles", d.MaxCycles)
	viper.SetDefault("trial.decoder", string(d.Decoder))
	viper.SetDefault("trial.workers", 0)
	viper.SetDefault("trial.seed", 0)
	viper.SetDefault("trial.zero_data", false)
	viper.SetDefault("trial.soft_viterbi", false)
	viper.SetDefault("trial.renormalization", 0)
	viper.SetDefault("trial.progress_every", 0)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.prometheus.enabled", false)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.path", "convfec.db")
	viper.SetDefault("database.keep_days", 0)
}
