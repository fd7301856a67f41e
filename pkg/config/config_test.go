package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/dbehnke/convfec/pkg/harness"
)

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	// Reset viper to avoid cross-test pollution
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Spot-check a few defaults
	if cfg.Trial.Code != "k7" {
		t.Errorf("expected Trial.Code default k7, got %q", cfg.Trial.Code)
	}
	if cfg.Trial.FrameBits != 1024 {
		t.Errorf("expected Trial.FrameBits default 1024, got %d", cfg.Trial.FrameBits)
	}
	if cfg.Trial.Decoder != "viterbi" {
		t.Errorf("expected Trial.Decoder default viterbi, got %q", cfg.Trial.Decoder)
	}
	if cfg.Trial.Delta != 4 || cfg.Trial.Scale != 8 {
		t.Errorf("expected delta 4 scale 8, got %d %v", cfg.Trial.Delta, cfg.Trial.Scale)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected Logging.Level default info, got %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Prometheus.Port != 9090 {
		t.Errorf("expected Prometheus.Port default 9090, got %d", cfg.Metrics.Prometheus.Port)
	}
	if cfg.Database.Enabled {
		t.Errorf("expected Database.Enabled default false")
	}
	if got := cfg.Trial.Points(); len(got) != 1 || got[0] != 2.0 {
		t.Errorf("expected a single 2.0 dB point, got %v", got)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "fectest.yaml")
	data := []byte(`trial:
  code: mcqli24
  frame_bits: 256
  trials: 50
  decoder: hybrid
  max_cycles: 500
  sweep: [1.5, 2.5, 3.5]
logging:
  level: debug
database:
  enabled: true
  path: runs.db
  keep_days: 30
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Trial.Code != "mcqli24" || cfg.Trial.FrameBits != 256 || cfg.Trial.Trials != 50 {
		t.Errorf("trial section not loaded: %+v", cfg.Trial)
	}
	if got := cfg.Trial.Points(); len(got) != 3 || got[1] != 2.5 {
		t.Errorf("expected sweep points, got %v", got)
	}
	if cfg.Database.Path != "runs.db" || cfg.Database.Keep != 30 {
		t.Errorf("database section not loaded: %+v", cfg.Database)
	}
	// Unset keys keep their defaults
	if cfg.Trial.Signal != 30 {
		t.Errorf("expected default signal 30, got %v", cfg.Trial.Signal)
	}

	h := cfg.Trial.Harness(3.5)
	if h.Decoder != harness.DecoderHybrid || h.EbN0 != 3.5 || h.MaxCycles != 500 {
		t.Errorf("unexpected harness config: %+v", h)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("FEC_TRIAL_CODE", "k9")
	t.Setenv("FEC_TRIAL_DECODER", "fano")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Trial.Code != "k9" {
		t.Errorf("expected env code k9, got %q", cfg.Trial.Code)
	}
	if cfg.Trial.Decoder != "fano" {
		t.Errorf("expected env decoder fano, got %q", cfg.Trial.Decoder)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("trial:\n  code: nosuchcode\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown code")
	}
}

func validConfig() *Config {
	d := harness.DefaultConfig()
	return &Config{
		Trial: TrialConfig{
			Code:      d.Code,
			FrameBits: d.FrameBits,
			Trials:    d.Trials,
			EbN0:      d.EbN0,
			Signal:    d.Signal,
			Scale:     d.Scale,
			Delta:     d.Delta,
			MaxCycles: d.MaxCycles,
			Decoder:   string(d.Decoder),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate_Errors(t *testing.T) {
	if err := validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	t.Run("unknown decoder", func(t *testing.T) {
		cfg := validConfig()
		cfg.Trial.Decoder = "turbo"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for unknown trial.decoder")
		}
	})

	t.Run("frame bits not byte aligned", func(t *testing.T) {
		cfg := validConfig()
		cfg.Trial.FrameBits = 1001
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for trial.frame_bits not a multiple of 8")
		}
	})

	t.Run("bad sweep point", func(t *testing.T) {
		cfg := validConfig()
		cfg.Trial.Sweep = []float64{1, 2}
		cfg.Trial.Signal = 200
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for signal out of range")
		}
	})

	t.Run("invalid logging level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "verbose"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for logging.level")
		}
	})

	t.Run("invalid prometheus port when enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics = MetricsConfig{Enabled: true, Prometheus: PrometheusConfig{Enabled: true, Port: 70000, Path: "/metrics"}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for metrics.prometheus.port out of range")
		}
	})

	t.Run("invalid prometheus path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics = MetricsConfig{Enabled: true, Prometheus: PrometheusConfig{Enabled: true, Port: 9090, Path: "metrics"}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for metrics.prometheus.path without leading slash")
		}
	})

	t.Run("database without path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database = DatabaseConfig{Enabled: true}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for database.path")
		}
	})
}
