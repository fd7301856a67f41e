// Package integration runs whole trial batches through the config, harness,
// metrics and run history layers together.
package integration

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/convfec/pkg/config"
	"github.com/dbehnke/convfec/pkg/database"
	"github.com/dbehnke/convfec/pkg/harness"
	"github.com/dbehnke/convfec/pkg/logger"
	"github.com/dbehnke/convfec/pkg/metrics"
)

// Suite provides infrastructure for integration tests
type Suite struct {
	T         *testing.T
	Logger    *logger.Logger
	Ctx       context.Context
	Cancel    context.CancelFunc
	Collector *metrics.Collector
	DB        *database.DB
	Metrics   *metrics.PrometheusServer

	logs *logBuffer
}

// NewSuite creates a suite backed by an in-memory run history
func NewSuite(t *testing.T) *Suite {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	logs := &logBuffer{}
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
		Output: logs,
	})

	db, err := database.NewDB(database.Config{Path: ":memory:"}, log.WithComponent("database"))
	if err != nil {
		cancel()
		t.Fatalf("failed to open run history: %v", err)
	}

	return &Suite{
		T:         t,
		Logger:    log,
		Ctx:       ctx,
		Cancel:    cancel,
		Collector: metrics.NewCollector(),
		DB:        db,
		logs:      logs,
	}
}

// Logs returns everything logged so far
func (s *Suite) Logs() string {
	return s.logs.String()
}

// GetFreePort gets a free port for testing
func (s *Suite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// StartMetrics serves the suite collector and returns the scrape URL
func (s *Suite) StartMetrics() string {
	port := s.GetFreePort()
	s.Metrics = metrics.NewPrometheusServer(metrics.PrometheusConfig{
		Enabled: true,
		Port:    port,
		Path:    "/metrics",
	}, s.Collector, s.Logger.WithComponent("metrics"))

	go func() {
		if err := s.Metrics.Start(s.Ctx); err != nil && err != context.Canceled {
			s.Logger.Error("Metrics server error", logger.Error(err))
		}
	}()

	if !s.WaitFor(func() bool { return s.Metrics.Addr() != nil }, 2*time.Second, "metrics listener") {
		s.T.Fatal("metrics server did not start")
	}
	return fmt.Sprintf("http://localhost:%d/metrics", port)
}

// RunTrials runs every Eb/N0 point of cfg and stores each summary
func (s *Suite) RunTrials(cfg config.TrialConfig) []*harness.Summary {
	var out []*harness.Summary
	for _, ebn0 := range cfg.Points() {
		runner, err := harness.NewRunner(cfg.Harness(ebn0), s.Logger.WithComponent("trial"), s.Collector)
		if err != nil {
			s.T.Fatalf("failed to create runner at %.2f dB: %v", ebn0, err)
		}

		started := time.Now()
		s.Collector.RunStarted()
		sum, err := runner.Run(s.Ctx)
		s.Collector.RunFinished()
		if err != nil {
			s.T.Fatalf("trials at %.2f dB failed: %v", ebn0, err)
		}
		if err := s.DB.Runs().Create(database.RunFromSummary(sum, started)); err != nil {
			s.T.Fatalf("failed to store run: %v", err)
		}
		out = append(out, sum)
	}
	return out
}

// Cleanup cleans up resources
func (s *Suite) Cleanup() {
	if s.Metrics != nil {
		s.Metrics.Stop()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *Suite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *Suite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// DefaultTrialConfig is a small batch that finishes quickly on any code
func DefaultTrialConfig() config.TrialConfig {
	d := harness.DefaultConfig()
	return config.TrialConfig{
		Code:      d.Code,
		FrameBits: 256,
		Trials:    20,
		EbN0:      6,
		Signal:    d.Signal,
		Scale:     d.Scale,
		Delta:     d.Delta,
		MaxCycles: d.MaxCycles,
		Decoder:   string(d.Decoder),
		Workers:   2,
		Seed:      20240501,
	}
}

// logBuffer collects log output from every goroutine the suite starts
type logBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
