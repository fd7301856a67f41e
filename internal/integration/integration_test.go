//go:build integration
// +build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/dbehnke/convfec/pkg/harness"
)

// TestViterbiSweepStored runs a sweep and checks the stored history
func TestViterbiSweepStored(t *testing.T) {
	suite := NewSuite(t)
	defer suite.Cleanup()

	cfg := DefaultTrialConfig()
	cfg.Sweep = []float64{5, 6, 7}
	sums := suite.RunTrials(cfg)

	if len(sums) != 3 {
		t.Fatalf("Expected 3 summaries, got %d", len(sums))
	}
	for _, s := range sums {
		if s.Frames != cfg.Trials {
			t.Errorf("Expected %d frames at %.1f dB, got %d", cfg.Trials, s.EbN0, s.Frames)
		}
		if s.Good+s.Failed+s.Undetected != s.Frames {
			t.Errorf("Outcome counts do not add up: %+v", s)
		}
	}

	runs, err := suite.DB.Runs().GetByCode("k7", "viterbi", 10)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 stored runs, got %d", len(runs))
	}
	if runs[0].EbN0 != 5 || runs[2].EbN0 != 7 {
		t.Errorf("Expected runs ordered by Eb/N0, got %v..%v", runs[0].EbN0, runs[2].EbN0)
	}

	if got := suite.Collector.GetTotalFrames(); got != uint64(3*cfg.Trials) {
		t.Errorf("Expected %d frames recorded, got %d", 3*cfg.Trials, got)
	}
	if !strings.Contains(suite.Logs(), "Trials complete") {
		t.Error("Expected completion to be logged")
	}
}

// TestHybridFallbackMetrics forces every frame through the fallback path
func TestHybridFallbackMetrics(t *testing.T) {
	suite := NewSuite(t)
	defer suite.Cleanup()

	url := suite.StartMetrics()

	cfg := DefaultTrialConfig()
	cfg.Decoder = string(harness.DecoderHybrid)
	cfg.MaxCycles = 0
	cfg.Trials = 8
	sums := suite.RunTrials(cfg)

	if sums[0].ViterbiFallbacks != cfg.Trials {
		t.Errorf("Expected every frame to fall back, got %d", sums[0].ViterbiFallbacks)
	}
	if got := suite.Collector.GetViterbiFallbacks(); got != uint64(cfg.Trials) {
		t.Errorf("Expected %d fallbacks recorded, got %d", cfg.Trials, got)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"fec_viterbi_fallbacks_total 8",
		"fec_fano_timeouts_total 8",
		"fec_runs_active 0",
		`fec_frames_total{decoder="hybrid"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %q in scrape", want)
		}
	}
}

// TestFanoLongCode runs the sequential decoder on a long code
func TestFanoLongCode(t *testing.T) {
	suite := NewSuite(t)
	defer suite.Cleanup()

	cfg := DefaultTrialConfig()
	cfg.Code = "mcqli24"
	cfg.Decoder = string(harness.DecoderFano)
	cfg.EbN0 = 6
	sums := suite.RunTrials(cfg)

	s := sums[0]
	if s.FanoAttempts != cfg.Trials {
		t.Errorf("Expected %d Fano attempts, got %d", cfg.Trials, s.FanoAttempts)
	}
	if s.CyclesPerBit < 1 {
		t.Errorf("Expected at least one move per bit, got %.2f", s.CyclesPerBit)
	}
	if s.Good == 0 {
		t.Error("Expected some frames to decode at 6 dB")
	}

	n, err := suite.DB.Runs().Count()
	if err != nil || n != 1 {
		t.Errorf("Expected one stored run, got %d (%v)", n, err)
	}
}
