package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"

	"github.com/dbehnke/convfec/pkg/database"
	"github.com/dbehnke/convfec/pkg/harness"
	"github.com/dbehnke/convfec/pkg/metrics"
)

var summaryHeader = []string{"CODE", "DECODER", "EB/N0", "FRAMES", "GOOD", "FAILED", "UNDETECTED", "BER", "FER", "CYCLES/BIT", "FALLBACKS", "ELAPSED"}

func summaryRow(s *harness.Summary) []string {
	return []string{
		s.Code,
		string(s.Decoder),
		fmt.Sprintf("%.2f", s.EbN0),
		strconv.Itoa(s.Frames),
		strconv.Itoa(s.Good),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.Undetected),
		fmt.Sprintf("%.3e", s.BER),
		fmt.Sprintf("%.3e", s.FER),
		fmt.Sprintf("%.2f", s.CyclesPerBit),
		strconv.Itoa(s.ViterbiFallbacks),
		s.Elapsed.Round(time.Millisecond).String(),
	}
}

// writeSummaries renders one row per Eb/N0 point with a totals footer
func writeSummaries(w io.Writer, summaries []*harness.Summary) {
	table := tablewriter.NewWriter(w)

	stats := make([][]string, 0, len(summaries))
	var frames, good, failed, undetected, fallbacks int
	for _, s := range summaries {
		stats = append(stats, summaryRow(s))
		frames += s.Frames
		good += s.Good
		failed += s.Failed
		undetected += s.Undetected
		fallbacks += s.ViterbiFallbacks
	}

	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader(summaryHeader)
	table.SetFooter([]string{"Total", "", "", strconv.Itoa(frames), strconv.Itoa(good), strconv.Itoa(failed), strconv.Itoa(undetected), "", "", "", strconv.Itoa(fallbacks), ""})
	table.AppendBulk(stats)
	table.Render()
}

// writeHistory renders stored runs, newest first
func writeHistory(w io.Writer, runs []database.Run) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STARTED", "RUN", "CODE", "DECODER", "EB/N0", "FRAMES", "BER", "FER"})
	for _, r := range runs {
		table.Append([]string{
			r.StartTime.Format("2006-01-02 15:04:05"),
			shortID(r.RunID),
			r.Code,
			r.Decoder,
			fmt.Sprintf("%.2f", r.EbN0),
			strconv.Itoa(r.Frames),
			fmt.Sprintf("%.3e", r.BER),
			fmt.Sprintf("%.3e", r.FER),
		})
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeMetrics prints the fec_ families in the Prometheus text format
func writeMetrics(w io.Writer, c *metrics.Collector) error {
	families, err := c.Registry().Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "fec_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
