// Package report renders a completed analysis as a downloadable PDF.
package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"

	"coherence/core"
	"coherence/timeline"
)

// orderFlags sorts for the report: most severe first, ties in timeline order.
func orderFlags(flags []core.DissonanceFlag) []core.DissonanceFlag {
	ordered := make([]core.DissonanceFlag, len(flags))
	copy(ordered, flags)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Severity.Rank() != ordered[j].Severity.Rank() {
			return ordered[i].Severity.Rank() > ordered[j].Severity.Rank()
		}
		return ordered[i].Timestamp < ordered[j].Timestamp
	})
	return ordered
}

// Generate renders the coaching report for one analysis.
func Generate(result *core.AnalysisResult) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Coherence Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "Coherence Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Coherence score: %d / 100 (%s)", result.CoherenceScore, result.ScoreTier))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Duration: %s", timeline.FormatTimestamp(result.DurationSeconds)))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 9, "Metrics")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	m := result.Metrics
	rows := []string{
		fmt.Sprintf("Eye contact: %d%%", m.EyeContact),
		fmt.Sprintf("Filler words: %d", m.FillerWords),
		fmt.Sprintf("Fidgeting instances: %d", m.Fidgeting),
		fmt.Sprintf("Speaking pace: %d wpm (target %s)", m.SpeakingPace, m.SpeakingPaceTarget),
	}
	for _, row := range rows {
		pdf.Cell(0, 7, row)
		pdf.Ln(7)
	}
	pdf.Ln(5)

	if len(result.Strengths) > 0 {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 9, "Strengths")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 11)
		for _, s := range result.Strengths {
			pdf.MultiCell(0, 7, "- "+s, "", "L", false)
		}
		pdf.Ln(5)
	}

	if len(result.Priorities) > 0 {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 9, "Top priorities")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 11)
		for _, p := range result.Priorities {
			pdf.MultiCell(0, 7, "- "+p, "", "L", false)
		}
		pdf.Ln(5)
	}

	if len(result.DissonanceFlags) > 0 {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 9, "Flagged moments")
		pdf.Ln(10)
		for _, f := range orderFlags(result.DissonanceFlags) {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.Cell(0, 7, fmt.Sprintf("%s  [%s, %s]", timeline.FormatTimestamp(f.Timestamp), f.Type, f.Severity))
			pdf.Ln(7)
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, f.Description, "", "L", false)
			pdf.SetFont("Helvetica", "I", 11)
			pdf.MultiCell(0, 6, "Coaching: "+f.Coaching, "", "L", false)
			pdf.Ln(3)
		}
	}

	if result.CoachingSummary != "" {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 9, "Summary")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, result.CoachingSummary, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
