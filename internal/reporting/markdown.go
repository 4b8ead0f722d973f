package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	run := r.Run

	// Header
	sb.WriteString(fmt.Sprintf("# Margin Estimate: %s\n\n", run.Region))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", run.RunID))
	sb.WriteString(fmt.Sprintf("| Reference | #%d at %s |\n", run.RefIndex, run.RefCollectedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Current | #%d at %s |\n", run.CurIndex, run.CurCollectedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Alpha | %g |\n", run.Alpha))
	sb.WriteString(fmt.Sprintf("| Method | %s |\n", run.Method))
	sb.WriteString("\n")

	// Margin
	sb.WriteString(fmt.Sprintf("## Margin (%s - %s)\n\n", run.CandidateA, run.CandidateB))
	sb.WriteString("| Measure | Low | High |\n")
	sb.WriteString("|---------|-----|------|\n")
	sb.WriteString(fmt.Sprintf("| Final margin | %.1f | %.1f |\n", run.Margin.Low, run.Margin.High))
	sb.WriteString(fmt.Sprintf("| Remaining %s | %.1f | %.1f |\n", run.CandidateA, run.RemainingA.Low, run.RemainingA.High))
	sb.WriteString(fmt.Sprintf("| Remaining %s | %.1f | %.1f |\n", run.CandidateB, run.RemainingB.Low, run.RemainingB.High))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Counted difference over estimated counties: %d\n\n", run.Margin.CurrentDiff))
	sb.WriteString(fmt.Sprintf("Outcome: %s\n\n", outcome(run.CandidateA, run.CandidateB, run.Margin.Low, run.Margin.High)))

	// Sources
	sb.WriteString("## Sources\n\n")
	sb.WriteString("| Source | Counties |\n")
	sb.WriteString("|--------|----------|\n")
	for _, s := range r.Sources {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", s.Source, s.Counties))
	}
	sb.WriteString("\n")

	// Counties
	sb.WriteString("## Counties\n\n")
	if len(r.Counties) == 0 {
		sb.WriteString("No counties could be estimated.\n")
		return sb.String()
	}

	sb.WriteString("| County | Source | Remaining |")
	for _, c := range r.Candidates {
		sb.WriteString(fmt.Sprintf(" %s |", c))
	}
	sb.WriteString("\n|--------|--------|-----------|")
	for range r.Candidates {
		sb.WriteString("------|")
	}
	sb.WriteString("\n")

	for _, row := range r.Counties {
		source := string(row.Source)
		if row.ClampedEntries > 0 {
			source = fmt.Sprintf("%s (%d clamped)", source, row.ClampedEntries)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %d |", row.County, source, row.Remaining))
		for _, cell := range row.Cells {
			sb.WriteString(fmt.Sprintf(" %.4f [%.4f, %.4f] |", cell.Point, cell.Low, cell.High))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderHistoryMarkdown renders a margin history as Markdown string.
func RenderHistoryMarkdown(h *History) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Margin History: %s (%s - %s)\n\n", h.Region, h.CandidateA, h.CandidateB))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", h.GeneratedAt.Format(time.RFC3339)))

	if len(h.Rows) == 0 {
		sb.WriteString("No runs recorded.\n")
		return sb.String()
	}

	sb.WriteString("| Snapshot | Collected | Counted Diff | Margin Low | Margin High | Outcome |\n")
	sb.WriteString("|----------|-----------|--------------|------------|-------------|---------|\n")
	for _, row := range h.Rows {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %.1f | %.1f | %s |\n",
			row.CurIndex, row.CurCollectedAt.Format(time.RFC3339), row.Margin.CurrentDiff,
			row.Margin.Low, row.Margin.High, outcome(h.CandidateA, h.CandidateB, row.Margin.Low, row.Margin.High)))
	}
	sb.WriteString("\n")

	return sb.String()
}

// outcome states who leads across the whole interval, if anyone.
func outcome(a, b string, low, high float64) string {
	switch {
	case low > 0:
		return a + " ahead"
	case high < 0:
		return b + " ahead"
	default:
		return "too close to call"
	}
}
