package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

// RenderCountyCSV renders the county table as CSV string, one row per
// county and candidate.
func RenderCountyCSV(r *Report) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	_ = w.Write([]string{
		"county", "source", "remaining", "clamped_entries",
		"candidate", "counted", "input", "prob_low", "prob_point", "prob_high",
	})

	// Rows
	for _, row := range r.Counties {
		for _, cell := range row.Cells {
			_ = w.Write([]string{
				row.County,
				string(row.Source),
				strconv.FormatInt(row.Remaining, 10),
				strconv.Itoa(row.ClampedEntries),
				cell.Candidate,
				strconv.FormatInt(cell.Counted, 10),
				strconv.FormatInt(cell.Input, 10),
				formatFloat(cell.Low),
				formatFloat(cell.Point),
				formatFloat(cell.High),
			})
		}
	}

	w.Flush()
	return sb.String()
}

// RenderHistoryCSV renders a margin history as CSV string.
func RenderHistoryCSV(h *History) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write([]string{
		"run_id", "cur_index", "cur_collected_at", "current_diff",
		"margin_low", "margin_high",
		"remaining_a_low", "remaining_a_high", "remaining_b_low", "remaining_b_high",
	})

	for _, row := range h.Rows {
		_ = w.Write([]string{
			row.RunID,
			strconv.Itoa(row.CurIndex),
			row.CurCollectedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.Margin.CurrentDiff, 10),
			formatFloat(row.Margin.Low),
			formatFloat(row.Margin.High),
			formatFloat(row.RemainingA.Low),
			formatFloat(row.RemainingA.High),
			formatFloat(row.RemainingB.Low),
			formatFloat(row.RemainingB.High),
		})
	}

	w.Flush()
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
