package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"adaptrader/internal/core"
	"adaptrader/internal/store"
	"adaptrader/internal/telemetry"
)

// SummaryTable renders the end-of-session summary.
func SummaryTable(s telemetry.Summary) string {
	buys, sells := 0, 0
	for _, f := range s.Fills {
		if f.Side == core.Buy {
			buys++
		} else {
			sells++
		}
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("Session " + s.SessionID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Steps", s.Steps},
		{"Stop reason", s.StopReason},
		{"Start equity", fmt.Sprintf("%.2f", s.StartEquity)},
		{"Final equity", fmt.Sprintf("%.2f", s.FinalEquity)},
		{"Return", fmt.Sprintf("%+.2f%%", s.Return*100)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100)},
		{"Drift events", s.DriftEvents},
		{"Fills (buy/sell)", fmt.Sprintf("%d/%d", buys, sells)},
		{"Learning rates", formatRates(s.FinalLearningRates)},
		{"Action entropy", fmt.Sprintf("%.3f bits", s.ActionEntropy)},
	})
	return t.Render()
}

// SessionsTable renders stored sessions, newest first.
func SessionsTable(records []store.SessionRecord) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Started", "Source", "Status", "Steps", "Final equity", "Return", "Drifts"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			r.Status,
			r.Steps,
			fmt.Sprintf("%.2f", r.FinalEquity),
			fmt.Sprintf("%+.2f%%", r.Return*100),
			r.DriftEvents,
		})
	}
	return t.Render()
}

func formatRates(lrs []float64) string {
	if len(lrs) == 0 {
		return "-"
	}
	parts := make([]string, len(lrs))
	for i, lr := range lrs {
		parts[i] = fmt.Sprintf("%.6g", lr)
	}
	return strings.Join(parts, ", ")
}
