package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"adaptrader/internal/core"
	"adaptrader/internal/telemetry"
)

var (
	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	holdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	driftStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)
)

// Console prints one line per step and the summary table at the end.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Publish(ev telemetry.StepEvent) error {
	action := fmt.Sprintf("%-4s", ev.Action.String())
	switch ev.Action {
	case core.Buy:
		action = buyStyle.Render(action)
	case core.Sell:
		action = sellStyle.Render(action)
	default:
		action = holdStyle.Render(action)
	}

	if _, err := fmt.Fprintf(c.w, "Step %02d | %s | Price: %.2f | Reward: %.2f | Equity: %.2f | Confidence: %.2f\n",
		ev.Step, action, ev.Price, ev.Reward, ev.Equity, ev.Confidence); err != nil {
		return err
	}
	if ev.Drift {
		line := fmt.Sprintf("Market regime change → AI adapting (lr %.6g)", ev.LearningRate)
		if _, err := fmt.Fprintln(c.w, driftStyle.Render(line)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) Finish(s telemetry.Summary) error {
	_, err := fmt.Fprintf(c.w, "%s\n%s\n", doneStyle.Render("Trading session completed"), SummaryTable(s))
	return err
}
