package telemetry

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	colorDrift   = 0xF1C40F
	colorSummary = 0x2ECC71
	colorLoss    = 0xE74C3C
)

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Color       int               `json:"color"`
	Footer      map[string]string `json:"footer"`
	Timestamp   string            `json:"timestamp"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordNotifier posts regime-change alerts and session summaries to a
// Discord webhook. With an empty URL every call is a no-op.
type DiscordNotifier struct {
	webhookURL string
	client     *resty.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &DiscordNotifier{webhookURL: webhookURL, client: client}
}

func (d *DiscordNotifier) Enabled() bool { return d.webhookURL != "" }

// Publish alerts only on steps that reported drift.
func (d *DiscordNotifier) Publish(ev StepEvent) error {
	if !ev.Drift {
		return nil
	}
	msg := fmt.Sprintf("Session `%s` step %d: reward distribution shifted, learning rate now %.6g (equity %.2f)",
		ev.SessionID, ev.Step, ev.LearningRate, ev.Equity)
	return d.SendAlert("Market regime change", msg, colorDrift)
}

// Finish posts the end-of-session summary.
func (d *DiscordNotifier) Finish(s Summary) error {
	color := colorSummary
	if s.Return < 0 {
		color = colorLoss
	}
	msg := fmt.Sprintf("Session `%s` finished after %d steps (%s)\nEquity %.2f → %.2f (%+.2f%%), max drawdown %.2f%%, %d drift events",
		s.SessionID, s.Steps, s.StopReason, s.StartEquity, s.FinalEquity, s.Return*100, s.MaxDrawdown*100, s.DriftEvents)
	return d.SendAlert("Trading session completed", msg, color)
}

func (d *DiscordNotifier) SendAlert(title, message string, color int) error {
	if !d.Enabled() {
		return nil
	}

	payload := discordPayload{Embeds: []discordEmbed{{
		Title:       title,
		Description: message,
		Color:       color,
		Footer:      map[string]string{"text": "adaptrader"},
		Timestamp:   time.Now().Format(time.RFC3339),
	}}}

	resp, err := d.client.R().SetBody(payload).Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("post discord alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode())
	}
	return nil
}
