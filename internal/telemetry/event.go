package telemetry

import (
	"time"

	"adaptrader/internal/core"
)

// SessionInfo is published once before the first step.
type SessionInfo struct {
	ID           string    `json:"session_id"`
	Source       string    `json:"source"`
	StartedAt    time.Time `json:"started_at"`
	StartBalance float64   `json:"start_balance"`
	Prices       int       `json:"prices"`
}

// StepEvent describes one act/step/learn iteration.
type StepEvent struct {
	SessionID    string      `json:"session_id"`
	Step         int         `json:"step"`
	Action       core.Action `json:"-"`
	ActionName   string      `json:"action"`
	Price        float64     `json:"price"`
	Balance      float64     `json:"balance"`
	Shares       int         `json:"shares"`
	Equity       float64     `json:"equity"`
	Reward       float64     `json:"reward"`
	Done         bool        `json:"done"`
	Drift        bool        `json:"drift"`
	LearningRate float64     `json:"learning_rate"`
	Drawdown     float64     `json:"drawdown"`
	Confidence   float64     `json:"confidence"`
	Fill         *core.Fill  `json:"fill,omitempty"` // set only when the action executed
}

// Summary is the end-of-session report.
type Summary struct {
	SessionID          string      `json:"session_id"`
	Steps              int         `json:"steps"`
	StartEquity        float64     `json:"start_equity"`
	FinalEquity        float64     `json:"final_equity"`
	Return             float64     `json:"return"`
	MaxDrawdown        float64     `json:"max_drawdown"`
	DriftEvents        int         `json:"drift_events"`
	Fills              []core.Fill `json:"fills"`
	FinalLearningRates []float64   `json:"final_learning_rates"`
	ActionEntropy      float64     `json:"action_entropy"`
	StopReason         string      `json:"stop_reason"`
}
