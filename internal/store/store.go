// Package store persists sessions and their step traces in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"adaptrader/internal/core"
	"adaptrader/internal/telemetry"
)

const (
	StatusRunning  = "running"
	StatusFinished = "finished"
)

var ErrSessionNotFound = errors.New("session not found")

type Store struct {
	db *sql.DB
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Status        string     `json:"status"`
	StartBalance  float64    `json:"start_balance"`
	Prices        int        `json:"prices"`
	Steps         int        `json:"steps"`
	FinalEquity   float64    `json:"final_equity"`
	Return        float64    `json:"return"`
	MaxDrawdown   float64    `json:"max_drawdown"`
	DriftEvents   int        `json:"drift_events"`
	Entropy       float64    `json:"action_entropy"`
	StopReason    string     `json:"stop_reason"`
	LearningRates []float64  `json:"final_learning_rates"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    start_balance REAL NOT NULL,
    prices INTEGER NOT NULL,
    steps INTEGER NOT NULL DEFAULT 0,
    final_equity REAL NOT NULL DEFAULT 0,
    return_ratio REAL NOT NULL DEFAULT 0,
    max_drawdown REAL NOT NULL DEFAULT 0,
    drift_events INTEGER NOT NULL DEFAULT 0,
    action_entropy REAL NOT NULL DEFAULT 0,
    stop_reason TEXT NOT NULL DEFAULT '',
    learning_rates TEXT NOT NULL DEFAULT '[]',
    started_at INTEGER NOT NULL,
    finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS steps (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    step INTEGER NOT NULL,
    action TEXT NOT NULL,
    price REAL NOT NULL,
    balance REAL NOT NULL,
    shares INTEGER NOT NULL,
    equity REAL NOT NULL,
    reward REAL NOT NULL,
    done INTEGER NOT NULL,
    drift INTEGER NOT NULL,
    learning_rate REAL NOT NULL,
    drawdown REAL NOT NULL,
    confidence REAL NOT NULL,
    fill_price REAL,
    PRIMARY KEY (session_id, step)
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, info telemetry.SessionInfo) error {
	if strings.TrimSpace(info.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	started := info.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, source, status, start_balance, prices, final_equity, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, info.ID, info.Source, StatusRunning, info.StartBalance, info.Prices, info.StartBalance, started.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) AppendStep(ctx context.Context, ev telemetry.StepEvent) error {
	var fillPrice sql.NullFloat64
	if ev.Fill != nil {
		fillPrice = sql.NullFloat64{Float64: ev.Fill.Price, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO steps (session_id, step, action, price, balance, shares, equity, reward, done, drift, learning_rate, drawdown, confidence, fill_price)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, ev.SessionID, ev.Step, ev.Action.String(), ev.Price, ev.Balance, ev.Shares, ev.Equity, ev.Reward,
		ev.Done, ev.Drift, ev.LearningRate, ev.Drawdown, ev.Confidence, fillPrice)
	if err != nil {
		return fmt.Errorf("insert step %d: %w", ev.Step, err)
	}
	return nil
}

func (s *Store) FinishSession(ctx context.Context, sum telemetry.Summary) error {
	lrs, err := json.Marshal(sum.FinalLearningRates)
	if err != nil {
		return fmt.Errorf("encode learning rates: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, steps = ?, final_equity = ?, return_ratio = ?, max_drawdown = ?,
    drift_events = ?, action_entropy = ?, stop_reason = ?, learning_rates = ?, finished_at = ?
WHERE id = ?
`, StatusFinished, sum.Steps, sum.FinalEquity, sum.Return, sum.MaxDrawdown,
		sum.DriftEvents, sum.ActionEntropy, sum.StopReason, string(lrs), time.Now().UnixMilli(), sum.SessionID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish session %s: %w", sum.SessionID, ErrSessionNotFound)
	}
	return nil
}

const sessionColumns = `id, source, status, start_balance, prices, steps, final_equity, return_ratio,
    max_drawdown, drift_events, action_entropy, stop_reason, learning_rates, started_at, finished_at`

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+`
FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (SessionRecord, error) {
	var (
		rec      SessionRecord
		lrs      string
		started  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&rec.ID, &rec.Source, &rec.Status, &rec.StartBalance, &rec.Prices, &rec.Steps,
		&rec.FinalEquity, &rec.Return, &rec.MaxDrawdown, &rec.DriftEvents, &rec.Entropy,
		&rec.StopReason, &lrs, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(lrs), &rec.LearningRates); err != nil {
		return rec, fmt.Errorf("decode learning rates: %w", err)
	}
	rec.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		rec.FinishedAt = &t
	}
	return rec, nil
}

// SessionSteps returns the step trace of a session in order.
func (s *Store) SessionSteps(ctx context.Context, id string) ([]telemetry.StepEvent, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT step, action, price, balance, shares, equity, reward, done, drift, learning_rate, drawdown, confidence, fill_price
FROM steps WHERE session_id = ? ORDER BY step`, id)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []telemetry.StepEvent
	for rows.Next() {
		ev := telemetry.StepEvent{SessionID: id}
		var fillPrice sql.NullFloat64
		if err := rows.Scan(&ev.Step, &ev.ActionName, &ev.Price, &ev.Balance, &ev.Shares, &ev.Equity,
			&ev.Reward, &ev.Done, &ev.Drift, &ev.LearningRate, &ev.Drawdown, &ev.Confidence, &fillPrice); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		ev.Action, _ = core.ParseAction(ev.ActionName)
		if fillPrice.Valid {
			ev.Fill = &core.Fill{
				Step:    ev.Step,
				Side:    ev.Action,
				Price:   fillPrice.Float64,
				Balance: ev.Balance,
				Shares:  ev.Shares,
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	return out, nil
}
