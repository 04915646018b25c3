package store

import (
	"context"

	"adaptrader/internal/telemetry"
)

// SessionSink writes a running session into the store. Writes ignore
// cancellation of the session context so a stopped session is still
// closed out.
type SessionSink struct {
	ctx   context.Context
	store *Store
}

func (s *Store) Sink(ctx context.Context) *SessionSink {
	return &SessionSink{ctx: context.WithoutCancel(ctx), store: s}
}

func (k *SessionSink) Start(info telemetry.SessionInfo) error {
	return k.store.CreateSession(k.ctx, info)
}

func (k *SessionSink) Publish(ev telemetry.StepEvent) error {
	return k.store.AppendStep(k.ctx, ev)
}

func (k *SessionSink) Finish(sum telemetry.Summary) error {
	return k.store.FinishSession(k.ctx, sum)
}
