package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"adaptrader/internal/core"
	"adaptrader/internal/telemetry"
)

// StreamClient follows the step events published on a server's /ws
// endpoint, reconnecting until its context ends.
type StreamClient struct {
	URL string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReconnectDelay time.Duration

	dialer *websocket.Dialer
	log    *zap.Logger
}

func NewStreamClient(url string, log *zap.Logger) *StreamClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamClient{
		URL:            url,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   20 * time.Second,
		ReconnectDelay: 2 * time.Second,
		dialer:         websocket.DefaultDialer,
		log:            log.With(zap.String("url", url)),
	}
}

// Run calls handle for every event received. It returns nil once ctx is
// cancelled and only gives up early if the first dial fails.
func (c *StreamClient) Run(ctx context.Context, handle func(telemetry.StepEvent)) error {
	connected := false
	for {
		err := c.session(ctx, handle, func() { connected = true })
		if ctx.Err() != nil {
			return nil
		}
		if !connected {
			return err
		}
		c.log.Warn("stream lost, reconnecting", zap.Error(err), zap.Duration("delay", c.ReconnectDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.ReconnectDelay):
		}
	}
}

func (c *StreamClient) session(ctx context.Context, handle func(telemetry.StepEvent), onConnect func()) error {
	conn, _, err := c.dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	onConnect()
	c.log.Info("stream connected")

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(ctx, conn, done)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))

		ev, err := decodeStepEvent(msg)
		if err != nil {
			c.log.Debug("skipping undecodable message", zap.Error(err))
			continue
		}
		handle(ev)
	}
}

// keepAlive pings the server and closes conn when ctx ends, which unblocks
// the read loop.
func (c *StreamClient) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.WriteTimeout))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func decodeStepEvent(msg []byte) (telemetry.StepEvent, error) {
	var ev telemetry.StepEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return ev, err
	}
	a, ok := core.ParseAction(ev.ActionName)
	if !ok {
		return ev, fmt.Errorf("unknown action %q", ev.ActionName)
	}
	ev.Action = a
	return ev, nil
}
