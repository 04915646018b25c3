package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"adaptrader/internal/telemetry"
)

var ErrRecorderClosed = errors.New("recorder closed")

var traceHeader = []string{
	"session_id", "step", "action", "price", "balance", "shares",
	"equity", "reward", "done", "drift", "learning_rate", "drawdown", "confidence",
}

// Recorder appends step events to a CSV trace file. Rows are handed to a
// background writer so a slow disk does not stall the session loop.
type Recorder struct {
	file   *os.File
	writer *csv.Writer
	log    *zap.Logger

	mu       sync.Mutex
	closed   bool
	dropped  int
	rows     chan []string
	finished chan error
}

// NewRecorder opens filename for appending and writes the header when the
// file is new or empty.
func NewRecorder(filename string, log *zap.Logger) (*Recorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	info, err := os.Stat(filename)
	needHeader := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(traceHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write trace header: %w", err)
		}
		w.Flush()
	}

	r := &Recorder{
		file:     f,
		writer:   w,
		log:      log,
		rows:     make(chan []string, 4096),
		finished: make(chan error, 1),
	}
	go r.backgroundWriter()
	return r, nil
}

// Publish queues ev. When the queue is full the row is dropped and counted.
func (r *Recorder) Publish(ev telemetry.StepEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.rows <- traceRow(ev):
	default:
		r.dropped++
		if r.dropped == 1 {
			r.log.Warn("trace writer saturated, dropping rows", zap.String("file", r.file.Name()))
		}
	}
	return nil
}

func (r *Recorder) backgroundWriter() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var firstErr error
	for {
		select {
		case row, ok := <-r.rows:
			if !ok {
				r.writer.Flush()
				if err := r.writer.Error(); err != nil && firstErr == nil {
					firstErr = err
				}
				r.finished <- firstErr
				return
			}
			if err := r.writer.Write(row); err != nil && firstErr == nil {
				firstErr = err
			}
		case <-ticker.C:
			r.writer.Flush()
		}
	}
}

// Close drains queued rows, flushes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.rows)
	r.mu.Unlock()

	werr := <-r.finished
	cerr := r.file.Close()
	if r.dropped > 0 {
		r.log.Warn("trace rows dropped", zap.Int("rows", r.dropped))
	}
	if werr != nil {
		return fmt.Errorf("write trace: %w", werr)
	}
	return cerr
}

func traceRow(ev telemetry.StepEvent) []string {
	return []string{
		ev.SessionID,
		strconv.Itoa(ev.Step),
		ev.Action.String(),
		fmt.Sprintf("%.4f", ev.Price),
		fmt.Sprintf("%.4f", ev.Balance),
		strconv.Itoa(ev.Shares),
		fmt.Sprintf("%.4f", ev.Equity),
		fmt.Sprintf("%.4f", ev.Reward),
		strconv.FormatBool(ev.Done),
		strconv.FormatBool(ev.Drift),
		fmt.Sprintf("%.6g", ev.LearningRate),
		fmt.Sprintf("%.6f", ev.Drawdown),
		fmt.Sprintf("%.4f", ev.Confidence),
	}
}
