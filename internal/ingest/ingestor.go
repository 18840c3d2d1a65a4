// Package ingest drives the feed connection: decode, dedup, store, retry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/bike-tracker/internal/metrics"
	"github.com/i474232898/bike-tracker/internal/tracking"
)

// DefaultMaxRetries is the consecutive reconnect bound used by config defaults.
const DefaultMaxRetries = 3

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateReceiving    State = "receiving"
	StateStopped      State = "stopped"
)

var (
	// ErrRetriesExhausted is returned by Run once the consecutive retry bound
	// is exceeded; the caller is expected to start a fresh task later.
	ErrRetriesExhausted = errors.New("ingest: retries exhausted")
	ErrAlreadyRunning   = errors.New("ingest: already running")
)

// ConnectionError reports a feed connection that failed to open or dropped.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return "feed " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Config controls one ingestor.
type Config struct {
	Channel string
	// RetryDelay is the fixed wait before reconnecting. Default 5s.
	RetryDelay time.Duration
	// MaxRetries is the number of consecutive reconnects one Run performs
	// before giving up with ErrRetriesExhausted. Zero escalates on the first
	// failure; callers wanting the usual bound pass DefaultMaxRetries.
	MaxRetries int
	Logger     *slog.Logger
}

// Snapshot is a point-in-time view of the ingestor for status endpoints.
type Snapshot struct {
	State          State  `json:"state"`
	SessionID      string `json:"session_id,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	LastFrameUTC   string `json:"last_frame_utc,omitempty"`
	FramesReceived uint64 `json:"frames_received"`
	Stored         uint64 `json:"stored"`
	Duplicates     uint64 `json:"duplicates"`
	Rejected       uint64 `json:"rejected"`
	Reconnects     uint64 `json:"reconnects"`
	Escalations    uint64 `json:"escalations"`
}

// Ingestor is the single writer of the history store and dedup index.
type Ingestor struct {
	cfg    Config
	feed   tracking.Feed
	store  tracking.HistoryStore
	dedup  tracking.DedupIndex
	logger *slog.Logger

	running atomic.Bool

	mu        sync.RWMutex
	state     State
	sessionID string
	lastErr   string
	lastFrame time.Time
	stats     Snapshot
}

// New creates an Ingestor.
func New(feed tracking.Feed, store tracking.HistoryStore, dedup tracking.DedupIndex, cfg Config) (*Ingestor, error) {
	if feed == nil || store == nil || dedup == nil {
		return nil, errors.New("ingest: feed, store and dedup are required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("ingest: channel is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New("ingest: max retries must not be negative")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		cfg:    cfg,
		feed:   feed,
		store:  store,
		dedup:  dedup,
		logger: logger.With("component", "ingest"),
		state:  StateDisconnected,
	}, nil
}

// Run is one supervised ingestion task. It connects, subscribes and
// processes frames in receipt order. After a failure it waits RetryDelay and
// reconnects; the retry counter resets once a session has handled a frame.
// Run returns nil when ctx is cancelled and an error wrapping
// ErrRetriesExhausted when MaxRetries consecutive retries have failed.
func (i *Ingestor) Run(ctx context.Context) error {
	if !i.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer i.running.Store(false)

	retries := 0
	for {
		if ctx.Err() != nil {
			i.setState(StateStopped, nil)
			return nil
		}

		handled, err := i.session(ctx)
		if ctx.Err() != nil {
			i.setState(StateStopped, nil)
			return nil
		}
		if handled > 0 {
			retries = 0
		}
		i.setState(StateDisconnected, err)

		if retries >= i.cfg.MaxRetries {
			metrics.EscalationsTotal.Inc()
			i.bump(func(s *Snapshot) { s.Escalations++ })
			i.logger.Error("feed retries exhausted; escalating", "retries", retries, "error", err)
			return fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, retries, err)
		}
		retries++

		i.logger.Warn("feed session ended; reconnecting",
			"error", err,
			"retry", retries,
			"max_retries", i.cfg.MaxRetries,
			"delay", i.cfg.RetryDelay)
		if !sleepCtx(ctx, i.cfg.RetryDelay) {
			i.setState(StateStopped, nil)
			return nil
		}
		i.bump(func(s *Snapshot) { s.Reconnects++ })
	}
}

// session runs one connection until it fails. It returns how many frames
// were fully handled.
func (i *Ingestor) session(ctx context.Context) (int, error) {
	sessionID := uuid.NewString()
	i.mu.Lock()
	i.sessionID = sessionID
	i.mu.Unlock()
	log := i.logger.With("session", sessionID)

	i.setState(StateConnecting, nil)
	conn, err := i.feed.Dial(ctx)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("failed").Inc()
		return 0, &ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()
	metrics.ConnectionsTotal.WithLabelValues("opened").Inc()

	// Cancellation closes the socket to unblock Receive.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.Send(ctx, tracking.NewSubscribeMessage(i.cfg.Channel)); err != nil {
		return 0, &ConnectionError{Op: "subscribe", Err: err}
	}
	i.setState(StateSubscribed, nil)
	log.Info("subscribed to feed", "channel", i.cfg.Channel)

	metrics.Connected.Set(1)
	defer metrics.Connected.Set(0)

	i.setState(StateReceiving, nil)
	handled := 0
	for {
		frame, err := conn.Receive()
		if err != nil {
			return handled, &ConnectionError{Op: "receive", Err: err}
		}
		if err := i.HandleFrame(ctx, frame); err != nil {
			log.Warn("frame processing failed; dropping session", "error", err)
			return handled, err
		}
		handled++
	}
}

// HandleFrame decodes a frame and stores it unless its fingerprint is
// already recorded. Malformed frames are dropped and reported as nil; only
// store failures are returned. The fingerprint is recorded after a
// successful append, never before.
func (i *Ingestor) HandleFrame(ctx context.Context, frame tracking.Frame) error {
	now := time.Now().UTC()
	i.bump(func(s *Snapshot) { s.FramesReceived++ })
	i.mu.Lock()
	i.lastFrame = now
	i.mu.Unlock()

	r, err := tracking.DecodeFrame(frame)
	if err != nil {
		metrics.FramesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		i.bump(func(s *Snapshot) { s.Rejected++ })
		i.logger.Debug("dropping malformed frame", "error", err, "bytes", len(frame.Data))
		return nil
	}

	fp := tracking.FingerprintOf(r)
	seen, err := i.dedup.Seen(ctx, fp)
	if err != nil {
		metrics.FramesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("check fingerprint: %w", err)
	}
	if seen {
		metrics.FramesTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		i.bump(func(s *Snapshot) { s.Duplicates++ })
		return nil
	}

	start := time.Now()
	if err := i.store.Append(ctx, r); err != nil {
		metrics.FramesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("append reading: %w", err)
	}
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())

	// If this fails the reading is stored but not marked seen; a redelivery
	// would be appended again and collapsed by the query-time pass.
	if err := i.dedup.Record(ctx, fp); err != nil {
		metrics.FramesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("record fingerprint: %w", err)
	}

	metrics.FramesTotal.WithLabelValues(metrics.OutcomeStored).Inc()
	i.bump(func(s *Snapshot) { s.Stored++ })
	return nil
}

// Running reports whether a Run call is in progress.
func (i *Ingestor) Running() bool {
	return i.running.Load()
}

// Snapshot returns the current status.
func (i *Ingestor) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := i.stats
	out.State = i.state
	out.SessionID = i.sessionID
	out.LastError = i.lastErr
	if !i.lastFrame.IsZero() {
		out.LastFrameUTC = i.lastFrame.Format(time.RFC3339Nano)
	}
	return out
}

func (i *Ingestor) setState(state State, err error) {
	i.mu.Lock()
	i.state = state
	if err != nil {
		i.lastErr = err.Error()
	} else if state == StateReceiving {
		i.lastErr = ""
	}
	i.mu.Unlock()
}

func (i *Ingestor) bump(fn func(s *Snapshot)) {
	i.mu.Lock()
	fn(&i.stats)
	i.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
