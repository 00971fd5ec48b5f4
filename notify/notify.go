// Package notify delivers terminal results to external sinks.
//
// Information Hiding:
// - Each connector's wire format is private to its sink
// - Rate limiting and the per-run delivery cap live in Notifier,
//   not in the sinks
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Delivery is the outcome of one sink call.
type Delivery struct {
	Connector string
	Success   bool
	Delivered bool
	Err       error
}

// Sink delivers one message to one connector.
type Sink interface {
	// ID names the connector for logs and delivery reports.
	ID() string
	// Send delivers the message. meta carries run metadata (run id,
	// status, step count).
	Send(ctx context.Context, message string, meta map[string]string) error
}

// Notifier fans a message out to its sinks, rate-limited and capped to
// a small fixed number of deliveries per run.
type Notifier struct {
	sinks   []Sink
	limiter *rate.Limiter
	logger  *zap.Logger

	mu        sync.Mutex
	perRun    map[string]int
	runBudget int
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

// WithRunBudget caps deliveries per run.
func WithRunBudget(budget int) Option {
	return func(n *Notifier) {
		if budget > 0 {
			n.runBudget = budget
		}
	}
}

// WithLimiter replaces the default rate limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(n *Notifier) { n.limiter = limiter }
}

// NewNotifier creates a notifier over the given sinks. Defaults: 1
// delivery per second with a burst of 3, at most 5 deliveries per run.
func NewNotifier(sinks []Sink, opts ...Option) *Notifier {
	n := &Notifier{
		sinks:     sinks,
		limiter:   rate.NewLimiter(rate.Limit(1), 3),
		logger:    zap.NewNop(),
		perRun:    make(map[string]int),
		runBudget: 5,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers the message to every sink. Returns the first error;
// individual sink failures do not stop the fan-out. meta["run_id"]
// scopes the per-run cap.
func (n *Notifier) Notify(ctx context.Context, message string, meta map[string]string) error {
	runID := meta["run_id"]
	if !n.admit(runID) {
		n.logger.Warn("notification dropped: per-run budget exhausted",
			zap.String("run_id", runID),
			zap.Int("budget", n.runBudget))
		return fmt.Errorf("notification budget of %d exhausted for run %s", n.runBudget, runID)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification rate limit wait: %w", err)
	}

	var firstErr error
	for _, d := range n.NotifyAll(ctx, message, meta) {
		if d.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sink %s: %w", d.Connector, d.Err)
		}
	}
	return firstErr
}

// NotifyAll delivers to every sink and reports each outcome.
func (n *Notifier) NotifyAll(ctx context.Context, message string, meta map[string]string) []Delivery {
	deliveries := make([]Delivery, 0, len(n.sinks))
	for _, sink := range n.sinks {
		err := sink.Send(ctx, message, meta)
		deliveries = append(deliveries, Delivery{
			Connector: sink.ID(),
			Success:   err == nil,
			Delivered: err == nil,
			Err:       err,
		})
		if err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("connector", sink.ID()),
				zap.Error(err))
		} else {
			n.logger.Debug("notification delivered", zap.String("connector", sink.ID()))
		}
	}
	return deliveries
}

func (n *Notifier) admit(runID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.perRun[runID] >= n.runBudget {
		return false
	}
	n.perRun[runID]++
	return true
}
