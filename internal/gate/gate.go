// Package gate bounds the number of in-flight audits and tracked sessions,
// queueing overflow with its own timeout and evicting idle sessions on an
// interval.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/diag"
)

// Defaults for the gate's resource bounds.
const (
	DefaultMaxConcurrentAudits   = 10
	DefaultMaxConcurrentSessions = 50
	DefaultQueueTimeout          = 30 * time.Second
	DefaultCleanupInterval       = time.Hour
	DefaultMaxSessionAge         = 24 * time.Hour
)

// Evictor removes idle sessions; the session store satisfies this.
type Evictor interface {
	EvictIdle(maxAge time.Duration) ([]string, error)
}

// Options configures the gate.
type Options struct {
	MaxConcurrentAudits   int
	MaxConcurrentSessions int
	QueueTimeout          time.Duration
	CleanupInterval       time.Duration
	MaxSessionAge         time.Duration
}

func (o *Options) sanitize() {
	if o.MaxConcurrentAudits <= 0 {
		o.MaxConcurrentAudits = DefaultMaxConcurrentAudits
	}
	if o.MaxConcurrentSessions <= 0 {
		o.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	if o.QueueTimeout <= 0 {
		o.QueueTimeout = DefaultQueueTimeout
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.MaxSessionAge <= 0 {
		o.MaxSessionAge = DefaultMaxSessionAge
	}
}

// Gate is the concurrency limiter wrapped around the audit engine.
type Gate struct {
	opts  Options
	slots chan struct{}

	mu       sync.Mutex
	sessions map[string]int // session id → in-flight audits

	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a gate. Zero option fields get defaults.
func New(opts Options, logger *zap.Logger) *Gate {
	opts.sanitize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		opts:     opts,
		slots:    make(chan struct{}, opts.MaxConcurrentAudits),
		sessions: make(map[string]int),
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Acquire claims an audit slot for the session, waiting up to the queue
// timeout. Overflow of either bound surfaces as a recoverable busy
// diagnostic carrying a retry-after hint. The caller must Release exactly
// once per successful Acquire.
func (g *Gate) Acquire(ctx context.Context, sessionID string) error {
	if err := g.trackSession(sessionID); err != nil {
		return err
	}

	select {
	case g.slots <- struct{}{}:
		return nil
	default:
	}

	g.logger.Debug("audit slots exhausted, queueing",
		zap.String("session", sessionID),
		zap.Duration("queueTimeout", g.opts.QueueTimeout))

	timer := time.NewTimer(g.opts.QueueTimeout)
	defer timer.Stop()
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-timer.C:
		g.untrackSession(sessionID)
		return diag.New(diag.CategoryBusy,
			fmt.Sprintf("no audit slot available within %s", g.opts.QueueTimeout)).
			WithRetryAfter(g.opts.QueueTimeout).
			WithSuggestions("retry after the indicated delay", "reduce concurrent submissions")
	case <-ctx.Done():
		g.untrackSession(sessionID)
		return diag.Wrap(diag.CategoryInternal, "cancelled while waiting for audit slot", ctx.Err())
	}
}

// Release returns the slot claimed by Acquire.
func (g *Gate) Release(sessionID string) {
	<-g.slots
	g.untrackSession(sessionID)
}

func (g *Gate) trackSession(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessions[sessionID] == 0 && len(g.sessions) >= g.opts.MaxConcurrentSessions {
		return diag.New(diag.CategoryBusy,
			fmt.Sprintf("session limit reached (%d active)", len(g.sessions))).
			WithRetryAfter(g.opts.CleanupInterval).
			WithSuggestions("wait for idle sessions to be evicted")
	}
	g.sessions[sessionID]++
	return nil
}

func (g *Gate) untrackSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID]--
	if g.sessions[sessionID] <= 0 {
		delete(g.sessions, sessionID)
	}
}

// InFlight reports the number of audits currently holding slots.
func (g *Gate) InFlight() int {
	return len(g.slots)
}

// StartEviction launches the idle-session eviction loop. It runs until
// Close is called or ctx is cancelled.
func (g *Gate) StartEviction(ctx context.Context, evictor Evictor) {
	go func() {
		ticker := time.NewTicker(g.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				evicted, err := evictor.EvictIdle(g.opts.MaxSessionAge)
				if err != nil {
					g.logger.Warn("session eviction failed", zap.Error(err))
					continue
				}
				if len(evicted) > 0 {
					g.logger.Info("session eviction pass complete", zap.Strings("evicted", evicted))
				}
			case <-g.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the eviction loop.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}
