// Package health runs periodic self-checks against the fact log: store
// reachability and determinism of the commitment derivation.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/factlog-protocol/factlog/internal/factlog"
)

// Config holds self-check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Checker periodically probes the fact log's backing store and re-derives
// the current commitment twice, flagging any divergence. Determinism of
// that derivation is the invariant extension proofs depend on, so a
// divergence is a serious defect (or store corruption) worth alerting on.
type Checker struct {
	log       *factlog.FactLog
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu       sync.Mutex
	lastOK   bool
	lastSeen time.Time
}

// New creates a Checker.
func New(log *factlog.FactLog, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Checker{log: log, cfg: cfg, logger: logger}
}

// OnMetrics sets an optional callback invoked after every probe.
func (c *Checker) OnMetrics(fn MetricsRecordFunc) { c.onMetrics = fn }

// Start runs the probe loop until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	c.logger.Info("health checker started",
		zap.Duration("interval", c.cfg.CheckInterval))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("health checker stopped")
			return
		case <-ticker.C:
			ok := c.Probe(ctx)
			if c.onMetrics != nil {
				c.onMetrics(ok)
			}
		}
	}
}

// Probe runs one self-check and reports its result.
func (c *Checker) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	ok := c.probe(ctx)

	c.mu.Lock()
	c.lastOK = ok
	c.lastSeen = time.Now()
	c.mu.Unlock()
	return ok
}

func (c *Checker) probe(ctx context.Context) bool {
	// Store reachability: the flag read hits the backing store.
	if _, err := c.log.Enabled(ctx); err != nil {
		c.logger.Warn("health probe: store unreachable", zap.Error(err))
		return false
	}

	// Determinism: two independent derivations must agree.
	first, ok, err := c.log.Commitment(ctx)
	if err != nil {
		c.logger.Warn("health probe: commitment failed", zap.Error(err))
		return false
	}
	if !ok {
		// Empty log: nothing to cross-check.
		return true
	}
	second, ok, err := c.log.Commitment(ctx)
	if err != nil || !ok {
		c.logger.Warn("health probe: recomputation failed", zap.Error(err))
		return false
	}
	if first != second {
		c.logger.Error("health probe: commitment derivation diverged",
			zap.String("first", first),
			zap.String("second", second),
		)
		return false
	}
	return true
}

// LastResult returns the most recent probe outcome and when it ran.
func (c *Checker) LastResult() (ok bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOK, c.lastSeen
}
