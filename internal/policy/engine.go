// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"context"
	"sync/atomic"
	"time"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/logging"
	"grimm.is/dumpster/internal/logtail"
	"grimm.is/dumpster/internal/metrics"
	"grimm.is/dumpster/internal/nftline"
)

// EventStore is the persistence surface the engine mutates. *store.Store
// satisfies it; tests supply a smaller fake.
type EventStore interface {
	InsertEvent(e *nftline.Event) error
	RecentFrom(src string, maxAgeSeconds int64) (int, error)
	InsertInvalid(line string) error
	InsertTimeout(ip string) error
	IsTimedOut(ip string) (bool, error)
	InsertBad(ip string) error
	ListBad() ([]string, error)
	Commit() error
	Close() error
}

// FirewallController is the kernel-mutation surface the engine drives.
// *firewall.Controller satisfies it.
type FirewallController interface {
	TimeOut(ip string, seconds time.Duration) error
	BlockPermanent(ips ...string) error
}

// Engine is the PolicyEngine (the repository's "Dumpster"). It owns the
// asynchronous supervisor loop: one tailer goroutine per configured log
// file, and a single goroutine draining every tailer's queues, the only
// mutator of store and firewall.
type Engine struct {
	cfg     Config
	store   EventStore
	fw      FirewallController
	metrics *metrics.Registry
	logger  *logging.Logger
	tailers []*logtail.Tailer

	started    bool
	liveTailer int32
}

// New builds an Engine. tailers must already be constructed (one per
// configured log file); Run takes ownership of starting them. reg may be
// nil, in which case no counters are incremented.
func New(cfg Config, store EventStore, fw FirewallController, tailers []*logtail.Tailer, reg *metrics.Registry, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Engine{cfg: cfg, store: store, fw: fw, tailers: tailers, metrics: reg, logger: logger}
}

// Healthy reports whether every spawned tailer goroutine is still running.
// It implements httpd.HealthChecker.
func (e *Engine) Healthy() bool {
	return atomic.LoadInt32(&e.liveTailer) == int32(len(e.tailers))
}

// Run executes the supervisor loop until ctx is cancelled: it spawns one
// goroutine per tailer, re-installs every known-bad IP's permanent block,
// then repeatedly drains every tailer's event and invalid-line channels,
// committing the store after each drain pass. On cancellation it performs
// one final drain and commit before returning.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.reinstallBadIPs(); err != nil {
		e.logger.Error("failed to reinstall permanent blocks at boot", "error", err)
	}

	atomic.StoreInt32(&e.liveTailer, int32(len(e.tailers)))

	tailerDone := make(chan struct{}, len(e.tailers))
	for _, tl := range e.tailers {
		tl := tl
		go func() {
			if err := tl.Run(ctx); err != nil {
				e.logger.Error("tailer exited", "label", tl.Label, "path", tl.Path, "error", err)
				atomic.AddInt32(&e.liveTailer, -1)
			}
			tailerDone <- struct{}{}
		}()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drainOnce()
			if err := e.store.Commit(); err != nil {
				e.logger.Error("final commit failed", "error", err)
			}
			return nil
		case <-ticker.C:
			e.drainOnce()
			if !e.started {
				e.started = true
			}
		}
	}
}

// drainOnce empties every tailer's event queue via HandleEvent, then every
// tailer's invalid-line queue into the store, then commits if dirty.
func (e *Engine) drainOnce() {
	for _, tl := range e.tailers {
		e.drainEvents(tl)
	}
	for _, tl := range e.tailers {
		e.drainInvalid(tl)
	}

	if err := e.store.Commit(); err != nil {
		e.logger.Error("commit failed", "error", err)
	}
}

func (e *Engine) drainEvents(tl *logtail.Tailer) {
	for {
		select {
		case ev := <-tl.Events:
			e.HandleEvent(ev)
			continue
		default:
		}
		break
	}
}

func (e *Engine) drainInvalid(tl *logtail.Tailer) {
	for {
		select {
		case line := <-tl.Invalid:
			if err := e.store.InsertInvalid(line); err != nil {
				e.logger.Error("failed to archive invalid line", "error", err)
			}
			continue
		default:
		}
		break
	}
}

// HandleEvent implements the repeat-offender decision tree. Any failure is
// logged and swallowed: one bad event never stops the pipeline.
func (e *Engine) HandleEvent(ev *nftline.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic handling event recovered", "panic", r, "src", ev.SRC)
		}
	}()

	if err := e.store.InsertEvent(ev); err != nil {
		if errors.IsConflict(err) {
			if e.metrics != nil {
				e.metrics.DuplicateEvents.Inc()
			}
			if e.started {
				e.logger.Warn("duplicate event", "hash", ev.Hash, "src", ev.SRC)
			} else {
				e.logger.Debug("duplicate event during startup backlog", "hash", ev.Hash, "src", ev.SRC)
			}
			return
		}
		e.logger.Error("failed to insert event", "error", err)
		return
	}
	if e.metrics != nil {
		e.metrics.EventsPersisted.Inc()
	}

	n, err := e.store.RecentFrom(ev.SRC, int64(e.cfg.RepeatPeriod.Seconds()))
	if err != nil {
		e.logger.Error("failed to count recent events", "error", err)
		return
	}

	switch {
	case n >= e.cfg.BadIPThreshold:
		if err := e.fw.BlockPermanent(ev.SRC); err != nil {
			e.logger.Error("failed to install permanent block", "src", ev.SRC, "error", err)
			if e.metrics != nil {
				e.metrics.FirewallErrors.Inc()
			}
			return
		}
		if e.metrics != nil {
			e.metrics.PermanentBlocks.Inc()
		}
		if err := e.store.InsertBad(ev.SRC); err != nil {
			e.logger.Error("failed to record bad ip", "src", ev.SRC, "error", err)
		}

	default:
		timedOut, err := e.store.IsTimedOut(ev.SRC)
		if err != nil {
			e.logger.Error("failed to check timed-out status", "error", err)
			return
		}
		if timedOut {
			if err := e.fw.TimeOut(ev.SRC, e.cfg.Timeout); err != nil {
				e.logger.Error("failed to refresh timed block", "src", ev.SRC, "error", err)
				if e.metrics != nil {
					e.metrics.FirewallErrors.Inc()
				}
				return
			}
			if e.metrics != nil {
				e.metrics.TimedBlockRenewed.Inc()
			}
			return
		}

		if e.cfg.directionEligible(ev.Direction) && n >= e.cfg.RepeatCount {
			if err := e.fw.TimeOut(ev.SRC, e.cfg.Timeout); err != nil {
				e.logger.Error("failed to install timed block", "src", ev.SRC, "error", err)
				if e.metrics != nil {
					e.metrics.FirewallErrors.Inc()
				}
				return
			}
			if e.metrics != nil {
				e.metrics.TimedBlocks.Inc()
			}
			if err := e.store.InsertTimeout(ev.SRC); err != nil {
				e.logger.Error("failed to record timed-out ip", "src", ev.SRC, "error", err)
			}
		}
	}
}

func (e *Engine) reinstallBadIPs() error {
	ips, err := e.store.ListBad()
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return nil
	}
	return e.fw.BlockPermanent(ips...)
}
