// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the counters an operator scrapes to watch the
// drop-log pipeline: how many lines parsed, how many failed to parse, and
// how many blocks the policy engine installed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every counter the daemon exports.
type Registry struct {
	EventsParsed      prometheus.Counter
	ParseErrors       prometheus.Counter
	EventsPersisted   prometheus.Counter
	DuplicateEvents   prometheus.Counter
	TimedBlocks       prometheus.Counter
	TimedBlockRenewed prometheus.Counter
	PermanentBlocks   prometheus.Counter
	FirewallErrors    prometheus.Counter
}

// NewRegistry constructs a Registry with every counter initialized and
// registered against reg. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the process-wide default registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		EventsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_events_parsed_total",
			Help: "Total number of drop-log lines successfully parsed.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_parse_errors_total",
			Help: "Total number of drop-log lines that failed to parse.",
		}),
		EventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_events_persisted_total",
			Help: "Total number of parsed events written to the event store.",
		}),
		DuplicateEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_duplicate_events_total",
			Help: "Total number of events rejected as duplicates of an already-stored hash.",
		}),
		TimedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_timed_blocks_total",
			Help: "Total number of new timed blocks installed.",
		}),
		TimedBlockRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_timed_block_renewals_total",
			Help: "Total number of existing timed blocks refreshed.",
		}),
		PermanentBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_permanent_blocks_total",
			Help: "Total number of sources promoted to a permanent block.",
		}),
		FirewallErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dumpster_firewall_errors_total",
			Help: "Total number of nftables operations that failed.",
		}),
	}

	reg.MustRegister(
		r.EventsParsed,
		r.ParseErrors,
		r.EventsPersisted,
		r.DuplicateEvents,
		r.TimedBlocks,
		r.TimedBlockRenewed,
		r.PermanentBlocks,
		r.FirewallErrors,
	)

	return r
}
