// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package policy is the PolicyEngine: the supervisor loop that drains
// parsed events from every configured log tailer and decides, per event,
// whether to persist only, install a timed block, extend one, or promote a
// source to a permanent block.
package policy

import (
	"time"

	"grimm.is/dumpster/internal/nftline"
)

// Config holds the five tunable thresholds the decision tree consults.
type Config struct {
	// RepeatPeriod is the age window for counting recent drops from the
	// same source.
	RepeatPeriod time.Duration
	// RepeatCount is the number of distinct drops within RepeatPeriod
	// required to trigger a timed block.
	RepeatCount int
	// Timeout is the length of each timed block.
	Timeout time.Duration
	// BadIPThreshold is the number of drops within RepeatPeriod required
	// to promote a source to a permanent block.
	BadIPThreshold int
	// ScanDirections lists which directions are eligible for timed
	// blocks.
	ScanDirections []nftline.Direction
}

// DefaultConfig mirrors the defaults named in the configuration contract.
func DefaultConfig() Config {
	return Config{
		RepeatPeriod:   300 * time.Second,
		RepeatCount:    3,
		Timeout:        900 * time.Second,
		BadIPThreshold: 25,
		ScanDirections: []nftline.Direction{nftline.Inbound},
	}
}

func (c Config) directionEligible(d nftline.Direction) bool {
	for _, sd := range c.ScanDirections {
		if sd == d {
			return true
		}
	}
	return false
}
