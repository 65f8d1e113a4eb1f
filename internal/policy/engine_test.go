// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"testing"
	"time"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/nftline"
)

// fakeStore is a minimal in-memory EventStore used to exercise the
// decision tree without a real database.
type fakeStore struct {
	events    map[string]bool
	recent    map[string]int
	timedOut  map[string]bool
	bad       map[string]bool
	invalid   []string
	timeouts  []string
	bads      []string
	commits   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   make(map[string]bool),
		recent:   make(map[string]int),
		timedOut: make(map[string]bool),
		bad:      make(map[string]bool),
	}
}

func (f *fakeStore) InsertEvent(e *nftline.Event) error {
	if f.events[e.Hash] {
		return errors.New(errors.KindConflict, "event exists")
	}
	f.events[e.Hash] = true
	return nil
}

func (f *fakeStore) RecentFrom(src string, maxAgeSeconds int64) (int, error) {
	return f.recent[src], nil
}

func (f *fakeStore) InsertInvalid(line string) error {
	f.invalid = append(f.invalid, line)
	return nil
}

func (f *fakeStore) InsertTimeout(ip string) error {
	f.timedOut[ip] = true
	f.timeouts = append(f.timeouts, ip)
	return nil
}

func (f *fakeStore) IsTimedOut(ip string) (bool, error) {
	return f.timedOut[ip], nil
}

func (f *fakeStore) InsertBad(ip string) error {
	f.bad[ip] = true
	f.bads = append(f.bads, ip)
	return nil
}

func (f *fakeStore) ListBad() ([]string, error) {
	var out []string
	for ip := range f.bad {
		out = append(out, ip)
	}
	return out, nil
}

func (f *fakeStore) Commit() error { f.commits++; return nil }
func (f *fakeStore) Close() error  { return nil }

// fakeFirewall is a minimal in-memory FirewallController.
type fakeFirewall struct {
	timedOut  []string
	permanent []string
}

func (f *fakeFirewall) TimeOut(ip string, seconds time.Duration) error {
	f.timedOut = append(f.timedOut, ip)
	return nil
}

func (f *fakeFirewall) BlockPermanent(ips ...string) error {
	f.permanent = append(f.permanent, ips...)
	return nil
}

func newTestEngine() (*Engine, *fakeStore, *fakeFirewall) {
	store := newFakeStore()
	fw := &fakeFirewall{}
	cfg := DefaultConfig()
	cfg.RepeatCount = 3
	cfg.BadIPThreshold = 5
	e := New(cfg, store, fw, nil, nil, nil)
	return e, store, fw
}

func evt(hash, src string, dir nftline.Direction) *nftline.Event {
	return &nftline.Event{Hash: hash, SRC: src, Direction: dir}
}

func TestHandleEventFirstSeenTakesNoAction(t *testing.T) {
	e, store, fw := newTestEngine()
	store.recent["1.2.3.4"] = 1

	e.HandleEvent(evt("h1", "1.2.3.4", nftline.Inbound))

	if len(fw.timedOut) != 0 || len(fw.permanent) != 0 {
		t.Fatalf("expected no firewall action on first sighting, got timedOut=%v permanent=%v", fw.timedOut, fw.permanent)
	}
	if !store.events["h1"] {
		t.Error("expected event to be persisted")
	}
}

func TestHandleEventDuplicateIsSwallowed(t *testing.T) {
	e, store, fw := newTestEngine()
	store.events["h1"] = true
	store.recent["1.2.3.4"] = 1

	e.HandleEvent(evt("h1", "1.2.3.4", nftline.Inbound))

	if len(fw.timedOut) != 0 || len(fw.permanent) != 0 {
		t.Fatalf("duplicate event should never trigger firewall action")
	}
}

func TestHandleEventInstallsTimedBlockAtRepeatCount(t *testing.T) {
	e, store, fw := newTestEngine()
	store.recent["1.2.3.4"] = 3

	e.HandleEvent(evt("h1", "1.2.3.4", nftline.Inbound))

	if len(fw.timedOut) != 1 || fw.timedOut[0] != "1.2.3.4" {
		t.Fatalf("expected a timed block, got %v", fw.timedOut)
	}
	if !store.timedOut["1.2.3.4"] {
		t.Error("expected ip to be recorded as timed out")
	}
}

func TestHandleEventIgnoresDirectionNotScanned(t *testing.T) {
	e, store, fw := newTestEngine()
	store.recent["1.2.3.4"] = 3

	e.HandleEvent(evt("h1", "1.2.3.4", nftline.Outbound))

	if len(fw.timedOut) != 0 {
		t.Fatalf("outbound traffic is not in ScanDirections, expected no block, got %v", fw.timedOut)
	}
}

func TestHandleEventRefreshesExistingTimeout(t *testing.T) {
	e, store, fw := newTestEngine()
	store.recent["1.2.3.4"] = 1
	store.timedOut["1.2.3.4"] = true

	e.HandleEvent(evt("h1", "1.2.3.4", nftline.Inbound))

	if len(fw.timedOut) != 1 {
		t.Fatalf("expected refresh of existing timeout, got %v", fw.timedOut)
	}
	if len(store.timeouts) != 0 {
		t.Error("refreshing an existing timeout should not insert a new timeout record")
	}
}

func TestHandleEventPromotesToBadAtThreshold(t *testing.T) {
	e, store, fw := newTestEngine()
	store.recent["6.6.6.6"] = 5

	e.HandleEvent(evt("h1", "6.6.6.6", nftline.Inbound))

	if len(fw.permanent) != 1 || fw.permanent[0] != "6.6.6.6" {
		t.Fatalf("expected permanent block at threshold, got %v", fw.permanent)
	}
	if !store.bad["6.6.6.6"] {
		t.Error("expected ip to be recorded as bad")
	}
	if len(fw.timedOut) != 0 {
		t.Error("a bad ip should be permanently blocked, not timed")
	}
}

func TestHealthyWithNoTailersIsTrivallyHealthy(t *testing.T) {
	e, _, _ := newTestEngine()
	if !e.Healthy() {
		t.Error("an engine with zero tailers should report healthy")
	}
}

func TestRunReinstallsBadIPsAtBoot(t *testing.T) {
	e, store, fw := newTestEngine()
	store.bad["7.7.7.7"] = true

	if err := e.reinstallBadIPs(); err != nil {
		t.Fatalf("reinstallBadIPs: %v", err)
	}

	if len(fw.permanent) != 1 || fw.permanent[0] != "7.7.7.7" {
		t.Fatalf("expected 7.7.7.7 reinstalled, got %v", fw.permanent)
	}
}
