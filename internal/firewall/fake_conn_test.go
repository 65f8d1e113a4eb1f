// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"fmt"
	"net"

	"github.com/google/nftables"
	"golang.org/x/sys/unix"
)

// fakeConn is an in-memory NFTablesConn used by controller tests in place
// of a real netlink socket — the "fake/test transport" spec.md's §1 carves
// out explicitly.
type fakeConn struct {
	tables map[string]*nftables.Table
	chains []*nftables.Chain
	rules  []*nftables.Rule
	sets   map[string]*nftables.Set
	elems  map[string]map[string]nftables.SetElement // set name -> key string -> element

	staged []stagedOp
}

type stagedOp struct {
	add    bool
	setKey string
	elem   nftables.SetElement
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		tables: make(map[string]*nftables.Table),
		sets:   make(map[string]*nftables.Set),
		elems:  make(map[string]map[string]nftables.SetElement),
	}
}

func (f *fakeConn) AddTable(t *nftables.Table) *nftables.Table {
	if existing, ok := f.tables[t.Name]; ok {
		return existing
	}
	f.tables[t.Name] = t
	return t
}

func (f *fakeConn) AddChain(c *nftables.Chain) *nftables.Chain {
	for _, existing := range f.chains {
		if existing.Name == c.Name {
			return existing
		}
	}
	f.chains = append(f.chains, c)
	return c
}

func (f *fakeConn) AddRule(r *nftables.Rule) *nftables.Rule {
	f.rules = append(f.rules, r)
	return r
}

func (f *fakeConn) AddSet(s *nftables.Set, elems []nftables.SetElement) error {
	if _, ok := f.sets[s.Name]; ok {
		return nil
	}
	f.sets[s.Name] = s
	f.elems[s.Name] = make(map[string]nftables.SetElement)
	for _, e := range elems {
		f.elems[s.Name][net.IP(e.Key).String()] = e
	}
	return nil
}

func (f *fakeConn) SetAddElements(s *nftables.Set, elems []nftables.SetElement) error {
	for _, e := range elems {
		f.staged = append(f.staged, stagedOp{add: true, setKey: s.Name, elem: e})
	}
	return nil
}

func (f *fakeConn) SetDeleteElements(s *nftables.Set, elems []nftables.SetElement) error {
	for _, e := range elems {
		f.staged = append(f.staged, stagedOp{add: false, setKey: s.Name, elem: e})
	}
	return nil
}

func (f *fakeConn) GetSetElements(s *nftables.Set) ([]nftables.SetElement, error) {
	m, ok := f.elems[s.Name]
	if !ok {
		return nil, fmt.Errorf("set %s not found", s.Name)
	}
	out := make([]nftables.SetElement, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeConn) ListChains() ([]*nftables.Chain, error) {
	return f.chains, nil
}

func (f *fakeConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	var out []*nftables.Rule
	for _, r := range f.rules {
		if r.Chain == c {
			out = append(out, r)
		}
	}
	return out, nil
}

// Flush applies every staged operation, failing the whole batch with
// unix.EEXIST if any staged add targets a key already present — mirroring
// the kernel's own all-or-nothing netlink batch semantics closely enough
// for the rotation protocol's conflict path to be exercised.
func (f *fakeConn) Flush() error {
	for _, op := range f.staged {
		key := net.IP(op.elem.Key).String()
		set, ok := f.elems[op.setKey]
		if !ok {
			continue
		}
		if op.add {
			if _, exists := set[key]; exists {
				f.staged = nil
				return unix.EEXIST
			}
		}
	}

	for _, op := range f.staged {
		key := net.IP(op.elem.Key).String()
		set := f.elems[op.setKey]
		if op.add {
			set[key] = op.elem
		} else {
			delete(set, key)
		}
	}
	f.staged = nil
	return nil
}
