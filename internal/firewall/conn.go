// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall is the FirewallController: it owns a named table, one
// chain, and two rotating address sets on the host's nftables packet
// filter, reachable over netlink via github.com/google/nftables rather than
// shelling out to the nft binary.
package firewall

import "github.com/google/nftables"

// NFTablesConn is the subset of *nftables.Conn the controller depends on.
// Tests inject an in-memory fake; production wires the real netlink
// connection via NewController (see controller_linux.go).
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	AddSet(s *nftables.Set, elems []nftables.SetElement) error
	SetAddElements(s *nftables.Set, elems []nftables.SetElement) error
	SetDeleteElements(s *nftables.Set, elems []nftables.SetElement) error
	GetSetElements(s *nftables.Set) ([]nftables.SetElement, error)
	ListChains() ([]*nftables.Chain, error)
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

// realConn adapts *nftables.Conn to NFTablesConn; it is the identity
// wrapper, kept as its own type so NewController's signature stays stable if
// the injected connection ever needs decoration (retry, rate limiting).
type realConn struct {
	*nftables.Conn
}

// NewRealNFTablesConn wraps an established netlink connection.
func NewRealNFTablesConn(conn *nftables.Conn) NFTablesConn {
	return &realConn{Conn: conn}
}
