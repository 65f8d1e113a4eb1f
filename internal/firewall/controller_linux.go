// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package firewall

import (
	"github.com/google/nftables"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/logging"
)

// NewController dials the kernel's netlink nftables socket and returns a
// Controller ready for EnsureInitialized. This is the one production
// transport this repository ships.
func NewController(logger *logging.Logger) (*Controller, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransport, "open nftables netlink connection")
	}
	return NewControllerWithConn(NewRealNFTablesConn(conn), logger), nil
}
