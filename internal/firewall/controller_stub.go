// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package firewall

import (
	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/logging"
)

// NewController is unavailable off Linux: nftables is a Linux kernel
// subsystem reachable only over its netlink family on this OS.
func NewController(logger *logging.Logger) (*Controller, error) {
	return nil, errors.New(errors.KindTransport, "nftables is only supported on linux")
}
