// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"fmt"
	"net"
	"strings"
)

func ParseMAC(macStr string) ([]byte, error) {
	hw, err := net.ParseMAC(macStr)
	if err != nil {
		return nil, err
	}
	return hw, nil
}

func FormatMAC(mac []byte) string {
	if len(mac) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// SplitNFLogMAC splits the nftables-style concatenated 14-byte MAC field
// (dst[6]:src[6]:ethertype[2], colon-joined as 14 hex octets) into dst and
// src addresses. The field arrives from the MAC= parameter of a netfilter
// log line; the trailing two octets are the ethertype and are discarded.
func SplitNFLogMAC(field string) (dst, src []byte, err error) {
	octets := strings.Split(field, ":")
	if len(octets) != 14 {
		return nil, nil, fmt.Errorf("expected 14 colon-separated octets, got %d", len(octets))
	}

	dstStr := strings.Join(octets[0:6], ":")
	srcStr := strings.Join(octets[6:12], ":")

	dst, err = ParseMAC(dstStr)
	if err != nil {
		return nil, nil, fmt.Errorf("dst mac: %w", err)
	}
	src, err = ParseMAC(srcStr)
	if err != nil {
		return nil, nil, fmt.Errorf("src mac: %w", err)
	}
	return dst, src, nil
}
