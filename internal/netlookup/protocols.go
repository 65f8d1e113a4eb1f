// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netlookup parses /etc/protocols and /etc/services into frozen,
// process-scope maps. These are pure static dictionaries used only to
// resolve a numeric PROTO value for display; they are never written to.
// Caches are keyed by file path and initialized once per path, mirroring the
// process-wide class-level memoization of the original implementation.
package netlookup

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"grimm.is/dumpster/internal/errors"
)

var (
	protocolCachesMu sync.Mutex
	protocolCaches   = map[string]map[string]string{}
)

// Protocols returns the number-to-name mapping parsed from path, parsing it
// at most once per path for the lifetime of the process.
func Protocols(path string) (map[string]string, error) {
	protocolCachesMu.Lock()
	defer protocolCachesMu.Unlock()

	if m, ok := protocolCaches[path]; ok {
		return m, nil
	}

	m, err := parseProtocols(path)
	if err != nil {
		return nil, err
	}
	protocolCaches[path] = m
	return m, nil
}

// ResolveProtocol maps a numeric protocol string (as found in a PROTO=
// parameter) to its symbolic name using path's table. If name is not purely
// numeric, or has no entry, name is returned unchanged — symbolic protocol
// names are never rewritten.
func ResolveProtocol(path, name string) string {
	m, err := Protocols(path)
	if err != nil {
		return name
	}
	if resolved, ok := m[name]; ok {
		return resolved
	}
	return name
}

func parseProtocols(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "open protocols file %s", path)
	}
	defer f.Close()

	protocols := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, number := fields[0], fields[1]
		protocols[number] = name
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "read protocols file %s", path)
	}
	return protocols, nil
}
