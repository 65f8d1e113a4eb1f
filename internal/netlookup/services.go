// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netlookup

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"grimm.is/dumpster/internal/errors"
)

// serviceTable maps protocol -> port -> lowercased service name.
type serviceTable map[string]map[string]string

var (
	serviceCachesMu sync.Mutex
	serviceCaches   = map[string]serviceTable{}
)

// Services returns the protocol/port-to-service-name mapping parsed from
// path, parsing it at most once per path for the lifetime of the process.
func Services(path string) (serviceTable, error) {
	serviceCachesMu.Lock()
	defer serviceCachesMu.Unlock()

	if m, ok := serviceCaches[path]; ok {
		return m, nil
	}

	m, err := parseServices(path)
	if err != nil {
		return nil, err
	}
	serviceCaches[path] = m
	return m, nil
}

// ResolveService looks up the service name for a port/protocol pair, e.g.
// ResolveService(path, "80", "tcp") -> "http". Returns "" if not found.
func ResolveService(path, port, protocol string) string {
	m, err := Services(path)
	if err != nil {
		return ""
	}
	byPort, ok := m[protocol]
	if !ok {
		return ""
	}
	return byPort[port]
}

func parseServices(path string) (serviceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "open services file %s", path)
	}
	defer f.Close()

	services := make(serviceTable)
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
		name := strings.ToLower(fields[0])
		portProto := strings.SplitN(fields[1], "/", 2)
		if len(portProto) != 2 {
			continue
		}
		port, protocol := portProto[0], portProto[1]
		if _, ok := services[protocol]; !ok {
			services[protocol] = make(map[string]string)
		}
		services[protocol][port] = name
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "read services file %s", path)
	}
	return services, nil
}
