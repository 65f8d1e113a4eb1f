// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nftline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/netlookup"
	"grimm.is/dumpster/internal/netutil"
)

// flagNames are the TCP/IP flags tested as whitespace-delimited barewords.
var flagNames = []string{"ACK", "FIN", "SYN", "RST", "PSH", "URG", "ECE", "ECT", "CWR", "CE", "DF"}

// flagRegexps is built once at package load: one regexp per flag name,
// matching "the name appears delimited by whitespace or
// end-of-line" per the parser contract.
var flagRegexps = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(flagNames))
	for _, f := range flagNames {
		m[f] = regexp.MustCompile(`(?:^|\s)` + f + `(?:\s|$)`)
	}
	return m
}()

// stringParamNames are the named parameters extracted as raw strings.
var stringParamNames = []string{"IN", "OUT", "MAC", "SRC", "DST", "PROTO"}

// intParamNames are the named parameters extracted as integers, decimal or
// 0x-prefixed hex.
var intParamNames = []string{"TOS", "PREC", "TTL", "ID", "SPT", "DPT", "WINDOW", "RES", "L3_LEN", "L4_LEN"}

var paramRegexps = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(stringParamNames)+len(intParamNames))
	for _, p := range append(append([]string{}, stringParamNames...), intParamNames...) {
		m[p] = regexp.MustCompile(` ` + p + `=(\S+)`)
	}
	return m
}()

// Parse turns one raw netfilter drop-log line into a validated Event, or
// reports why it could not be parsed. It performs no I/O and holds no state
// across calls.
func Parse(raw string) (*Event, error) {
	line := strings.TrimSpace(raw)

	if !strings.Contains(line, " IN=") {
		return nil, wrapParseError(line, MissingIN, "")
	}

	hostname, timestampRaw, logStatement, err := splitPreIN(line)
	if err != nil {
		return nil, err
	}

	ts, err := parseTimestamp(timestampRaw)
	if err != nil {
		return nil, wrapParseError(line, BadTimestamp, timestampRaw)
	}

	e := &Event{
		Line:         line,
		Hash:         hashLine(line),
		Timestamp:    ts,
		Hostname:     hostname,
		LogStatement: logStatement,
	}

	for _, f := range flagNames {
		if flagRegexps[f].MatchString(line) {
			setFlag(e, f)
		}
	}

	params := make(map[string]string, len(stringParamNames)+len(intParamNames))
	for name, re := range paramRegexps {
		if m := re.FindStringSubmatch(line); m != nil {
			params[name] = m[1]
		}
	}

	e.In = params["IN"]
	e.Out = params["OUT"]
	e.SRC = params["SRC"]
	e.DST = params["DST"]
	e.Proto = params["PROTO"]

	for _, name := range intParamNames {
		val, ok := params[name]
		if !ok {
			continue
		}
		n, perr := parseInt(val)
		if perr != nil {
			continue
		}
		assignIntParam(e, name, n)
	}

	if mac, ok := params["MAC"]; ok {
		dst, src, merr := netutil.SplitNFLogMAC(mac)
		if merr != nil {
			return nil, wrapParseError(line, BadMac, merr.Error())
		}
		e.DstMAC = dst
		e.SrcMAC = src
	} else {
		return nil, wrapParseError(line, BadMac, "missing MAC parameter")
	}

	if e.In == "" && e.Out == "" {
		return nil, wrapParseError(line, MissingRequiredParameter, "IN, OUT")
	}
	if e.In != "" && e.Out != "" && e.In == e.Out {
		return nil, wrapParseError(line, SelfLoop, e.In)
	}

	switch {
	case e.In != "" && e.Out == "":
		e.Direction = Inbound
	case e.Out != "" && e.In == "":
		e.Direction = Outbound
	default:
		e.Direction = Forward
	}

	return e, nil
}

// ParseWithProtocols parses raw exactly as Parse does, then resolves a
// purely-numeric PROTO field (e.g. "6") to its symbolic name (e.g. "tcp")
// via protocolsPath (typically "/etc/protocols"). A PROTO that is already
// symbolic, or that doesn't resolve, is left untouched — this repository
// never assumes numeric protocols were rewritten upstream, unlike the
// original's NetfilterLogReader, which attached a protocol table per
// reader but never actually consulted it for PROTO rewriting.
func ParseWithProtocols(raw, protocolsPath string) (*Event, error) {
	e, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if e.Proto == "" {
		return e, nil
	}
	if _, err := strconv.ParseInt(e.Proto, 10, 64); err != nil {
		return e, nil
	}

	e.Proto = netlookup.ResolveProtocol(protocolsPath, e.Proto)
	return e, nil
}

// splitPreIN extracts hostname, raw timestamp, and the log statement from
// the portion of the line preceding " IN=".
func splitPreIN(line string) (hostname, timestamp, logStatement string, err error) {
	preIN := strings.SplitN(line, "IN=", 2)[0]

	if !strings.Contains(preIN, " kernel: ") {
		return "", "", "", wrapParseError(line, MissingKernelMarker, "")
	}

	parts := strings.SplitN(preIN, " kernel: ", 2)
	front, back := parts[0], parts[1]
	logStatement = strings.TrimSpace(back)

	fields := strings.Fields(front)
	if len(fields) == 0 {
		return "", "", "", wrapParseError(line, MissingKernelMarker, "empty host prefix")
	}
	hostname = fields[len(fields)-1]
	timestamp = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(front), hostname))

	return hostname, timestamp, logStatement, nil
}

// parseTimestamp accepts a verbatim Unix-seconds integer, or falls back to
// "Mmm DD HH:MM:SS" combined with the current year, matching the log
// format's lack of a year field.
func parseTimestamp(raw string) (int64, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}

	year := time.Now().Year()
	t, err := time.Parse("2006 Jan _2 15:04:05", fmt.Sprintf("%d %s", year, raw))
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

func parseInt(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseInt(s[2:], 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

func setFlag(e *Event, name string) {
	switch name {
	case "ACK":
		e.ACK = true
	case "FIN":
		e.FIN = true
	case "SYN":
		e.SYN = true
	case "RST":
		e.RST = true
	case "PSH":
		e.PSH = true
	case "URG":
		e.URG = true
	case "ECE":
		e.ECE = true
	case "ECT":
		e.ECT = true
	case "CWR":
		e.CWR = true
	case "CE":
		e.CE = true
	case "DF":
		e.DF = true
	}
}

func assignIntParam(e *Event, name string, n int64) {
	switch name {
	case "TOS":
		e.TOS = &n
	case "PREC":
		e.Prec = &n
	case "TTL":
		e.TTL = &n
	case "ID":
		e.ID = &n
	case "SPT":
		e.SPT = uint16(n)
	case "DPT":
		e.DPT = uint16(n)
	case "WINDOW":
		e.Window = &n
	case "RES":
		e.Res = &n
	case "L3_LEN":
		e.L3Len = &n
	case "L4_LEN":
		e.L4Len = &n
	}
}

func hashLine(line string) string {
	sum := sha256.Sum256([]byte(line))
	return hex.EncodeToString(sum[:])
}

func wrapParseError(line string, kind ParseErrorKind, detail string) error {
	pe := &ParseError{Line: line, Kind: kind, Detail: detail}
	return errors.Attr(errors.Wrap(pe, errors.KindParse, pe.Error()), "parse_kind", kind.String())
}
