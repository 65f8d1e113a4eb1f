// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logtail is the LogTailer: it follows an append-only netfilter
// drop-log file from byte zero, parses each line as it appears, and
// delivers the result on one of two bounded channels. It does not attempt
// inode-based rotation detection — on rotation the operator restarts the
// process, the repository's explicit operational model.
package logtail

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/logging"
	"grimm.is/dumpster/internal/metrics"
	"grimm.is/dumpster/internal/nftline"
)

const pollInterval = 100 * time.Millisecond

// eventQueueSize and invalidQueueSize bound the channels a Tailer writes
// to, giving the supervisor backpressure against a policy goroutine that
// falls behind.
const (
	eventQueueSize   = 256
	invalidQueueSize = 256
)

// Tailer is the LogTailer for a single configured log file.
type Tailer struct {
	Label string
	Path  string

	// ProtocolsPath, if set, is passed to nftline.ParseWithProtocols so a
	// purely-numeric PROTO field is resolved to its symbolic name. Left
	// empty, lines are parsed with the plain, I/O-free nftline.Parse.
	ProtocolsPath string

	// Metrics, if set, is incremented for every parsed and rejected line.
	Metrics *metrics.Registry

	Events  chan *nftline.Event
	Invalid chan string

	logger *logging.Logger
	reload chan struct{}
}

// New constructs a Tailer for path. It does not open the file; Run does,
// and fails immediately if the file is missing or not a regular file.
func New(label, path string, logger *logging.Logger) *Tailer {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Tailer{
		Label:   label,
		Path:    path,
		Events:  make(chan *nftline.Event, eventQueueSize),
		Invalid: make(chan string, invalidQueueSize),
		logger:  logger,
		reload:  make(chan struct{}, 1),
	}
}

// Reload signals the running Tailer that a reload hint (SIGUSR1) was
// received. The baseline behavior is a log-only notification; it does not
// seek the file or reopen it.
func (t *Tailer) Reload() {
	select {
	case t.reload <- struct{}{}:
	default:
	}
}

// Run opens Path and follows it until ctx is cancelled, parsing each line
// and delivering it to Events or Invalid. It returns a fatal error only if
// the file cannot be opened at start; I/O errors encountered mid-stream
// while polling are logged at warning and reading resumes after the poll
// interval.
func (t *Tailer) Run(ctx context.Context) error {
	info, err := os.Stat(t.Path)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "log file %s does not exist", t.Path)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf(errors.KindIO, "log file %s is not a regular file", t.Path)
	}

	f, err := os.Open(t.Path)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "open log file %s", t.Path)
	}
	defer f.Close()

	t.logger.Info("watching log file", "label", t.Label, "path", t.Path)
	reader := bufio.NewReader(f)

	// pending holds bytes read past the last complete line — the file was
	// read up to a partial, not-yet-newline-terminated write. It is
	// prepended to the next read rather than discarded.
	var pending strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.reload:
			t.logger.Info("detected reload signal", "label", t.Label, "path", t.Path)
		default:
		}

		chunk, err := reader.ReadString('\n')
		if err != nil {
			pending.WriteString(chunk)
			if !errIsEOF(err) {
				t.logger.Warn("error reading log file", "label", t.Label, "error", err)
			}
			if !t.sleep(ctx) {
				return nil
			}
			continue
		}

		line := pending.String() + chunk
		pending.Reset()

		trimmed := trimEOL(line)
		if trimmed == "" {
			t.logger.Debug("skipping empty line", "label", t.Label)
			continue
		}

		t.deliver(ctx, trimmed)
	}
}

func errIsEOF(err error) bool {
	return err == io.EOF
}

func (t *Tailer) deliver(ctx context.Context, line string) {
	var event *nftline.Event
	var perr error
	if t.ProtocolsPath != "" {
		event, perr = nftline.ParseWithProtocols(line, t.ProtocolsPath)
	} else {
		event, perr = nftline.Parse(line)
	}
	if perr != nil {
		t.logger.Debug("rejected log line", "label", t.Label, "error", perr)
		if t.Metrics != nil {
			t.Metrics.ParseErrors.Inc()
		}
		select {
		case t.Invalid <- line:
		case <-ctx.Done():
		}
		return
	}
	if t.Metrics != nil {
		t.Metrics.EventsParsed.Inc()
	}
	select {
	case t.Events <- event:
	case <-ctx.Done():
	}
}

func (t *Tailer) sleep(ctx context.Context) bool {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
