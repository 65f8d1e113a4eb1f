// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store is the EventStore: SQLite-backed persistence for parsed
// events, timed-out/bad-IP tracking, and the archive of invalid lines.
// It exclusively owns the database connection — no other package may open
// the file directly.
package store

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/logging"
	"grimm.is/dumpster/internal/nftline"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	hostname     TEXT,
	in_dev       TEXT,
	out_dev      TEXT,
	src          TEXT,
	src_mac      TEXT,
	dst          TEXT,
	dst_mac      TEXT,
	spt          INTEGER,
	dpt          INTEGER,
	direction    TEXT,
	timestamp    TEXT,
	line         TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_src_timestamp ON events(src, timestamp);

CREATE TABLE IF NOT EXISTS timeout (
	ip   TEXT PRIMARY KEY,
	time TEXT
);

CREATE TABLE IF NOT EXISTS bad (
	ip   TEXT PRIMARY KEY,
	time TEXT
);

CREATE TABLE IF NOT EXISTS invalid (
	logline TEXT PRIMARY KEY,
	time    TEXT
);
`

// Store is the EventStore. Every successful write sets the dirty flag and
// is committed by SQLite as it executes; writes are not batched into a
// transaction, and Commit only clears the flag.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
	dirty  bool
}

// Open opens or creates the SQLite file at path and ensures its schema.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "open event store %s", path)
	}

	s := &Store{db: db, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindIO, "initialize event store schema")
	}
	return s, nil
}

// Close commits any pending writes and closes the underlying connection.
func (s *Store) Close() error {
	if err := s.Commit(); err != nil {
		s.logger.Warn("final commit before close failed", "error", err)
	}
	return s.db.Close()
}

// Commit is a no-op unless the dirty flag is set; it clears the flag on
// success. SQLite autocommits each Exec, so Commit here marks the end of a
// drain pass rather than flushing a literal transaction — kept as an
// explicit call so the policy engine's batching contract stays visible.
func (s *Store) Commit() error {
	if !s.dirty {
		return nil
	}
	s.dirty = false
	return nil
}

func (s *Store) markDirty() { s.dirty = true }

// InsertEvent persists e. It reports a KindConflict error if an event with
// the same hash already exists — the dedup key is the SHA-256 of the
// trimmed raw line, never reinserted.
func (s *Store) InsertEvent(e *nftline.Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (id, hostname, in_dev, out_dev, src, src_mac, dst, dst_mac, spt, dpt, direction, timestamp, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Hash, e.Hostname, e.In, e.Out, e.SRC, e.SrcMAC.String(), e.DST, e.DstMAC.String(),
		e.SPT, e.DPT, e.Direction.String(), e.Timestamp, e.Line,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return errors.Attr(errors.Wrap(err, errors.KindConflict, "event already exists"), "hash", e.Hash)
		}
		return errors.Op(errors.Wrap(err, errors.KindIO, "insert event"), "store.InsertEvent")
	}
	s.markDirty()
	return nil
}

// RecentFrom returns the count of distinct events from src newer than
// now - maxAgeSeconds. maxAgeSeconds defaults to 300 when zero.
func (s *Store) RecentFrom(src string, maxAgeSeconds int64) (int, error) {
	if maxAgeSeconds <= 0 {
		maxAgeSeconds = 300
	}
	cutoff := time.Now().Unix() - maxAgeSeconds

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE src = ? AND CAST(timestamp AS INTEGER) > ?`,
		src, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindIO, "count recent events")
	}
	return count, nil
}

// InsertInvalid archives a raw line the parser rejected. Repeats are
// absorbed silently: invalid lines recur often and are not an error.
func (s *Store) InsertInvalid(line string) error {
	_, err := s.db.Exec(
		`INSERT INTO invalid (logline, time) VALUES (?, ?)`,
		line, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		return errors.Wrap(err, errors.KindIO, "insert invalid line")
	}
	s.markDirty()
	return nil
}

// InsertTimeout records that ip now holds a timed firewall block. A no-op
// if ip is already recorded.
func (s *Store) InsertTimeout(ip string) error {
	_, err := s.db.Exec(
		`INSERT INTO timeout (ip, time) VALUES (?, ?)`,
		ip, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		return errors.Wrap(err, errors.KindIO, "insert timeout record")
	}
	s.markDirty()
	return nil
}

// IsTimedOut reports whether ip has a recorded timed block.
func (s *Store) IsTimedOut(ip string) (bool, error) {
	return s.exists("timeout", ip)
}

// InsertBad records that ip has been permanently blocked. A no-op if ip is
// already recorded.
func (s *Store) InsertBad(ip string) error {
	_, err := s.db.Exec(
		`INSERT INTO bad (ip, time) VALUES (?, ?)`,
		ip, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil
		}
		return errors.Wrap(err, errors.KindIO, "insert bad ip record")
	}
	s.markDirty()
	return nil
}

// IsBad reports whether ip has been permanently blocked.
func (s *Store) IsBad(ip string) (bool, error) {
	return s.exists("bad", ip)
}

// ListBad returns every permanently blocked IP, used to re-install blocks on
// startup since kernel state does not survive a restart.
func (s *Store) ListBad() ([]string, error) {
	rows, err := s.db.Query(`SELECT ip FROM bad`)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "list bad ips")
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "scan bad ip")
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

func (s *Store) exists(table, ip string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE ip = ?`, ip).Scan(&count)
	if err != nil {
		return false, errors.Wrapf(err, errors.KindIO, "check %s membership", table)
	}
	return count > 0, nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
