// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	derrors "grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/nftline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dumpster.sqlite")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(src string, ts int64) *nftline.Event {
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	return &nftline.Event{
		Line:      "line " + src,
		Hash:      src + "-" + time.Unix(ts, 0).String(),
		Hostname:  "host1",
		In:        "wan",
		SRC:       src,
		DST:       "9.9.9.9",
		SrcMAC:    mac,
		DstMAC:    mac,
		Direction: nftline.Inbound,
		Timestamp: ts,
	}
}

func TestInsertEventDedupesByHash(t *testing.T) {
	s := openTestStore(t)
	e := sampleEvent("1.2.3.4", time.Now().Unix())

	require.NoError(t, s.InsertEvent(e))

	err := s.InsertEvent(e)
	require.Error(t, err)
	require.True(t, derrors.IsConflict(err))
}

func TestRecentFromCountsWithinWindow(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().Unix()

	e1 := sampleEvent("1.2.3.4", now)
	e1.Hash = "hash1"
	e2 := sampleEvent("1.2.3.4", now-10)
	e2.Hash = "hash2"
	e3 := sampleEvent("1.2.3.4", now-400)
	e3.Hash = "hash3"

	require.NoError(t, s.InsertEvent(e1))
	require.NoError(t, s.InsertEvent(e2))
	require.NoError(t, s.InsertEvent(e3))

	count, err := s.RecentFrom("1.2.3.4", 300)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestInsertInvalidAbsorbsRepeats(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertInvalid("bad line"))
	require.NoError(t, s.InsertInvalid("bad line"))
}

func TestTimeoutAndBadTracking(t *testing.T) {
	s := openTestStore(t)

	timedOut, err := s.IsTimedOut("5.5.5.5")
	require.NoError(t, err)
	require.False(t, timedOut)

	require.NoError(t, s.InsertTimeout("5.5.5.5"))
	require.NoError(t, s.InsertTimeout("5.5.5.5"))

	timedOut, err = s.IsTimedOut("5.5.5.5")
	require.NoError(t, err)
	require.True(t, timedOut)

	require.NoError(t, s.InsertBad("9.9.9.9"))
	bad, err := s.IsBad("9.9.9.9")
	require.NoError(t, err)
	require.True(t, bad)

	list, err := s.ListBad()
	require.NoError(t, err)
	require.Equal(t, []string{"9.9.9.9"}, list)
}

func TestCommitClearsDirtyFlag(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertTimeout("1.1.1.1"))
	require.True(t, s.dirty)
	require.NoError(t, s.Commit())
	require.False(t, s.dirty)
}
