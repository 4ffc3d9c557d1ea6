package metadata

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calm.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newEntry(sessionID string) *GHAPEntry {
	return &GHAPEntry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Domain:     "debugging",
		Strategy:   "systematic-elimination",
		Goal:       "fix port collision",
		Hypothesis: "daemon not cleaned up",
		Action:     "kill pid",
		Prediction: "port frees",
	}
}

// TestUniqueActiveGHAPPerSession is invariant #1: at most one active entry
// per session at any observable moment.
func TestUniqueActiveGHAPPerSession(t *testing.T) {
	db := openTestDB(t)

	e1 := newEntry("session-1")
	require.NoError(t, db.InsertActive(e1))

	e2 := newEntry("session-1")
	err := db.InsertActive(e2)
	require.Error(t, err)

	var activeErr *ErrActiveExists
	require.ErrorAs(t, err, &activeErr)
	assert.Equal(t, e1.ID, activeErr.ActiveID)
}

func TestInsertActiveDifferentSessionsSucceed(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.InsertActive(newEntry("session-a")))
	require.NoError(t, db.InsertActive(newEntry("session-b")))
}

func TestGetActiveReturnsNilWhenNone(t *testing.T) {
	db := openTestDB(t)
	e, err := db.GetActive("no-such-session")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestGetOrphanedFindsOtherSessionsActiveEntry(t *testing.T) {
	db := openTestDB(t)
	e := newEntry("session-orphan")
	require.NoError(t, db.InsertActive(e))

	orphan, err := db.GetOrphaned("session-current")
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Equal(t, e.ID, orphan.ID)

	none, err := db.GetOrphaned("session-orphan")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpdateActiveIncrementsIterationCount(t *testing.T) {
	db := openTestDB(t)
	e := newEntry("session-update")
	require.NoError(t, db.InsertActive(e))

	err := db.UpdateActive(e.ID, func(entry *GHAPEntry) {
		entry.Hypothesis = "stale lockfile"
	})
	require.NoError(t, err)

	got, err := db.GetByID(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "stale lockfile", got.Hypothesis)
	assert.Equal(t, 1, got.IterationCount)
}

// TestTerminalImmutability is invariant #2: update on a non-active entry
// fails.
func TestTerminalImmutability(t *testing.T) {
	db := openTestDB(t)
	e := newEntry("session-terminal")
	require.NoError(t, db.InsertActive(e))

	_, err := db.Resolve(e.ID, func(entry *GHAPEntry) {
		entry.OutcomeStatus = "confirmed"
		entry.OutcomeResult = "fixed"
		entry.ConfidenceTier = "gold"
	})
	require.NoError(t, err)

	err = db.UpdateActive(e.ID, func(entry *GHAPEntry) { entry.Hypothesis = "changed" })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveClearsActiveSlot(t *testing.T) {
	db := openTestDB(t)
	e := newEntry("session-resolve")
	require.NoError(t, db.InsertActive(e))

	_, err := db.Resolve(e.ID, func(entry *GHAPEntry) {
		entry.OutcomeStatus = "abandoned"
		entry.ConfidenceTier = "abandoned"
	})
	require.NoError(t, err)

	active, err := db.GetActive("session-resolve")
	require.NoError(t, err)
	assert.Nil(t, active)

	// a new active entry can now be started for the same session
	require.NoError(t, db.InsertActive(newEntry("session-resolve")))
}

func TestToolCountNeverAutoResetsOnResolve(t *testing.T) {
	db := openTestDB(t)
	session := "session-toolcount"

	for i := 0; i < 3; i++ {
		_, err := db.IncrementToolCount(session)
		require.NoError(t, err)
	}

	e := newEntry(session)
	require.NoError(t, db.InsertActive(e))
	_, err := db.Resolve(e.ID, func(entry *GHAPEntry) { entry.OutcomeStatus = "confirmed" })
	require.NoError(t, err)

	count, err := db.IncrementToolCount(session)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	require.NoError(t, db.ResetToolCount(session))
	count, err = db.IncrementToolCount(session)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
