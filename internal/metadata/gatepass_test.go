package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGatePassAnchor is invariant #5: verify succeeds iff a row
// (task, transition, sha=current) exists.
func TestGatePassAnchor(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordGatePass("T1", "IMPLEMENT-CODE_REVIEW", "abc123"))

	row, err := db.MostRecentGatePass("T1", "IMPLEMENT-CODE_REVIEW")
	require.NoError(t, err)
	assert.Equal(t, "abc123", row.CommitSHA)
}

func TestGatePassAmendedCommitInvalidatesPass(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordGatePass("T1", "IMPLEMENT-CODE_REVIEW", "abc123"))
	require.NoError(t, db.RecordGatePass("T1", "IMPLEMENT-CODE_REVIEW", "def456"))

	row, err := db.MostRecentGatePass("T1", "IMPLEMENT-CODE_REVIEW")
	require.NoError(t, err)
	assert.Equal(t, "def456", row.CommitSHA)
}

func TestGatePassNoRecordReturnsErrNoPass(t *testing.T) {
	db := openTestDB(t)
	_, err := db.MostRecentGatePass("T1", "TEST-INTEGRATE")
	assert.ErrorIs(t, err, ErrNoPass)
}

func TestGatePassReRecordSameTripleUpdatesTimestamp(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RecordGatePass("T1", "TEST-INTEGRATE", "sha1"))
	first, err := db.MostRecentGatePass("T1", "TEST-INTEGRATE")
	require.NoError(t, err)

	require.NoError(t, db.RecordGatePass("T1", "TEST-INTEGRATE", "sha1"))
	second, err := db.MostRecentGatePass("T1", "TEST-INTEGRATE")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, second.PassedAt, first.PassedAt)
}
