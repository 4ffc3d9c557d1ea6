package metadata

import (
	"database/sql"
	"errors"
	"time"
)

// GatePassRow is one recorded gate-pass row.
type GatePassRow struct {
	TaskID    string
	Transition string
	CommitSHA string
	PassedAt  float64
}

// ErrNoPass is returned by MostRecentGatePass when no row matches.
var ErrNoPass = errors.New("no gate pass recorded")

// RecordGatePass inserts-or-replaces (task_id, transition, commit_sha)
// with the current timestamp.
func (db *DB) RecordGatePass(taskID, transition, commitSHA string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := float64(time.Now().UnixNano()) / 1e9
	_, err := db.sqldb.Exec(`
		INSERT INTO gate_passes (task_id, transition, commit_sha, passed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id, transition, commit_sha) DO UPDATE SET passed_at = excluded.passed_at`,
		taskID, transition, commitSHA, now,
	)
	return err
}

// MostRecentGatePass returns the most recently recorded row for
// (task_id, transition), regardless of commit_sha, so the verifier can
// compare it against the current commit.
func (db *DB) MostRecentGatePass(taskID, transition string) (*GatePassRow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.sqldb.QueryRow(`
		SELECT task_id, transition, commit_sha, passed_at FROM gate_passes
		WHERE task_id = ? AND transition = ?
		ORDER BY passed_at DESC LIMIT 1`, taskID, transition)

	var g GatePassRow
	err := row.Scan(&g.TaskID, &g.Transition, &g.CommitSHA, &g.PassedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPass
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
