package metadata

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GHAPEntry is the relational record backing one observation's full
// lifecycle: active while mutable, terminal once resolved. The vector
// persister reads a terminal entry's fields to render its axis templates,
// but never reads back from the vector store afterward.
type GHAPEntry struct {
	ID         string
	SessionID  string
	Domain     string
	Strategy   string
	Goal       string
	Hypothesis string
	Action     string
	Prediction string
	Status     string // "active" or "terminal"

	IterationCount int

	OutcomeStatus      string // confirmed | falsified | abandoned
	OutcomeResult      string
	OutcomeCapturedAt  float64

	Surprise             string
	RootCauseCategory    string
	RootCauseDescription string
	LessonWhatWorked     string
	LessonTakeaway       string

	ConfidenceTier string // gold | silver | bronze | abandoned

	CreatedAt float64
	UpdatedAt float64
}

// ErrActiveExists is returned by InsertActive when the session already
// has an active entry. ActiveID carries the existing entry's id so
// callers can surface it in the active_exists error message.
type ErrActiveExists struct {
	ActiveID string
}

func (e *ErrActiveExists) Error() string {
	return fmt.Sprintf("session already has an active entry: %s", e.ActiveID)
}

// ErrNotFound is returned when a GHAP id does not exist.
var ErrNotFound = errors.New("ghap entry not found")

// InsertActive creates a new active entry. Relies on the database-level
// partial unique index (session_id where status='active') rather than an
// in-memory lock to enforce the single-active-per-session invariant, so
// concurrent callers racing for the same session produce exactly one
// success and one constraint violation.
func (db *DB) InsertActive(e *GHAPEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := float64(time.Now().UnixNano()) / 1e9
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Status = "active"

	_, err := db.sqldb.Exec(`
		INSERT INTO ghap_entries (id, session_id, domain, strategy, goal, hypothesis, action, prediction, status, iteration_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', 0, ?, ?)`,
		e.ID, e.SessionID, e.Domain, e.Strategy, e.Goal, e.Hypothesis, e.Action, e.Prediction, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			active, getErr := db.getActiveTx(e.SessionID)
			if getErr == nil && active != nil {
				return &ErrActiveExists{ActiveID: active.ID}
			}
			return &ErrActiveExists{ActiveID: ""}
		}
		return fmt.Errorf("insert active entry: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// GetActive returns the session's active entry, or nil if none.
func (db *DB) GetActive(sessionID string) (*GHAPEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.getActiveTx(sessionID)
}

func (db *DB) getActiveTx(sessionID string) (*GHAPEntry, error) {
	row := db.sqldb.QueryRow(`SELECT `+ghapColumns+` FROM ghap_entries WHERE session_id = ? AND status = 'active'`, sessionID)
	e, err := scanGHAPEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// GetOrphaned returns an active entry belonging to a different session, if
// any — used on session start for hand-off.
func (db *DB) GetOrphaned(currentSessionID string) (*GHAPEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.sqldb.QueryRow(`SELECT `+ghapColumns+` FROM ghap_entries WHERE status = 'active' AND session_id != ? ORDER BY updated_at ASC LIMIT 1`, currentSessionID)
	e, err := scanGHAPEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// GetByID returns an entry by id regardless of status.
func (db *DB) GetByID(id string) (*GHAPEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.sqldb.QueryRow(`SELECT `+ghapColumns+` FROM ghap_entries WHERE id = ?`, id)
	e, err := scanGHAPEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// UpdateActive applies a partial mutation to the active entry and
// increments iteration_count. Fails with ErrNotFound if id is not the
// session's current active entry (covers both "no active entry" and
// "entry is terminal").
func (db *DB) UpdateActive(id string, mutate func(e *GHAPEntry)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.sqldb.QueryRow(`SELECT `+ghapColumns+` FROM ghap_entries WHERE id = ?`, id)
	e, err := scanGHAPEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if e.Status != "active" {
		return ErrNotFound
	}

	mutate(e)
	e.IterationCount++
	e.UpdatedAt = float64(time.Now().UnixNano()) / 1e9

	_, err = db.sqldb.Exec(`
		UPDATE ghap_entries SET hypothesis=?, action=?, prediction=?, strategy=?, iteration_count=?, updated_at=?
		WHERE id=?`,
		e.Hypothesis, e.Action, e.Prediction, e.Strategy, e.IterationCount, e.UpdatedAt, e.ID,
	)
	return err
}

// Resolve transitions an active entry to terminal, recording its outcome.
// Terminal entries are immutable: a later UpdateActive call on the same
// id fails with ErrNotFound because the status filter no longer matches.
func (db *DB) Resolve(id string, apply func(e *GHAPEntry)) (*GHAPEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.sqldb.QueryRow(`SELECT `+ghapColumns+` FROM ghap_entries WHERE id = ?`, id)
	e, err := scanGHAPEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.Status != "active" {
		return nil, ErrNotFound
	}

	apply(e)
	e.Status = "terminal"
	e.OutcomeCapturedAt = float64(time.Now().UnixNano()) / 1e9
	e.UpdatedAt = e.OutcomeCapturedAt

	_, err = db.sqldb.Exec(`
		UPDATE ghap_entries SET status='terminal', outcome_status=?, outcome_result=?, outcome_captured_at=?,
			surprise=?, root_cause_category=?, root_cause_description=?, lesson_what_worked=?, lesson_takeaway=?,
			confidence_tier=?, updated_at=?
		WHERE id=?`,
		e.OutcomeStatus, e.OutcomeResult, e.OutcomeCapturedAt,
		e.Surprise, e.RootCauseCategory, e.RootCauseDescription, e.LessonWhatWorked, e.LessonTakeaway,
		e.ConfidenceTier, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// IncrementToolCount bumps a session's tool-invocation counter and
// returns the new value. Never auto-reset on resolve; only ResetToolCount
// clears it.
func (db *DB) IncrementToolCount(sessionID string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.sqldb.Exec(`
		INSERT INTO session_counters (session_id, tool_count) VALUES (?, 1)
		ON CONFLICT(session_id) DO UPDATE SET tool_count = tool_count + 1`, sessionID)
	if err != nil {
		return 0, err
	}

	var count int
	err = db.sqldb.QueryRow(`SELECT tool_count FROM session_counters WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// ResetToolCount explicitly zeroes a session's tool-invocation counter.
func (db *DB) ResetToolCount(sessionID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.sqldb.Exec(`
		INSERT INTO session_counters (session_id, tool_count) VALUES (?, 0)
		ON CONFLICT(session_id) DO UPDATE SET tool_count = 0`, sessionID)
	return err
}

const ghapColumns = `id, session_id, domain, strategy, goal, hypothesis, action, prediction, status, iteration_count,
	COALESCE(outcome_status, ''), COALESCE(outcome_result, ''), COALESCE(outcome_captured_at, 0),
	COALESCE(surprise, ''), COALESCE(root_cause_category, ''), COALESCE(root_cause_description, ''),
	COALESCE(lesson_what_worked, ''), COALESCE(lesson_takeaway, ''), COALESCE(confidence_tier, ''),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGHAPEntry(row rowScanner) (*GHAPEntry, error) {
	e := &GHAPEntry{}
	err := row.Scan(
		&e.ID, &e.SessionID, &e.Domain, &e.Strategy, &e.Goal, &e.Hypothesis, &e.Action, &e.Prediction,
		&e.Status, &e.IterationCount,
		&e.OutcomeStatus, &e.OutcomeResult, &e.OutcomeCapturedAt,
		&e.Surprise, &e.RootCauseCategory, &e.RootCauseDescription,
		&e.LessonWhatWorked, &e.LessonTakeaway, &e.ConfidenceTier,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
