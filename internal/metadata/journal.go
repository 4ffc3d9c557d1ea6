package metadata

import (
	"database/sql"
	"encoding/json"
	"errors"
)

// JournalEntry is per-session reflection material feeding later memory
// extraction.
type JournalEntry struct {
	ID                string
	CreatedAt         float64
	WorkingDirectory  string
	SessionLogPath    string
	Summary           string
	FrictionPoints    []string
	NextSteps         []string
	ReflectedAt       float64
	MemoriesCreated   int
}

// ErrJournalNotFound is returned when a journal entry id does not exist.
var ErrJournalNotFound = errors.New("journal entry not found")

// InsertJournalEntry records a new session journal entry.
func (db *DB) InsertJournalEntry(j *JournalEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	friction, _ := json.Marshal(j.FrictionPoints)
	next, _ := json.Marshal(j.NextSteps)

	_, err := db.sqldb.Exec(`
		INSERT INTO journal_entries (id, created_at, working_directory, session_log_path, summary, friction_points, next_steps, reflected_at, memories_created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.CreatedAt, j.WorkingDirectory, j.SessionLogPath, j.Summary, string(friction), string(next), j.ReflectedAt, j.MemoriesCreated,
	)
	return err
}

// GetJournalEntry returns a journal entry by id.
func (db *DB) GetJournalEntry(id string) (*JournalEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.sqldb.QueryRow(`
		SELECT id, created_at, working_directory, session_log_path, summary, friction_points, next_steps, reflected_at, memories_created
		FROM journal_entries WHERE id = ?`, id)

	var j JournalEntry
	var friction, next string
	err := row.Scan(&j.ID, &j.CreatedAt, &j.WorkingDirectory, &j.SessionLogPath, &j.Summary, &friction, &next, &j.ReflectedAt, &j.MemoriesCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJournalNotFound
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(friction), &j.FrictionPoints)
	json.Unmarshal([]byte(next), &j.NextSteps)
	return &j, nil
}

// MarkReflected records that a journal entry has been processed into
// memories.
func (db *DB) MarkReflected(id string, reflectedAt float64, memoriesCreated int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.sqldb.Exec(`UPDATE journal_entries SET reflected_at=?, memories_created=? WHERE id=?`,
		reflectedAt, memoriesCreated, id)
	return err
}
