// Package ghap implements the observation state machine: the per-session
// lifecycle of a Goal/Hypothesis/Action/Prediction record from start to
// resolution, including orphan detection and the tool-invocation
// check-in counter. State lives in the metadata store; this package adds
// validation, confidence-tier derivation, and error-taxonomy mapping.
package ghap

import (
	"context"

	"github.com/google/uuid"

	"calm/internal/errs"
	"calm/internal/logging"
	"calm/internal/metadata"
)

// Valid closed sets for GHAP classification fields. Validation error
// messages list these verbatim so a caller can self-correct.
var (
	ValidDomains = []string{
		"debugging", "refactoring", "feature", "testing", "research", "documentation", "optimization",
	}
	ValidStrategies = []string{
		"systematic-elimination", "trial-and-error", "first-principles", "pattern-matching",
		"documentation-lookup", "incremental",
	}
	ValidOutcomeStatuses = []string{"confirmed", "falsified", "abandoned"}
)

const (
	maxFieldLen  = 1000
	maxResultLen = 2000
)

// Machine is the observation state machine for one metadata store.
type Machine struct {
	db *metadata.DB
}

// New wraps a metadata store as a state machine.
func New(db *metadata.DB) *Machine {
	return &Machine{db: db}
}

// StartParams are the inputs to Start.
type StartParams struct {
	SessionID  string
	Domain     string
	Strategy   string
	Goal       string
	Hypothesis string
	Action     string
	Prediction string
}

// Start creates a new active entry for the session. Fails with
// active_exists (surfacing the active entry's id) if one already exists;
// fails with validation_error for any enum or length violation.
func (m *Machine) Start(ctx context.Context, p StartParams) (string, *errs.Error) {
	if err := validateEnum("domain", p.Domain, ValidDomains); err != nil {
		return "", err
	}
	if err := validateEnum("strategy", p.Strategy, ValidStrategies); err != nil {
		return "", err
	}
	if err := validateLen("goal", p.Goal, maxFieldLen); err != nil {
		return "", err
	}
	if err := validateLen("hypothesis", p.Hypothesis, maxFieldLen); err != nil {
		return "", err
	}
	if err := validateLen("action", p.Action, maxFieldLen); err != nil {
		return "", err
	}
	if err := validateLen("prediction", p.Prediction, maxFieldLen); err != nil {
		return "", err
	}
	if p.SessionID == "" {
		return "", errs.Validation("session_id is required")
	}

	entry := &metadata.GHAPEntry{
		ID:         uuid.NewString(),
		SessionID:  p.SessionID,
		Domain:     p.Domain,
		Strategy:   p.Strategy,
		Goal:       p.Goal,
		Hypothesis: p.Hypothesis,
		Action:     p.Action,
		Prediction: p.Prediction,
	}

	if err := m.db.InsertActive(entry); err != nil {
		if activeErr, ok := asActiveExists(err); ok {
			logging.GHAPDebug("start rejected: session %s already has active entry %s", p.SessionID, activeErr.ActiveID)
			return "", errs.New(errs.ActiveExists, "session already has an active entry: %s", activeErr.ActiveID)
		}
		return "", errs.Wrap(errs.StorageError, err, "failed to start observation")
	}

	logging.GHAP("started observation %s for session %s", entry.ID, p.SessionID)
	return entry.ID, nil
}

// UpdateParams are the optional mutable fields for Update; at least one
// must be non-nil. Note counts toward that requirement but is not stored.
type UpdateParams struct {
	Hypothesis *string
	Action     *string
	Prediction *string
	Strategy   *string
	Note       *string
}

// Update applies a partial mutation to the session's active entry,
// incrementing iteration_count. Fails with validation_error if no mutable
// field is provided, if the entry is not active (including terminal), or
// if a provided strategy is invalid.
func (m *Machine) Update(ctx context.Context, sessionID string, p UpdateParams) *errs.Error {
	if p.Hypothesis == nil && p.Action == nil && p.Prediction == nil && p.Strategy == nil && p.Note == nil {
		return errs.Validation("at least one mutable field must be provided")
	}
	if p.Strategy != nil {
		if err := validateEnum("strategy", *p.Strategy, ValidStrategies); err != nil {
			return err
		}
	}

	active, err := m.db.GetActive(sessionID)
	if err != nil {
		return errs.Wrap(errs.StorageError, err, "failed to look up active entry")
	}
	if active == nil {
		return errs.Validation("no active entry for session")
	}

	updateErr := m.db.UpdateActive(active.ID, func(e *metadata.GHAPEntry) {
		if p.Hypothesis != nil {
			e.Hypothesis = *p.Hypothesis
		}
		if p.Action != nil {
			e.Action = *p.Action
		}
		if p.Prediction != nil {
			e.Prediction = *p.Prediction
		}
		if p.Strategy != nil {
			e.Strategy = *p.Strategy
		}
	})
	if updateErr != nil {
		return errs.Validation("entry is not active: %v", updateErr)
	}
	logging.GHAP("updated observation %s", active.ID)
	return nil
}

// ResolveParams are the inputs to Resolve.
type ResolveParams struct {
	SessionID            string
	Status               string
	Result               string
	Surprise             string
	RootCauseCategory    string
	RootCauseDescription string
	LessonWhatWorked     string
	LessonTakeaway       string
}

// Resolve transitions the session's active entry to terminal, deriving
// confidence_tier from status x iteration_count x lesson-presence.
// status=falsified requires a non-empty surprise.
func (m *Machine) Resolve(ctx context.Context, p ResolveParams) (*metadata.GHAPEntry, *errs.Error) {
	if err := validateEnum("status", p.Status, ValidOutcomeStatuses); err != nil {
		return nil, err
	}
	if err := validateLen("result", p.Result, maxResultLen); err != nil {
		return nil, err
	}
	if p.Status == "falsified" && p.Surprise == "" {
		return nil, errs.Validation("falsified outcome requires a non-empty surprise")
	}

	active, err := m.db.GetActive(p.SessionID)
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err, "failed to look up active entry")
	}
	if active == nil {
		return nil, errs.Validation("no active entry for session")
	}

	resolved, resolveErr := m.db.Resolve(active.ID, func(e *metadata.GHAPEntry) {
		e.OutcomeStatus = p.Status
		e.OutcomeResult = p.Result
		e.Surprise = p.Surprise
		e.RootCauseCategory = p.RootCauseCategory
		e.RootCauseDescription = p.RootCauseDescription
		e.LessonWhatWorked = p.LessonWhatWorked
		e.LessonTakeaway = p.LessonTakeaway
		e.ConfidenceTier = deriveConfidenceTier(p.Status, e.IterationCount, p.LessonWhatWorked != "" || p.LessonTakeaway != "")
	})
	if resolveErr != nil {
		return nil, errs.Validation("entry is not active: %v", resolveErr)
	}

	logging.GHAP("resolved observation %s: status=%s tier=%s", resolved.ID, resolved.OutcomeStatus, resolved.ConfidenceTier)
	return resolved, nil
}

// deriveConfidenceTier implements: gold = confirmed first-try, silver =
// confirmed after iteration, bronze = falsified with recovered lesson,
// abandoned = no useful signal.
func deriveConfidenceTier(status string, iterationCount int, hasLesson bool) string {
	switch {
	case status == "confirmed" && iterationCount == 0:
		return "gold"
	case status == "confirmed":
		return "silver"
	case status == "falsified" && hasLesson:
		return "bronze"
	default:
		return "abandoned"
	}
}

// GetActive returns the session's active entry, or nil.
func (m *Machine) GetActive(ctx context.Context, sessionID string) (*metadata.GHAPEntry, *errs.Error) {
	e, err := m.db.GetActive(sessionID)
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err, "failed to look up active entry")
	}
	return e, nil
}

// GetOrphaned returns an active entry belonging to a different session.
func (m *Machine) GetOrphaned(ctx context.Context, currentSessionID string) (*metadata.GHAPEntry, *errs.Error) {
	e, err := m.db.GetOrphaned(currentSessionID)
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err, "failed to look up orphaned entry")
	}
	return e, nil
}

// IncrementToolCount bumps the session's tool-invocation counter.
func (m *Machine) IncrementToolCount(ctx context.Context, sessionID string) (int, *errs.Error) {
	n, err := m.db.IncrementToolCount(sessionID)
	if err != nil {
		return 0, errs.Wrap(errs.StorageError, err, "failed to increment tool count")
	}
	return n, nil
}

// ResetToolCount explicitly clears the session's tool-invocation counter.
// Never called automatically on resolve.
func (m *Machine) ResetToolCount(ctx context.Context, sessionID string) *errs.Error {
	if err := m.db.ResetToolCount(sessionID); err != nil {
		return errs.Wrap(errs.StorageError, err, "failed to reset tool count")
	}
	return nil
}

// ShouldCheckIn reports whether a session due for reflection given its
// current tool count and a caller-supplied frequency.
func ShouldCheckIn(count, frequency int) bool {
	if frequency <= 0 {
		return false
	}
	return count%frequency == 0
}

func validateEnum(field, value string, valid []string) *errs.Error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return errs.Validation("invalid %s %q: must be one of %v", field, value, valid)
}

func validateLen(field, value string, max int) *errs.Error {
	if len(value) == 0 {
		return errs.Validation("%s is required", field)
	}
	if len(value) > max {
		return errs.Validation("%s exceeds maximum length of %d characters", field, max)
	}
	return nil
}

func asActiveExists(err error) (*metadata.ErrActiveExists, bool) {
	activeErr, ok := err.(*metadata.ErrActiveExists)
	return activeErr, ok
}
