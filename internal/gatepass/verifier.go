// Package gatepass implements the commit-anchored gate-pass verifier:
// recording that a workflow transition passed at a specific commit, and
// later verifying that the commit presented at the next transition still
// matches. Four transitions are gated; every other transition bypasses
// verification entirely.
package gatepass

import (
	"context"

	"calm/internal/errs"
	"calm/internal/logging"
	"calm/internal/metadata"
)

// GatedTransitions lists the only transitions verify_gate_pass enforces.
// Any transition not in this set bypasses verification and always
// succeeds.
var GatedTransitions = map[string]bool{
	"IMPLEMENT-CODE_REVIEW": true,
	"TEST-INTEGRATE":        true,
	"INVESTIGATED-FIXED":    true,
	"REVIEWED-TESTED":       true,
}

// Verifier records and checks gate passes against a metadata store.
type Verifier struct {
	db *metadata.DB
}

// New wraps a metadata store as a gate-pass verifier.
func New(db *metadata.DB) *Verifier {
	return &Verifier{db: db}
}

// Record stores that transition passed for task at commitSHA.
func (v *Verifier) Record(ctx context.Context, taskID, transition, commitSHA string) *errs.Error {
	if taskID == "" || transition == "" || commitSHA == "" {
		return errs.Validation("task_id, transition, and commit_sha are all required")
	}
	if err := v.db.RecordGatePass(taskID, transition, commitSHA); err != nil {
		return errs.Wrap(errs.StorageError, err, "failed to record gate pass")
	}
	logging.GatePass("recorded pass for task %s transition %s at %s", taskID, transition, truncateSHA(commitSHA))
	return nil
}

// Verify checks whether transition has a recorded pass for task at
// currentSHA. Transitions outside GatedTransitions always succeed without
// touching storage. A gated transition with no recorded pass fails with
// no_pass; a gated transition whose recorded pass names a different
// commit fails with sha_mismatch, reporting both SHAs truncated to 7
// characters.
func (v *Verifier) Verify(ctx context.Context, taskID, transition, currentSHA string) *errs.Error {
	if !GatedTransitions[transition] {
		logging.GatePassDebug("transition %s is ungated, bypassing verification", transition)
		return nil
	}
	if taskID == "" || currentSHA == "" {
		return errs.Validation("task_id and commit_sha are required")
	}

	row, err := v.db.MostRecentGatePass(taskID, transition)
	if err != nil {
		if err == metadata.ErrNoPass {
			return errs.New(errs.NoPass, "no gate pass recorded for task %s transition %s", taskID, transition)
		}
		return errs.Wrap(errs.StorageError, err, "failed to look up gate pass")
	}

	if row.CommitSHA != currentSHA {
		return errs.New(errs.SHAMismatch, "gate pass for task %s transition %s was recorded at %s, not %s",
			taskID, transition, truncateSHA(row.CommitSHA), truncateSHA(currentSHA))
	}

	logging.GatePass("verified pass for task %s transition %s at %s", taskID, transition, truncateSHA(currentSHA))
	return nil
}

func truncateSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}
