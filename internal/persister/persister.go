// Package persister writes resolved GHAP observations into their four
// axis-specific vector collections: a full projection plus three focused
// ones (strategy, surprise, root_cause), each embedded and upserted
// independently so search_experiences(axis) can query any lens alone.
package persister

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"calm/internal/embedding"
	"calm/internal/errs"
	"calm/internal/logging"
	"calm/internal/metadata"
	"calm/internal/vectorstore"
)

// Axis names double as collection-name suffixes: ghap_<axis>.
const (
	AxisFull      = "full"
	AxisStrategy  = "strategy"
	AxisSurprise  = "surprise"
	AxisRootCause = "root_cause"
)

var allAxes = []string{AxisFull, AxisStrategy, AxisSurprise, AxisRootCause}

func collectionFor(axis string) string {
	return "ghap_" + axis
}

const qualityDimension = 768

// Persister embeds and upserts resolved GHAP entries into their axis
// collections.
type Persister struct {
	store     vectorstore.Store
	embedders *embedding.Registry
}

// New wraps a vector store and embedding registry as a persister.
func New(store vectorstore.Store, embedders *embedding.Registry) *Persister {
	return &Persister{store: store, embedders: embedders}
}

// EnsureCollections creates all four ghap_* collections at the fixed
// 768-dimension, cosine-distance shape, idempotently.
func (p *Persister) EnsureCollections(ctx context.Context) *errs.Error {
	for _, axis := range allAxes {
		if err := p.store.EnsureCollection(ctx, collectionFor(axis), qualityDimension); err != nil {
			return errs.Wrap(errs.StorageError, err, "failed to ensure collection for axis %s", axis)
		}
	}
	return nil
}

// axisFields maps a resolved entry onto the template placeholder set
// shared by all four templates.
func axisFields(e *metadata.GHAPEntry) map[string]string {
	return map[string]string{
		"domain":                 e.Domain,
		"strategy":               e.Strategy,
		"goal":                   e.Goal,
		"hypothesis":             e.Hypothesis,
		"action":                 e.Action,
		"prediction":             e.Prediction,
		"outcome_status":         e.OutcomeStatus,
		"outcome_result":         e.OutcomeResult,
		"iteration_count":        strconv.Itoa(e.IterationCount),
		"surprise":               e.Surprise,
		"root_cause_category":    e.RootCauseCategory,
		"root_cause_description": e.RootCauseDescription,
		"lesson_what_worked":     e.LessonWhatWorked,
		"lesson_takeaway":        e.LessonTakeaway,
	}
}

// axesToWrite decides which of the four axes a resolved entry produces
// text for. surprise is skipped when e.Surprise is empty. root_cause is
// skipped when either root_cause is absent, or root_cause is present but
// surprise is absent (a root cause without the surprise that motivated
// it is not a usable axis entry).
func axesToWrite(e *metadata.GHAPEntry) []string {
	axes := []string{AxisFull, AxisStrategy}
	hasSurprise := e.Surprise != ""
	hasRootCause := e.RootCauseCategory != "" || e.RootCauseDescription != ""

	if hasSurprise {
		axes = append(axes, AxisSurprise)
	}
	if hasRootCause && hasSurprise {
		axes = append(axes, AxisRootCause)
	}
	return axes
}

func templateFor(axis string) string {
	switch axis {
	case AxisFull:
		return fullTemplate
	case AxisStrategy:
		return strategyTemplate
	case AxisSurprise:
		return surpriseTemplate
	case AxisRootCause:
		return rootCauseTemplate
	default:
		return ""
	}
}

// PersistResolved writes every applicable axis for a single resolved
// entry. The same entry id is used as the point id across all axes so
// cross-axis lookups stay consistent.
func (p *Persister) PersistResolved(ctx context.Context, e *metadata.GHAPEntry) *errs.Error {
	if e.OutcomeStatus == "" {
		return errs.Validation("entry %s has no outcome; only resolved entries are persisted", e.ID)
	}

	fields := axisFields(e)
	engine := p.embedders.Get(embedding.RoleQuality)
	if engine == nil {
		return errs.New(errs.EmbeddingError, "quality embedding engine is not configured")
	}

	for _, axis := range axesToWrite(e) {
		text := renderTemplate(templateFor(axis), fields)
		vector, err := engine.Embed(ctx, text)
		if err != nil {
			return errs.Wrap(errs.EmbeddingError, err, "failed to embed axis %s for entry %s", axis, e.ID)
		}

		payload := map[string]any{
			"text":            text,
			"ghap_id":         e.ID,
			"session_id":      e.SessionID,
			"domain":          e.Domain,
			"strategy":        e.Strategy,
			"outcome_status":  e.OutcomeStatus,
			"confidence_tier": e.ConfidenceTier,
			"iteration_count": e.IterationCount,
			"created_at":      e.CreatedAt,
			"updated_at":      e.UpdatedAt,
		}
		if axis == AxisSurprise || axis == AxisRootCause {
			payload["root_cause_category"] = e.RootCauseCategory
		}

		point := vectorstore.Point{
			ID:      e.ID,
			Vector:  vector,
			Payload: payload,
		}
		if err := p.store.Upsert(ctx, collectionFor(axis), []vectorstore.Point{point}); err != nil {
			return errs.Wrap(errs.StorageError, err, "failed to upsert axis %s for entry %s", axis, e.ID)
		}
		logging.PersisterDebug("persisted axis %s for entry %s (%d bytes)", axis, e.ID, len(text))
	}

	logging.Persister("persisted resolved entry %s across %d axes", e.ID, len(axesToWrite(e)))
	return nil
}

// PersistBatch validates every entry has an outcome before writing any of
// them, then persists the batch concurrently, one goroutine per entry,
// since each entry's axes are independent of every other entry's. The
// first failure aborts the remaining in-flight work and is returned;
// entries that had already finished writing are left in place.
func (p *Persister) PersistBatch(ctx context.Context, entries []*metadata.GHAPEntry) *errs.Error {
	for _, e := range entries {
		if e.OutcomeStatus == "" {
			return errs.Validation("entry %s has no outcome; batch persist requires every entry be resolved", e.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := p.PersistResolved(gctx, e); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if pe, ok := err.(*errs.Error); ok {
			return pe
		}
		return errs.Wrap(errs.InternalError, err, "batch persist failed")
	}
	return nil
}
