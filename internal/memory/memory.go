// Package memory stores freestanding factual assertions the agent wants
// to carry forward independent of any GHAP observation: preferences,
// facts, events, workflow notes. Each memory is embedded once and
// upserted into its own collection, never updated in place.
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calm/internal/embedding"
	"calm/internal/errs"
	"calm/internal/logging"
	"calm/internal/vectorstore"
)

// Collection is the fixed vector collection memories are stored in.
const Collection = "memories"

const dimension = 768

const (
	maxContentLen = 10000
	maxTags       = 20
	maxTagLen     = 50
)

// ValidCategories is the closed set a Memory's category must belong to.
var ValidCategories = []string{
	"preference", "fact", "event", "workflow", "context", "error", "decision",
}

// Memory is a freestanding factual assertion, independent of the GHAP
// lifecycle.
type Memory struct {
	ID         string
	Content    string
	Category   string
	Importance float64
	Tags       []string
	CreatedAt  float64
}

// Store embeds and persists Memory records into the memories collection.
type Store struct {
	vstore    vectorstore.Store
	embedders *embedding.Registry
}

// New wraps a vector store and embedding registry as a memory store.
func New(vstore vectorstore.Store, embedders *embedding.Registry) *Store {
	return &Store{vstore: vstore, embedders: embedders}
}

// EnsureCollection creates the memories collection at its fixed
// dimension, idempotently.
func (s *Store) EnsureCollection(ctx context.Context) *errs.Error {
	if err := s.vstore.EnsureCollection(ctx, Collection, dimension); err != nil {
		return errs.Wrap(errs.StorageError, err, "failed to ensure memories collection")
	}
	return nil
}

// StoreParams are the inputs to Store.
type StoreParams struct {
	Content    string
	Category   string
	Importance float64
	Tags       []string
}

// Store validates and embeds content, then upserts a new Memory. Returns
// the generated id; callers must never echo content back in a response,
// per the bounded store_memory response contract.
func (s *Store) Store(ctx context.Context, p StoreParams) (string, *errs.Error) {
	if err := validate(p); err != nil {
		return "", err
	}

	engine := s.embedders.Get(embedding.RoleQuality)
	if engine == nil {
		return "", errs.New(errs.EmbeddingError, "quality embedding engine is not configured")
	}
	vector, err := engine.Embed(ctx, p.Content)
	if err != nil {
		return "", errs.Wrap(errs.EmbeddingError, err, "failed to embed memory content")
	}

	id := uuid.NewString()
	now := float64(time.Now().UnixNano()) / 1e9
	point := vectorstore.Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]any{
			"content":    p.Content,
			"category":   p.Category,
			"importance": p.Importance,
			"tags":       p.Tags,
			"created_at": now,
		},
	}
	if err := s.vstore.Upsert(ctx, Collection, []vectorstore.Point{point}); err != nil {
		return "", errs.Wrap(errs.StorageError, err, "failed to upsert memory")
	}

	logging.Memory("stored memory %s (category=%s, %d bytes)", id, p.Category, len(p.Content))
	return id, nil
}

func validate(p StoreParams) *errs.Error {
	if p.Content == "" {
		return errs.Validation("content is required")
	}
	if len(p.Content) > maxContentLen {
		return errs.Validation("content exceeds maximum length of %d characters", maxContentLen)
	}
	if !validCategory(p.Category) {
		return errs.Validation("invalid category %q: must be one of %v", p.Category, ValidCategories)
	}
	if p.Importance < 0 || p.Importance > 1 {
		return errs.Validation("importance must be between 0 and 1, got %v", p.Importance)
	}
	if len(p.Tags) > maxTags {
		return errs.Validation("at most %d tags are allowed, got %d", maxTags, len(p.Tags))
	}
	for _, tag := range p.Tags {
		if len(tag) > maxTagLen {
			return errs.Validation("tag %q exceeds maximum length of %d characters", tag, maxTagLen)
		}
	}
	return nil
}

func validCategory(category string) bool {
	for _, c := range ValidCategories {
		if category == c {
			return true
		}
	}
	return false
}
