// Package vectorstore provides calm's vector-store capability: collection
// create/upsert/search/scroll/delete with filters, cosine distance
// everywhere. The Store interface is the capability type the rest of calm
// depends on; Qdrant is the concrete backend (internal/vectorstore/qdrant.go).
package vectorstore

import "context"

// Point is one vector with its opaque payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a Point returned from a similarity search, with its score.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter is a flat map of payload-field equality constraints, AND'd
// together. A value of RangeGTE{...} expresses a numeric lower bound
// instead of equality; the searcher's since filter uses it with
// created_at as Unix epoch seconds.
type Filter map[string]any

// RangeGTE expresses "field >= Value" within a Filter.
type RangeGTE struct {
	Value float64
}

// Store is the vector-store capability every collection-backed component
// (persister, searcher, clusterer) depends on.
type Store interface {
	// EnsureCollection creates a collection with the given dimension and
	// cosine distance if it does not already exist. "already exists" is
	// treated as success.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes or replaces points by id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the top `limit` points by descending cosine
	// similarity to vector, matching filter.
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error)

	// Scroll returns up to `limit` points matching filter in an
	// unspecified but stable order, along with an opaque offset for the
	// next page (empty string when exhausted).
	Scroll(ctx context.Context, collection string, filter Filter, limit int, offset string) ([]Point, string, error)

	// Count returns the number of points matching filter.
	Count(ctx context.Context, collection string, filter Filter) (int, error)

	// Delete removes points by id. Deleting an absent id is not an error.
	Delete(ctx context.Context, collection string, ids []string) error
}

// CollectionNotFoundError is returned by Search/Scroll/Count when the
// named collection does not exist.
type CollectionNotFoundError struct {
	Collection string
}

func (e *CollectionNotFoundError) Error() string {
	return "collection not found: " + e.Collection
}
