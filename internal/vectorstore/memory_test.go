package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSearchOrdersByScoreDescending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 3))

	require.NoError(t, s.Upsert(ctx, "memories", []Point{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}},
	}))

	results, err := s.Search(ctx, "memories", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestMemoryStoreSearchRespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 2))
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Upsert(ctx, "memories", []Point{{ID: string(rune('a' + i)), Vector: []float32{1, 0}}}))
	}

	results, err := s.Search(ctx, "memories", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
}

func TestMemoryStoreSearchMissingCollection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Search(ctx, "nonexistent", []float32{1}, 10, nil)
	require.Error(t, err)
	var notFound *CollectionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMemoryStoreFilterEquality(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 2))
	require.NoError(t, s.Upsert(ctx, "memories", []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"category": "fact"}},
		{ID: "b", Vector: []float32{1, 0}, Payload: map[string]any{"category": "event"}},
	}))

	results, err := s.Search(ctx, "memories", []float32{1, 0}, 10, Filter{"category": "fact"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryStoreFilterRangeGTE(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 2))
	require.NoError(t, s.Upsert(ctx, "memories", []Point{
		{ID: "old", Vector: []float32{1, 0}, Payload: map[string]any{"created_at": 100.0}},
		{ID: "new", Vector: []float32{1, 0}, Payload: map[string]any{"created_at": 200.0}},
	}))

	results, err := s.Search(ctx, "memories", []float32{1, 0}, 10, Filter{"created_at": RangeGTE{Value: 150}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].ID)
}

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 2))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Upsert(ctx, "memories", []Point{{ID: "a", Vector: []float32{1, 0}}}))
	}
	count, err := s.Count(ctx, "memories", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreEnsureCollectionTreatsExistingAsSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 768))
	require.NoError(t, s.EnsureCollection(ctx, "memories", 768))
}

func TestMemoryStoreDeleteAbsentIDIsNotError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, "memories", 2))
	assert.NoError(t, s.Delete(ctx, "memories", []string{"nonexistent"}))
}
