package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calm/internal/embedding"
	"calm/internal/errs"
	"calm/internal/vectorstore"
)

type stubEngine struct{ dims int }

func (s *stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, s.dims)
	v[0] = 1
	return v, nil
}
func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, _ := s.Embed(ctx, texts[i])
		out[i] = v
	}
	return out, nil
}
func (s *stubEngine) Dimensions() int { return s.dims }
func (s *stubEngine) Name() string    { return "stub" }

func newTestSearcher(t *testing.T) (*Searcher, vectorstore.Store) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), "memories", 768))
	registry := embedding.NewRegistryFromEngines(&stubEngine{dims: 384}, &stubEngine{dims: 768})
	return New(store, registry), store
}

func seedPoint(t *testing.T, store vectorstore.Store, collection, id, text string, vector []float32) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), collection, []vectorstore.Point{
		{ID: id, Vector: vector, Payload: map[string]any{"text": text}},
	}))
}

func TestSearchMemoriesEmptyQueryReturnsEmptyNotError(t *testing.T) {
	s, _ := newTestSearcher(t)
	results, err := s.SearchMemories(context.Background(), Params{Query: ""})
	require.Nil(t, err)
	assert.Empty(t, results)
}

func TestSearchMemoriesOrdersByScoreDescending(t *testing.T) {
	s, store := newTestSearcher(t)
	seedPoint(t, store, "memories", "a", "alpha", []float32{1, 0})
	seedPoint(t, store, "memories", "b", "beta", []float32{0.9, 0.1})
	seedPoint(t, store, "memories", "c", "gamma", []float32{-1, 0})

	results, err := s.SearchMemories(context.Background(), Params{Query: "q", Mode: ModeSemantic, Limit: 10})
	require.Nil(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchMemoriesRespectsLimit(t *testing.T) {
	s, store := newTestSearcher(t)
	for i := 0; i < 5; i++ {
		seedPoint(t, store, "memories", string(rune('a'+i)), "text", []float32{1, 0})
	}
	results, err := s.SearchMemories(context.Background(), Params{Query: "q", Limit: 2})
	require.Nil(t, err)
	assert.Len(t, results, 2)
}

func TestSearchMemoriesMissingCollectionIsNotFound(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	registry := embedding.NewRegistryFromEngines(&stubEngine{dims: 384}, &stubEngine{dims: 768})
	s := New(store, registry)

	_, err := s.SearchMemories(context.Background(), Params{Query: "q"})
	require.NotNil(t, err)
	assert.Equal(t, errs.NotFound, err.Type)
}

func TestSearchKeywordModeMatchesSubstring(t *testing.T) {
	s, store := newTestSearcher(t)
	seedPoint(t, store, "memories", "a", "the quick brown fox", []float32{1, 0})
	seedPoint(t, store, "memories", "b", "something unrelated", []float32{0, 1})

	results, err := s.SearchMemories(context.Background(), Params{Query: "quick", Mode: ModeKeyword})
	require.Nil(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchHybridMergesHitsByID(t *testing.T) {
	s, store := newTestSearcher(t)
	seedPoint(t, store, "memories", "a", "fox", []float32{1, 0})
	seedPoint(t, store, "memories", "b", "fox fox fox", []float32{0.5, 0.5})

	results, err := s.SearchMemories(context.Background(), Params{Query: "fox", Mode: ModeHybrid, Limit: 10})
	require.Nil(t, err)
	require.NotEmpty(t, results)
	assert.Len(t, results, 2)
}

func TestParseSinceAcceptsBothFormats(t *testing.T) {
	_, err := ParseSince("2024-01-01T00:00:00+00:00")
	require.NoError(t, err)
	_, err2 := ParseSince("2024-01-01T00:00:00Z")
	require.NoError(t, err2)
}
