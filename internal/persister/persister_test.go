package persister

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calm/internal/embedding"
	"calm/internal/metadata"
	"calm/internal/vectorstore"
)

type fakeEngine struct{ dims int }

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dims)
	for i, b := range []byte(text) {
		if i >= f.dims {
			break
		}
		v[i] = float32(b)
	}
	return v, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(context.Background(), t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return f.dims }
func (f *fakeEngine) Name() string    { return "fake" }

func newTestPersister() (*Persister, vectorstore.Store) {
	store := vectorstore.NewMemoryStore()
	registry := embedding.NewRegistryFromEngines(&fakeEngine{dims: 384}, &fakeEngine{dims: 768})
	return New(store, registry), store
}

func resolvedEntry() *metadata.GHAPEntry {
	return &metadata.GHAPEntry{
		ID:             "entry-1",
		SessionID:      "session-1",
		Domain:         "debugging",
		Strategy:       "systematic-elimination",
		Goal:           "fix port collision",
		Hypothesis:     "stale daemon",
		Action:         "kill pid",
		Prediction:     "port frees",
		OutcomeStatus:  "confirmed",
		OutcomeResult:  "port freed",
		ConfidenceTier: "gold",
	}
}

func TestPersistResolvedWritesFullAndStrategyOnlyWhenNoSurprise(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	err := p.PersistResolved(context.Background(), e)
	require.Nil(t, err)

	countFull, cerr := store.Count(context.Background(), "ghap_full", nil)
	require.NoError(t, cerr)
	assert.Equal(t, 1, countFull)

	countStrategy, cerr := store.Count(context.Background(), "ghap_strategy", nil)
	require.NoError(t, cerr)
	assert.Equal(t, 1, countStrategy)

	countSurprise, cerr := store.Count(context.Background(), "ghap_surprise", nil)
	require.NoError(t, cerr)
	assert.Equal(t, 0, countSurprise)

	countRootCause, cerr := store.Count(context.Background(), "ghap_root_cause", nil)
	require.NoError(t, cerr)
	assert.Equal(t, 0, countRootCause)
}

func TestPersistResolvedWithSurpriseWritesSurpriseAxis(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	e.Surprise = "the daemon wasn't actually stale"
	require.Nil(t, p.PersistResolved(context.Background(), e))

	count, err := store.Count(context.Background(), "ghap_surprise", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPersistResolvedRootCauseWithoutSurpriseSkipsBoth(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	e.RootCauseCategory = "config"
	e.RootCauseDescription = "wrong env var"
	// no surprise set
	require.Nil(t, p.PersistResolved(context.Background(), e))

	surpriseCount, err := store.Count(context.Background(), "ghap_surprise", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, surpriseCount)

	rootCauseCount, err := store.Count(context.Background(), "ghap_root_cause", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rootCauseCount)
}

func TestPersistResolvedWithSurpriseAndRootCauseWritesBoth(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	e.Surprise = "unexpected state"
	e.RootCauseCategory = "config"
	e.RootCauseDescription = "wrong env var"
	require.Nil(t, p.PersistResolved(context.Background(), e))

	rootCauseCount, err := store.Count(context.Background(), "ghap_root_cause", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rootCauseCount)
}

func TestPersistResolvedRejectsUnresolvedEntry(t *testing.T) {
	p, _ := newTestPersister()
	e := resolvedEntry()
	e.OutcomeStatus = ""
	err := p.PersistResolved(context.Background(), e)
	require.NotNil(t, err)
}

func TestPersistBatchFailsFastBeforeWritingAny(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	good := resolvedEntry()
	good.ID = "good-1"
	bad := resolvedEntry()
	bad.ID = "bad-1"
	bad.OutcomeStatus = ""

	err := p.PersistBatch(context.Background(), []*metadata.GHAPEntry{good, bad})
	require.NotNil(t, err)

	count, cerr := store.Count(context.Background(), "ghap_full", nil)
	require.NoError(t, cerr)
	assert.Equal(t, 0, count)
}

func TestCrossAxisIDConsistency(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	e.Surprise = "surprising"
	require.Nil(t, p.PersistResolved(context.Background(), e))

	full, _, err := store.Scroll(context.Background(), "ghap_full", nil, 10, "")
	require.NoError(t, err)
	strategy, _, err2 := store.Scroll(context.Background(), "ghap_strategy", nil, 10, "")
	require.NoError(t, err2)

	require.Len(t, full, 1)
	require.Len(t, strategy, 1)
	assert.Equal(t, e.ID, full[0].ID)
	assert.Equal(t, e.ID, strategy[0].ID)
	assert.Equal(t, e.ID, full[0].Payload["ghap_id"])
	assert.Equal(t, e.ID, strategy[0].Payload["ghap_id"])
}

func TestPersistResolvedPayloadCarriesBaseMetadata(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	e.IterationCount = 2
	require.Nil(t, p.PersistResolved(context.Background(), e))

	full, _, err := store.Scroll(context.Background(), "ghap_full", nil, 10, "")
	require.NoError(t, err)
	require.Len(t, full, 1)

	payload := full[0].Payload
	assert.Equal(t, e.ID, payload["ghap_id"])
	assert.Equal(t, e.SessionID, payload["session_id"])
	assert.Equal(t, e.Domain, payload["domain"])
	assert.Equal(t, e.Strategy, payload["strategy"])
	assert.Equal(t, e.OutcomeStatus, payload["outcome_status"])
	assert.Equal(t, e.ConfidenceTier, payload["confidence_tier"])
	assert.Equal(t, e.IterationCount, payload["iteration_count"])
	assert.Contains(t, payload, "created_at")
	assert.Contains(t, payload, "updated_at")
	assert.NotContains(t, payload, "root_cause_category")
}

func TestPersistResolvedSurpriseAndRootCausePayloadsCarryRootCauseCategory(t *testing.T) {
	p, store := newTestPersister()
	require.Nil(t, p.EnsureCollections(context.Background()))

	e := resolvedEntry()
	e.Surprise = "unexpected state"
	e.RootCauseCategory = "config"
	e.RootCauseDescription = "wrong env var"
	require.Nil(t, p.PersistResolved(context.Background(), e))

	surprise, _, err := store.Scroll(context.Background(), "ghap_surprise", nil, 10, "")
	require.NoError(t, err)
	require.Len(t, surprise, 1)
	assert.Equal(t, e.RootCauseCategory, surprise[0].Payload["root_cause_category"])

	rootCause, _, err := store.Scroll(context.Background(), "ghap_root_cause", nil, 10, "")
	require.NoError(t, err)
	require.Len(t, rootCause, 1)
	assert.Equal(t, e.RootCauseCategory, rootCause[0].Payload["root_cause_category"])

	full, _, err := store.Scroll(context.Background(), "ghap_full", nil, 10, "")
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.NotContains(t, full[0].Payload, "root_cause_category")
}
