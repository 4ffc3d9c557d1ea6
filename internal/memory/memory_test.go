package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calm/internal/embedding"
	"calm/internal/errs"
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

func newTestStore() (*Store, vectorstore.Store) {
	vstore := vectorstore.NewMemoryStore()
	registry := embedding.NewRegistryFromEngines(&fakeEngine{dims: 384}, &fakeEngine{dims: 768})
	return New(vstore, registry), vstore
}

func validParams() StoreParams {
	return StoreParams{Content: "prefers tabs over spaces", Category: "preference", Importance: 0.6, Tags: []string{"style"}}
}

func TestStoreWritesMemoryAndReturnsID(t *testing.T) {
	s, vstore := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	id, err := s.Store(context.Background(), validParams())
	require.Nil(t, err)
	assert.NotEmpty(t, id)

	count, cerr := vstore.Count(context.Background(), Collection, nil)
	require.NoError(t, cerr)
	assert.Equal(t, 1, count)
}

func TestStoreRejectsInvalidCategory(t *testing.T) {
	s, _ := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	p := validParams()
	p.Category = "not-a-category"
	_, err := s.Store(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	s, _ := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	p := validParams()
	p.Content = ""
	_, err := s.Store(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStoreRejectsOversizedContent(t *testing.T) {
	s, _ := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	p := validParams()
	p.Content = strings.Repeat("x", maxContentLen+1)
	_, err := s.Store(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStoreRejectsImportanceOutOfRange(t *testing.T) {
	s, _ := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	p := validParams()
	p.Importance = 1.5
	_, err := s.Store(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStoreRejectsTooManyTags(t *testing.T) {
	s, _ := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	p := validParams()
	p.Tags = make([]string, maxTags+1)
	for i := range p.Tags {
		p.Tags[i] = "t"
	}
	_, err := s.Store(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStoreRejectsOversizedTag(t *testing.T) {
	s, _ := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	p := validParams()
	p.Tags = []string{strings.Repeat("t", maxTagLen+1)}
	_, err := s.Store(context.Background(), p)
	require.NotNil(t, err)
	assert.Equal(t, errs.ValidationError, err.Type)
}

func TestStorePayloadCarriesMemoryFields(t *testing.T) {
	s, vstore := newTestStore()
	require.Nil(t, s.EnsureCollection(context.Background()))

	id, err := s.Store(context.Background(), validParams())
	require.Nil(t, err)

	points, _, serr := vstore.Scroll(context.Background(), Collection, nil, 10, "")
	require.NoError(t, serr)
	require.Len(t, points, 1)

	payload := points[0].Payload
	assert.Equal(t, id, points[0].ID)
	assert.Equal(t, "prefers tabs over spaces", payload["content"])
	assert.Equal(t, "preference", payload["category"])
	assert.Equal(t, 0.6, payload["importance"])
	assert.Contains(t, payload, "created_at")
}
