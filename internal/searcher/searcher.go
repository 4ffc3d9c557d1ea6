// Package searcher implements the unified typed search façade over
// calm's fixed collections: semantic, keyword, and hybrid modes, with
// filter translation and result mapping shared across every typed
// method.
package searcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"calm/internal/embedding"
	"calm/internal/errs"
	"calm/internal/logging"
	"calm/internal/vectorstore"
)

// Mode selects how a query matches points.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

// The boost* constants are the per-entity keyword-score weights used when combining
// semantic and keyword scores in hybrid mode. Each typed method owns its
// own constant, per the resolved boost-is-per-entity design decision.
const (
	boostMemories    = 0.3
	boostCode        = 0.5
	boostExperiences = 0.2
	boostValues      = 0.2
	boostCommits     = 0.4
)

// Result is one search hit, shared across every typed method.
type Result struct {
	ID        string
	Text      string
	Score     float32
	CreatedAt time.Time
	Payload   map[string]any
}

// Searcher is the typed search façade over a vector store.
type Searcher struct {
	store     vectorstore.Store
	embedders *embedding.Registry
}

// New wraps a vector store and embedding registry as a searcher.
func New(store vectorstore.Store, embedders *embedding.Registry) *Searcher {
	return &Searcher{store: store, embedders: embedders}
}

// Params are the common inputs shared by every typed search method.
type Params struct {
	Query   string
	Mode    Mode
	Limit   int
	Since   *time.Time // translated to a $gte filter on created_at
	SinceRaw string    // accepts "+00:00" or "Z" suffixed RFC3339, see ParseSince
}

func (p Params) effectiveLimit() int {
	if p.Limit <= 0 {
		return 10
	}
	return p.Limit
}

func (p Params) effectiveMode() Mode {
	if p.Mode == "" {
		return ModeSemantic
	}
	return p.Mode
}

// ParseSince accepts either of the two datetime formats calm's clients are
// known to send: RFC3339 with a numeric offset ("...+00:00") or a literal
// trailing "Z".
func ParseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05Z", raw)
}

// resolveSince normalizes SinceRaw into Since when Since was not already
// set directly, per the dual-format datetime parsing contract.
func (p *Params) resolveSince() *errs.Error {
	if p.Since != nil || p.SinceRaw == "" {
		return nil
	}
	t, err := ParseSince(p.SinceRaw)
	if err != nil {
		return errs.Validation("invalid since timestamp %q: %v", p.SinceRaw, err)
	}
	p.Since = &t
	return nil
}

func buildFilter(p Params, extra vectorstore.Filter) vectorstore.Filter {
	filter := vectorstore.Filter{}
	for k, v := range extra {
		if v == nil {
			continue
		}
		filter[k] = v
	}
	if p.Since != nil {
		filter["created_at"] = vectorstore.RangeGTE{Value: float64(p.Since.Unix())}
	}
	return filter
}

// search is the shared core: empty query returns empty results without
// touching storage; semantic embeds and calls Search; keyword scrolls and
// scores by substring match; hybrid merges both, breaking ties by
// descending semantic score.
func (s *Searcher) search(ctx context.Context, collection string, p Params, extraFilter vectorstore.Filter, boost float32) ([]Result, *errs.Error) {
	if strings.TrimSpace(p.Query) == "" {
		return []Result{}, nil
	}
	if err := p.resolveSince(); err != nil {
		return nil, err
	}

	filter := buildFilter(p, extraFilter)
	mode := p.effectiveMode()
	limit := p.effectiveLimit()

	var semantic []vectorstore.ScoredPoint
	var keyword []vectorstore.ScoredPoint
	var err error

	if mode == ModeSemantic || mode == ModeHybrid {
		engine := s.embedders.Get(embedding.RoleQuality)
		if engine == nil {
			return nil, errs.New(errs.EmbeddingError, "quality embedding engine is not configured")
		}
		vector, embedErr := engine.Embed(ctx, p.Query)
		if embedErr != nil {
			return nil, errs.Wrap(errs.EmbeddingError, embedErr, "failed to embed query")
		}
		semantic, err = s.store.Search(ctx, collection, vector, fetchWidth(limit, mode), filter)
		if err != nil {
			return nil, asSearcherError(err, collection)
		}
	}

	if mode == ModeKeyword || mode == ModeHybrid {
		keyword, err = keywordScroll(ctx, s.store, collection, filter, p.Query, fetchWidth(limit, mode))
		if err != nil {
			return nil, asSearcherError(err, collection)
		}
	}

	var merged []vectorstore.ScoredPoint
	switch mode {
	case ModeSemantic:
		merged = semantic
	case ModeKeyword:
		merged = keyword
	case ModeHybrid:
		merged = mergeHybrid(semantic, keyword, boost)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}

	logging.SearcherDebug("search collection=%s mode=%s query_len=%d results=%d", collection, mode, len(p.Query), len(merged))
	return toResults(merged), nil
}

func fetchWidth(limit int, mode Mode) int {
	if mode == ModeHybrid {
		return limit * 3
	}
	return limit
}

// keywordScroll scrolls the full collection (subject to filter) and
// scores each point by whether its text payload contains the query,
// case-insensitively. Points without a text payload never match.
func keywordScroll(ctx context.Context, store vectorstore.Store, collection string, filter vectorstore.Filter, query string, limit int) ([]vectorstore.ScoredPoint, error) {
	needle := strings.ToLower(query)
	var out []vectorstore.ScoredPoint
	offset := ""
	for {
		points, next, err := store.Scroll(ctx, collection, filter, 200, offset)
		if err != nil {
			return nil, err
		}
		for _, pt := range points {
			text, _ := pt.Payload["text"].(string)
			if strings.Contains(strings.ToLower(text), needle) {
				out = append(out, vectorstore.ScoredPoint{Point: pt, Score: 1.0})
			}
		}
		if next == "" || len(out) >= limit*4 {
			break
		}
		offset = next
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mergeHybrid combines semantic and keyword hit sets by id:
// merged_score = semantic_score + boost*keyword_score. A point present
// in only one set keeps that set's score (the other term is zero).
func mergeHybrid(semantic, keyword []vectorstore.ScoredPoint, boost float32) []vectorstore.ScoredPoint {
	byID := map[string]*vectorstore.ScoredPoint{}
	order := []string{}

	for _, p := range semantic {
		cp := p
		byID[p.ID] = &cp
		order = append(order, p.ID)
	}
	for _, p := range keyword {
		if existing, ok := byID[p.ID]; ok {
			existing.Score += boost * p.Score
		} else {
			cp := p
			cp.Score = boost * p.Score
			byID[p.ID] = &cp
			order = append(order, p.ID)
		}
	}

	out := make([]vectorstore.ScoredPoint, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func toResults(points []vectorstore.ScoredPoint) []Result {
	out := make([]Result, 0, len(points))
	for _, p := range points {
		text, _ := p.Payload["text"].(string)
		var created time.Time
		if raw, ok := p.Payload["created_at"]; ok {
			if f, ok := raw.(float64); ok {
				created = time.Unix(int64(f), 0).UTC()
			}
		}
		out = append(out, Result{ID: p.ID, Text: text, Score: p.Score, CreatedAt: created, Payload: p.Payload})
	}
	return out
}

func asSearcherError(err error, collection string) *errs.Error {
	if nf, ok := err.(*vectorstore.CollectionNotFoundError); ok {
		return errs.NotFoundf("collection %s not found", nf.Collection)
	}
	return errs.Wrap(errs.StorageError, err, "search failed for collection %s", collection)
}

// SearchMemories queries the memories collection.
func (s *Searcher) SearchMemories(ctx context.Context, p Params) ([]Result, *errs.Error) {
	return s.search(ctx, "memories", p, nil, boostMemories)
}

// SearchCode queries the code_units collection using the fast (384-d)
// embedder instead of quality, since code_units is fixed at 384
// dimensions.
func (s *Searcher) SearchCode(ctx context.Context, p Params) ([]Result, *errs.Error) {
	if strings.TrimSpace(p.Query) == "" {
		return []Result{}, nil
	}
	if err := p.resolveSince(); err != nil {
		return nil, err
	}
	filter := buildFilter(p, nil)
	limit := p.effectiveLimit()
	mode := p.effectiveMode()

	var semantic []vectorstore.ScoredPoint
	var keyword []vectorstore.ScoredPoint
	var err error

	if mode == ModeSemantic || mode == ModeHybrid {
		engine := s.embedders.Get(embedding.RoleFast)
		if engine == nil {
			return nil, errs.New(errs.EmbeddingError, "fast embedding engine is not configured")
		}
		vector, embedErr := engine.Embed(ctx, p.Query)
		if embedErr != nil {
			return nil, errs.Wrap(errs.EmbeddingError, embedErr, "failed to embed code query")
		}
		semantic, err = s.store.Search(ctx, "code_units", vector, fetchWidth(limit, mode), filter)
		if err != nil {
			return nil, asSearcherError(err, "code_units")
		}
	}
	if mode == ModeKeyword || mode == ModeHybrid {
		keyword, err = keywordScroll(ctx, s.store, "code_units", filter, p.Query, fetchWidth(limit, mode))
		if err != nil {
			return nil, asSearcherError(err, "code_units")
		}
	}

	var merged []vectorstore.ScoredPoint
	switch mode {
	case ModeSemantic:
		merged = semantic
	case ModeKeyword:
		merged = keyword
	case ModeHybrid:
		merged = mergeHybrid(semantic, keyword, boostCode)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return toResults(merged), nil
}

// SearchExperiences queries one of the four ghap_* axis collections.
func (s *Searcher) SearchExperiences(ctx context.Context, axis string, p Params) ([]Result, *errs.Error) {
	return s.search(ctx, "ghap_"+axis, p, nil, boostExperiences)
}

// SearchValues queries the values collection.
func (s *Searcher) SearchValues(ctx context.Context, p Params) ([]Result, *errs.Error) {
	return s.search(ctx, "values", p, nil, boostValues)
}

// SearchCommits queries the commits collection.
func (s *Searcher) SearchCommits(ctx context.Context, p Params) ([]Result, *errs.Error) {
	return s.search(ctx, "commits", p, nil, boostCommits)
}
