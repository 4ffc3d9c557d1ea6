package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	qdrant "github.com/qdrant/go-client/qdrant"

	"calm/internal/logging"
)

// QdrantStore is the concrete Store backed by a Qdrant server, reached over
// gRPC via github.com/qdrant/go-client.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore dials the Qdrant server at url (e.g. "http://localhost:6334").
// Dialing is lazy on the underlying gRPC connection, so this call itself
// never blocks on network I/O; the first real RPC surfaces connection
// failures as storage_error through the caller's error wrapping.
func NewQdrantStore(rawURL string) (*QdrantStore, error) {
	host, port, err := splitHostPort(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid vector store url %q: %w", rawURL, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	logging.VectorStore("connected to qdrant at %s:%d", host, port)
	return &QdrantStore{client: client}, nil
}

func splitHostPort(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := u.Port()
	if portStr == "" {
		return host, 6334, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// EnsureCollection implements Store.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	timer := logging.StartTimer(logging.CategoryVectorStore, "EnsureCollection:"+name)
	defer timer.Stop()

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	timer := logging.StartTimer(logging.CategoryVectorStore, "Upsert:"+collection)
	defer timer.Stop()

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return wrapNotFound(collection, err)
	}
	return nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	timer := logging.StartTimer(logging.CategoryVectorStore, "Search:"+collection)
	defer timer.Stop()

	lim := uint64(limit)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		Filter:         toQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, wrapNotFound(collection, err)
	}

	out := make([]ScoredPoint, 0, len(resp))
	for _, r := range resp {
		out = append(out, ScoredPoint{
			Point: Point{
				ID:      idToString(r.Id),
				Payload: valueMapToPayload(r.Payload),
			},
			Score: r.Score,
		})
	}
	return out, nil
}

// Scroll implements Store.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, filter Filter, limit int, offset string) ([]Point, string, error) {
	timer := logging.StartTimer(logging.CategoryVectorStore, "Scroll:"+collection)
	defer timer.Stop()

	lim := uint32(limit)
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(filter),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if offset != "" {
		req.Offset = qdrant.NewID(offset)
	}

	resp, err := s.client.Scroll(ctx, req)
	if err != nil {
		return nil, "", wrapNotFound(collection, err)
	}

	points := make([]Point, 0, len(resp))
	for _, r := range resp {
		points = append(points, Point{
			ID:      idToString(r.Id),
			Vector:  vectorsToFloat32(r.Vectors),
			Payload: valueMapToPayload(r.Payload),
		})
	}

	next := ""
	if len(points) == limit && len(points) > 0 {
		next = points[len(points)-1].ID
	}
	return points, next, nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	timer := logging.StartTimer(logging.CategoryVectorStore, "Count:"+collection)
	defer timer.Stop()

	resp, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(filter),
	})
	if err != nil {
		return 0, wrapNotFound(collection, err)
	}
	return int(resp), nil
}

// Delete implements Store.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	timer := logging.StartTimer(logging.CategoryVectorStore, "Delete:"+collection)
	defer timer.Stop()

	qids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		qids = append(qids, qdrant.NewID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qids...),
	})
	if err != nil {
		return wrapNotFound(collection, err)
	}
	return nil
}

func wrapNotFound(collection string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "doesn't exist") ||
		strings.Contains(strings.ToLower(err.Error()), "not found") {
		return &CollectionNotFoundError{Collection: collection}
	}
	return err
}

// toQdrantFilter translates the searcher's AND-of-equality-and-range
// filter map into a Qdrant Filter. Every key whose value is a RangeGTE,
// string, bool, int or int64 becomes one "must" condition; keys holding
// any other value type are dropped.
func toQdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case RangeGTE:
			conds = append(conds, qdrant.NewRange(key, &qdrant.Range{Gte: &v.Value}))
		case string:
			conds = append(conds, qdrant.NewMatch(key, v))
		case bool:
			conds = append(conds, qdrant.NewMatchBool(key, v))
		case int:
			conds = append(conds, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			conds = append(conds, qdrant.NewMatchInt(key, v))
		default:
			continue
		}
	}
	return &qdrant.Filter{Must: conds}
}

func idToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func vectorsToFloat32(v *qdrant.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	if dense := v.GetVector(); dense != nil {
		return dense.GetData()
	}
	return nil
}

func valueMapToPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = qdrant.ValueToInterface(v)
	}
	return out
}
