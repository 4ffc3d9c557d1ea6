// Package clusterer groups resolved GHAP experiences within one axis
// collection into value clusters using a density-based (HDBSCAN-style)
// algorithm over cosine distance, then validates candidate value text
// against a cluster's centroid and stores each validated value, with its
// own text embedding, in the values collection.
//
// Cluster labels are opaque and valid only until the next re-cluster run
// for the same axis: they are never persisted as stable identifiers
// anywhere outside a single run's output.
package clusterer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"calm/internal/config"
	"calm/internal/embedding"
	"calm/internal/errs"
	"calm/internal/logging"
	"calm/internal/vectorstore"
)

// NoiseLabel is HDBSCAN's label for points that do not belong to any
// dense cluster.
const NoiseLabel = -1

// maxValueTextLen is the Value entity's text length cap.
const maxValueTextLen = 500

// ConfidenceWeight maps a GHAP confidence_tier to its centroid weight.
var ConfidenceWeight = map[string]float64{
	"gold":      1.0,
	"silver":    0.7,
	"bronze":    0.4,
	"abandoned": 0.0,
}

// Point is one input to clustering: an embedded, confidence-tagged
// experience.
type Point struct {
	ID             string
	Vector         []float32
	ConfidenceTier string
}

// Cluster is one output group, with an opaque id scoped to a single run.
type Cluster struct {
	ID            string // "{axis}_{label}", or "{axis}_noise" for noise
	Label         int
	Members       []string
	Centroid      []float32
	Size          int
	AvgConfidence float64
	Warnings      []string
}

// Clusterer runs density-based clustering over one axis at a time, and
// validates/stores human-authored values against a cluster's centroid.
type Clusterer struct {
	minClusterSize int
	minSamples     int
	tauAccept      float64
	embedders      *embedding.Registry

	mu     sync.RWMutex
	byAxis map[string]map[string]Cluster // axis -> cluster_id -> Cluster, replaced wholesale on each Cluster(axis) run
}

// New builds a Clusterer from the process-wide clustering configuration
// and the embedding registry used to embed human-authored value text at
// validation time.
func New(cfg config.ClusteringConfig, embedders *embedding.Registry) *Clusterer {
	return &Clusterer{
		minClusterSize: cfg.MinClusterSize,
		minSamples:     cfg.MinSamples,
		tauAccept:      cfg.TauAccept,
		embedders:      embedders,
		byAxis:         make(map[string]map[string]Cluster),
	}
}

// Cluster groups points for the named axis. Fewer than minClusterSize
// input points fails with insufficient_data — clustering is run
// independently per axis, so this never affects other axes. Each
// cluster's centroid and confidence statistics are computed
// concurrently, one goroutine per cluster, since the clusters are
// independent once membership is assigned.
func (c *Clusterer) Cluster(ctx context.Context, axis string, points []Point) ([]Cluster, *errs.Error) {
	if len(points) < c.minClusterSize {
		return nil, errs.New(errs.InsufficientData, "axis %s has %d points, fewer than min_cluster_size %d", axis, len(points), c.minClusterSize)
	}

	labels := hdbscan(points, c.minClusterSize, c.minSamples)

	byLabel := map[int][]int{}
	var uniqueLabels []int
	for i, l := range labels {
		if _, seen := byLabel[l]; !seen {
			uniqueLabels = append(uniqueLabels, l)
		}
		byLabel[l] = append(byLabel[l], i)
	}

	clusters := make([]Cluster, len(uniqueLabels))
	g, _ := errgroup.WithContext(ctx)
	for i, label := range uniqueLabels {
		i, label := i, label
		idxs := byLabel[label]
		g.Go(func() error {
			id := fmt.Sprintf("%s_%d", axis, label)
			if label == NoiseLabel {
				id = axis + "_noise"
			}
			members := make([]string, len(idxs))
			ptsInCluster := make([]Point, len(idxs))
			for j, idx := range idxs {
				members[j] = points[idx].ID
				ptsInCluster[j] = points[idx]
			}

			centroid, avgConf := weightedCentroid(ptsInCluster)
			cl := Cluster{
				ID:            id,
				Label:         label,
				Members:       members,
				Centroid:      centroid,
				Size:          len(members),
				AvgConfidence: avgConf,
			}
			cl.Warnings = warningsFor(cl, c.minClusterSize)
			clusters[i] = cl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.InternalError, err, "failed to compute cluster statistics for axis %s", axis)
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	logging.Clusterer("clustered axis %s: %d points -> %d clusters", axis, len(points), len(clusters))

	byID := make(map[string]Cluster, len(clusters))
	for _, cl := range clusters {
		byID[cl.ID] = cl
	}
	c.mu.Lock()
	c.byAxis[axis] = byID
	c.mu.Unlock()

	return clusters, nil
}

// LookupCluster returns the cluster with the given id from the most
// recent Cluster run of any axis. A cluster_id from a prior run that has
// since been superseded by a re-cluster of its axis is not found, per
// the opaque/ephemeral cluster_id contract.
func (c *Clusterer) LookupCluster(clusterID string) (Cluster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, byID := range c.byAxis {
		if cl, ok := byID[clusterID]; ok {
			return cl, true
		}
	}
	return Cluster{}, false
}

func warningsFor(cl Cluster, minClusterSize int) []string {
	var warnings []string
	if cl.Label != NoiseLabel && cl.Size < minClusterSize*2 {
		warnings = append(warnings, fmt.Sprintf("cluster size %d is below the 2x min_cluster_size recommendation", cl.Size))
	}
	if cl.AvgConfidence < 0.5 {
		warnings = append(warnings, fmt.Sprintf("average confidence %.2f is below 0.5", cl.AvgConfidence))
	}
	return warnings
}

// weightedCentroid computes the confidence-weighted mean vector, then
// unit-normalizes it, plus the plain (unweighted) average confidence
// across members for the size/confidence warnings.
func weightedCentroid(points []Point) ([]float32, float64) {
	if len(points) == 0 {
		return nil, 0
	}
	dim := len(points[0].Vector)
	sum := make([]float64, dim)
	var weightTotal, confTotal float64

	for _, p := range points {
		w := ConfidenceWeight[p.ConfidenceTier]
		for i, v := range p.Vector {
			sum[i] += w * float64(v)
		}
		weightTotal += w
		confTotal += w
	}

	centroid := make([]float32, dim)
	if weightTotal > 0 {
		for i := range sum {
			centroid[i] = float32(sum[i] / weightTotal)
		}
	}

	var norm float64
	for _, v := range centroid {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range centroid {
			centroid[i] = float32(float64(centroid[i]) / norm)
		}
	}

	avgConfidence := confTotal / float64(len(points))
	return centroid, avgConfidence
}

// ValueCandidate is a human-authored value's text, validated against a
// cluster's centroid.
type ValueCandidate struct {
	Cluster          Cluster
	Text             string
	Embedding        []float32
	Similarity       float64
	CentroidDistance float64
	Valid            bool
	Warnings         []string
}

// Validate embeds text with the quality model and checks its similarity
// against cl's centroid at tau_accept, adding near-threshold and
// cluster-health warnings. text must be a non-empty string of at most
// 500 characters, matching the Value entity's text cap.
func (c *Clusterer) Validate(ctx context.Context, text string, cl Cluster) (ValueCandidate, *errs.Error) {
	if text == "" {
		return ValueCandidate{}, errs.Validation("value text must not be empty")
	}
	if len(text) > maxValueTextLen {
		return ValueCandidate{}, errs.Validation("value text exceeds %d characters", maxValueTextLen)
	}

	engine := c.embedders.Get(embedding.RoleQuality)
	if engine == nil {
		return ValueCandidate{}, errs.New(errs.EmbeddingError, "quality embedding engine is not configured")
	}
	vector, err := engine.Embed(ctx, text)
	if err != nil {
		return ValueCandidate{}, errs.Wrap(errs.EmbeddingError, err, "failed to embed value text")
	}

	similarity := cosineSimilarity(cl.Centroid, vector)
	distance := 1 - similarity
	valid := similarity >= c.tauAccept

	warnings := append([]string{}, cl.Warnings...)
	const nearThreshold = 0.03
	if math.Abs(similarity-c.tauAccept) < nearThreshold {
		warnings = append(warnings, fmt.Sprintf("similarity %.3f is within %.2f of tau_accept %.2f", similarity, nearThreshold, c.tauAccept))
	}

	return ValueCandidate{
		Cluster:          cl,
		Text:             text,
		Embedding:        vector,
		Similarity:       similarity,
		CentroidDistance: distance,
		Valid:            valid,
		Warnings:         warnings,
	}, nil
}

// ValidateByID looks up clusterID against the most recent Cluster run and
// validates text against it. Fails with not_found if clusterID names no
// cluster from the current run (either it never existed, or its axis has
// since been re-clustered).
func (c *Clusterer) ValidateByID(ctx context.Context, text, clusterID string) (ValueCandidate, *errs.Error) {
	cl, ok := c.LookupCluster(clusterID)
	if !ok {
		return ValueCandidate{}, errs.NotFoundf("cluster %s not found; it may be stale from a prior clustering run", clusterID)
	}
	return c.Validate(ctx, text, cl)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// StoreValues upserts every valid candidate into the values collection,
// each with its own text embedding (computed during Validate) and a
// fresh uuid as its point id, and a payload carrying axis, cluster_id,
// text, member_count, avg_confidence, similarity, created_at. Invalid candidates are
// skipped. Returns the ids of the values actually stored.
func StoreValues(ctx context.Context, store vectorstore.Store, axis string, candidates []ValueCandidate) ([]string, error) {
	var points []vectorstore.Point
	var ids []string
	now := float64(time.Now().UnixNano()) / 1e9

	for _, cand := range candidates {
		if !cand.Valid {
			continue
		}
		id := uuid.NewString()
		ids = append(ids, id)
		points = append(points, vectorstore.Point{
			ID:     id,
			Vector: cand.Embedding,
			Payload: map[string]any{
				"axis":           axis,
				"cluster_id":     cand.Cluster.ID,
				"text":           cand.Text,
				"member_count":   cand.Cluster.Size,
				"avg_confidence": cand.Cluster.AvgConfidence,
				"similarity":     cand.Similarity,
				"created_at":     now,
			},
		})
	}
	if len(points) == 0 {
		return nil, nil
	}
	if err := store.Upsert(ctx, "values", points); err != nil {
		return nil, err
	}
	return ids, nil
}
