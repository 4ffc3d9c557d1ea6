package clusterer

import (
	"context"

	"calm/internal/errs"
	"calm/internal/tools"
	"calm/internal/vectorstore"
)

// RegisterOperations registers clustering, value-validation, and
// value-storage operations against reg. store backs store_value's write
// into the values collection; loadPoints fetches every embedded point for
// an axis (the searcher's scroll path, typically), since the dispatcher
// layer deals only in axis names, not raw vectors.
func (c *Clusterer) RegisterOperations(reg *tools.Registry, store vectorstore.Store, loadPoints func(ctx context.Context, axis string) ([]Point, error)) {
	reg.MustRegister(&tools.Operation{
		Name:        "clusterer.cluster_axis",
		Description: "Cluster one ghap_* axis's resolved experiences into value candidates.",
		Category:    tools.CategoryClusterer,
		Schema: tools.Schema{
			Required: []string{"axis"},
			Properties: map[string]tools.Property{
				"axis": {Type: "string", Description: "full | strategy | surprise | root_cause", Enum: []any{"full", "strategy", "surprise", "root_cause"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			axis, _ := args["axis"].(string)
			points, loadErr := loadPoints(ctx, axis)
			if loadErr != nil {
				return nil, errs.Wrap(errs.StorageError, loadErr, "failed to load points for axis %s", axis)
			}
			return c.Cluster(ctx, axis, points)
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "validate_value",
		Description: "Embed human-authored value text and score it against a cluster's centroid.",
		Category:    tools.CategoryClusterer,
		Schema: tools.Schema{
			Required: []string{"text", "cluster_id"},
			Properties: map[string]tools.Property{
				"text":       {Type: "string", Description: "candidate value text, at most 500 characters"},
				"cluster_id": {Type: "string", Description: "cluster id returned by clusterer.cluster_axis"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			text, _ := args["text"].(string)
			clusterID, _ := args["cluster_id"].(string)
			cand, err := c.ValidateByID(ctx, text, clusterID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"valid":             cand.Valid,
				"similarity":        cand.Similarity,
				"centroid_distance": cand.CentroidDistance,
				"warnings":          cand.Warnings,
			}, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "store_value",
		Description: "Validate human-authored value text against a cluster, and upsert it into the values collection.",
		Category:    tools.CategoryClusterer,
		Schema: tools.Schema{
			Required: []string{"text", "cluster_id"},
			Properties: map[string]tools.Property{
				"text":       {Type: "string", Description: "value text, at most 500 characters"},
				"cluster_id": {Type: "string", Description: "cluster id returned by clusterer.cluster_axis"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			text, _ := args["text"].(string)
			clusterID, _ := args["cluster_id"].(string)
			cand, err := c.ValidateByID(ctx, text, clusterID)
			if err != nil {
				return nil, err
			}
			if !cand.Valid {
				return nil, errs.Validation("value text similarity %.3f is below tau_accept for cluster %s", cand.Similarity, clusterID)
			}

			axis := axisFromClusterID(clusterID)
			ids, storeErr := StoreValues(ctx, store, axis, []ValueCandidate{cand})
			if storeErr != nil {
				return nil, errs.Wrap(errs.StorageError, storeErr, "failed to store value for cluster %s", clusterID)
			}
			return map[string]any{"id": ids[0], "similarity": cand.Similarity, "warnings": cand.Warnings}, nil
		},
	})
}

// axisFromClusterID recovers the axis name from a "{axis}_{label}" or
// "{axis}_noise" cluster id by stripping the id's final underscore-delimited
// segment, the only part of the format that varies within an axis.
func axisFromClusterID(clusterID string) string {
	for i := len(clusterID) - 1; i >= 0; i-- {
		if clusterID[i] == '_' {
			return clusterID[:i]
		}
	}
	return clusterID
}
