package memory

import (
	"context"

	"calm/internal/errs"
	"calm/internal/tools"
)

// RegisterOperations registers store_memory against reg.
func (s *Store) RegisterOperations(reg *tools.Registry) {
	reg.MustRegister(&tools.Operation{
		Name:        "store_memory",
		Description: "Embed and persist a freestanding memory.",
		Category:    tools.CategoryMemory,
		Schema: tools.Schema{
			Required: []string{"content", "category"},
			Properties: map[string]tools.Property{
				"content":    {Type: "string", Description: "memory content, at most 10000 characters"},
				"category":   {Type: "string", Description: "closed set of memory categories", Enum: []any{"preference", "fact", "event", "workflow", "context", "error", "decision"}},
				"importance": {Type: "number", Description: "relevance weight in [0,1]", Default: 0.5},
				"tags":       {Type: "array", Description: "at most 20 tags, each at most 50 characters", Items: &tools.PropertyItems{Type: "string"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			id, storeErr := s.Store(ctx, paramsFromArgs(args))
			if storeErr != nil {
				return nil, storeErr
			}
			return map[string]any{"id": id}, nil
		},
	})
}

func paramsFromArgs(args map[string]any) StoreParams {
	content, _ := args["content"].(string)
	category, _ := args["category"].(string)

	importance := 0.5
	switch v := args["importance"].(type) {
	case float64:
		importance = v
	case int:
		importance = float64(v)
	}

	var tags []string
	if raw, ok := args["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	} else if raw, ok := args["tags"].([]string); ok {
		tags = raw
	}

	return StoreParams{Content: content, Category: category, Importance: importance, Tags: tags}
}
