package searcher

import (
	"context"

	"calm/internal/errs"
	"calm/internal/tools"
)

func paramsFromArgs(args map[string]any) Params {
	p := Params{}
	if q, ok := args["query"].(string); ok {
		p.Query = q
	}
	if m, ok := args["mode"].(string); ok {
		p.Mode = Mode(m)
	}
	if l, ok := args["limit"].(int); ok {
		p.Limit = l
	} else if lf, ok := args["limit"].(float64); ok {
		p.Limit = int(lf)
	}
	if since, ok := args["since"].(string); ok {
		p.SinceRaw = since
	}
	return p
}

var searchSchema = tools.Schema{
	Required: []string{"query"},
	Properties: map[string]tools.Property{
		"query": {Type: "string", Description: "natural-language query"},
		"mode":  {Type: "string", Description: "semantic | keyword | hybrid", Enum: []any{"semantic", "keyword", "hybrid"}},
		"limit": {Type: "integer", Description: "maximum results", Default: 10},
		"since": {Type: "string", Description: "RFC3339 datetime lower bound on created_at"},
	},
}

// RegisterOperations registers every typed search method against reg.
func (s *Searcher) RegisterOperations(reg *tools.Registry) {
	reg.MustRegister(&tools.Operation{
		Name:        "search_memories",
		Description: "Search the memories collection.",
		Category:    tools.CategorySearcher,
		Schema:      searchSchema,
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			results, err := s.SearchMemories(ctx, paramsFromArgs(args))
			if err != nil {
				return nil, err
			}
			return results, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "search_code",
		Description: "Search the code_units collection.",
		Category:    tools.CategorySearcher,
		Schema:      searchSchema,
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			results, err := s.SearchCode(ctx, paramsFromArgs(args))
			if err != nil {
				return nil, err
			}
			return results, nil
		},
	})

	experiencesSchema := searchSchema
	experiencesSchema.Required = append([]string{"axis"}, searchSchema.Required...)
	experiencesSchema.Properties = map[string]tools.Property{
		"axis": {Type: "string", Description: "full | strategy | surprise | root_cause", Enum: []any{"full", "strategy", "surprise", "root_cause"}},
	}
	for k, v := range searchSchema.Properties {
		experiencesSchema.Properties[k] = v
	}
	reg.MustRegister(&tools.Operation{
		Name:        "search_experiences",
		Description: "Search one ghap_* axis collection.",
		Category:    tools.CategorySearcher,
		Schema:      experiencesSchema,
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			axis, _ := args["axis"].(string)
			results, err := s.SearchExperiences(ctx, axis, paramsFromArgs(args))
			if err != nil {
				return nil, err
			}
			return results, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "search_values",
		Description: "Search the values collection.",
		Category:    tools.CategorySearcher,
		Schema:      searchSchema,
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			results, err := s.SearchValues(ctx, paramsFromArgs(args))
			if err != nil {
				return nil, err
			}
			return results, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "search_commits",
		Description: "Search the commits collection.",
		Category:    tools.CategorySearcher,
		Schema:      searchSchema,
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			results, err := s.SearchCommits(ctx, paramsFromArgs(args))
			if err != nil {
				return nil, err
			}
			return results, nil
		},
	})
}
