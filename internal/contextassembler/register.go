package contextassembler

import (
	"context"

	"calm/internal/errs"
	"calm/internal/tools"
)

// RegisterOperations registers the context-assembly operation against reg.
func (a *Assembler) RegisterOperations(reg *tools.Registry) {
	reg.MustRegister(&tools.Operation{
		Name:        "contextassembler.assemble",
		Description: "Assemble a token-budgeted context fragment from values, experiences, and memories.",
		Category:    tools.CategoryContextBuilder,
		Schema: tools.Schema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query":  {Type: "string"},
				"axis":   {Type: "string", Default: "full", Enum: []any{"full", "strategy", "surprise", "root_cause"}},
				"budget": {Type: "integer", Default: 2000},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			query, _ := args["query"].(string)
			axis, ok := args["axis"].(string)
			if !ok || axis == "" {
				axis = "full"
			}
			budget := 2000
			if b, ok := args["budget"].(int); ok {
				budget = b
			} else if bf, ok := args["budget"].(float64); ok {
				budget = int(bf)
			}
			return a.Assemble(ctx, query, axis, budget)
		},
	})
}
