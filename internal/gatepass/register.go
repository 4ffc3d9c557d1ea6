package gatepass

import (
	"context"

	"calm/internal/errs"
	"calm/internal/tools"
)

// RegisterOperations registers record_gate_pass and verify_gate_pass
// against reg.
func (v *Verifier) RegisterOperations(reg *tools.Registry) {
	reg.MustRegister(&tools.Operation{
		Name:        "record_gate_pass",
		Description: "Record that a workflow transition passed at a specific commit.",
		Category:    tools.CategoryGatePass,
		Schema: tools.Schema{
			Required: []string{"task_id", "transition", "commit_sha"},
			Properties: map[string]tools.Property{
				"task_id":    {Type: "string"},
				"transition": {Type: "string"},
				"commit_sha": {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			taskID, _ := args["task_id"].(string)
			transition, _ := args["transition"].(string)
			sha, _ := args["commit_sha"].(string)
			if err := v.Record(ctx, taskID, transition, sha); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "verify_gate_pass",
		Description: "Verify a gated transition has a recorded pass at the current commit.",
		Category:    tools.CategoryGatePass,
		Schema: tools.Schema{
			Required: []string{"task_id", "transition", "commit_sha"},
			Properties: map[string]tools.Property{
				"task_id":    {Type: "string"},
				"transition": {Type: "string"},
				"commit_sha": {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			taskID, _ := args["task_id"].(string)
			transition, _ := args["transition"].(string)
			sha, _ := args["commit_sha"].(string)
			if err := v.Verify(ctx, taskID, transition, sha); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	})
}
