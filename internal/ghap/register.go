package ghap

import (
	"context"

	"calm/internal/errs"
	"calm/internal/tools"
)

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func optString(args map[string]any, key string) *string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	s, _ := v.(string)
	return &s
}

// RegisterOperations registers every ghap operation with reg.
func (m *Machine) RegisterOperations(reg *tools.Registry) {
	reg.MustRegister(&tools.Operation{
		Name:        "ghap.start",
		Description: "Start a new observation for the current session.",
		Category:    tools.CategoryGHAP,
		Schema: tools.Schema{
			Required: []string{"session_id", "domain", "strategy", "goal", "hypothesis", "action", "prediction"},
			Properties: map[string]tools.Property{
				"session_id": {Type: "string", Description: "calling session's identifier"},
				"domain":     {Type: "string", Description: "observation domain", Enum: toAnySlice(ValidDomains)},
				"strategy":   {Type: "string", Description: "approach strategy", Enum: toAnySlice(ValidStrategies)},
				"goal":       {Type: "string", Description: "what this observation is trying to achieve"},
				"hypothesis": {Type: "string", Description: "current belief about the cause"},
				"action":     {Type: "string", Description: "action being taken to test the hypothesis"},
				"prediction": {Type: "string", Description: "expected result of the action"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			id, err := m.Start(ctx, StartParams{
				SessionID:  argString(args, "session_id"),
				Domain:     argString(args, "domain"),
				Strategy:   argString(args, "strategy"),
				Goal:       argString(args, "goal"),
				Hypothesis: argString(args, "hypothesis"),
				Action:     argString(args, "action"),
				Prediction: argString(args, "prediction"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": id}, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "ghap.update",
		Description: "Update the current session's active observation.",
		Category:    tools.CategoryGHAP,
		Schema: tools.Schema{
			Required: []string{"session_id"},
			Properties: map[string]tools.Property{
				"session_id": {Type: "string"},
				"hypothesis": {Type: "string"},
				"action":     {Type: "string"},
				"prediction": {Type: "string"},
				"strategy":   {Type: "string", Enum: toAnySlice(ValidStrategies)},
				"note":       {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			err := m.Update(ctx, argString(args, "session_id"), UpdateParams{
				Hypothesis: optString(args, "hypothesis"),
				Action:     optString(args, "action"),
				Prediction: optString(args, "prediction"),
				Strategy:   optString(args, "strategy"),
				Note:       optString(args, "note"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "ghap.resolve",
		Description: "Resolve the current session's active observation with an outcome.",
		Category:    tools.CategoryGHAP,
		Schema: tools.Schema{
			Required: []string{"session_id", "status", "result"},
			Properties: map[string]tools.Property{
				"session_id":             {Type: "string"},
				"status":                 {Type: "string", Enum: toAnySlice(ValidOutcomeStatuses)},
				"result":                 {Type: "string"},
				"surprise":               {Type: "string"},
				"root_cause_category":    {Type: "string"},
				"root_cause_description": {Type: "string"},
				"lesson_what_worked":     {Type: "string"},
				"lesson_takeaway":        {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			resolved, err := m.Resolve(ctx, ResolveParams{
				SessionID:            argString(args, "session_id"),
				Status:               argString(args, "status"),
				Result:               argString(args, "result"),
				Surprise:             argString(args, "surprise"),
				RootCauseCategory:    argString(args, "root_cause_category"),
				RootCauseDescription: argString(args, "root_cause_description"),
				LessonWhatWorked:     argString(args, "lesson_what_worked"),
				LessonTakeaway:       argString(args, "lesson_takeaway"),
			})
			if err != nil {
				return nil, err
			}
			return resolved, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "ghap.get_active",
		Description: "Return the current session's active observation, if any.",
		Category:    tools.CategoryGHAP,
		Schema: tools.Schema{
			Required:   []string{"session_id"},
			Properties: map[string]tools.Property{"session_id": {Type: "string"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			return m.GetActive(ctx, argString(args, "session_id"))
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "ghap.get_orphaned",
		Description: "Return an active observation abandoned by a different session.",
		Category:    tools.CategoryGHAP,
		Schema: tools.Schema{
			Required:   []string{"session_id"},
			Properties: map[string]tools.Property{"session_id": {Type: "string"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			return m.GetOrphaned(ctx, argString(args, "session_id"))
		},
	})
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
