package persister

import (
	"context"

	"calm/internal/errs"
	"calm/internal/metadata"
	"calm/internal/tools"
)

// RegisterOperations registers persister.ensure_collections and
// persister.persist_resolved against reg. persist_resolved accepts only a
// *metadata.GHAPEntry under args["entry"]. PersistBatch is not registered.
func (p *Persister) RegisterOperations(reg *tools.Registry) {
	reg.MustRegister(&tools.Operation{
		Name:        "persister.ensure_collections",
		Description: "Create the four ghap_* axis collections if absent.",
		Category:    tools.CategoryPersister,
		Schema:      tools.Schema{},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			if err := p.EnsureCollections(ctx); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	})

	reg.MustRegister(&tools.Operation{
		Name:        "persister.persist_resolved",
		Description: "Persist a single resolved GHAP entry across its applicable axes.",
		Category:    tools.CategoryPersister,
		Schema: tools.Schema{
			Required: []string{"entry"},
			Properties: map[string]tools.Property{
				"entry": {Type: "object", Description: "a resolved metadata.GHAPEntry"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, *errs.Error) {
			entry, ok := args["entry"].(*metadata.GHAPEntry)
			if !ok {
				return nil, errs.Validation("entry must be a resolved GHAP entry")
			}
			if err := p.PersistResolved(ctx, entry); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	})
}
