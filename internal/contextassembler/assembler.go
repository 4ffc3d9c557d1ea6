// Package contextassembler builds the token-budgeted context fragment
// injected into an agent's prompt: values, experiences, and memories
// fetched via the searcher, greedily packed into a weighted token budget
// and emitted in a fixed order.
package contextassembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"calm/internal/errs"
	"calm/internal/searcher"
)

// Source identifies one of the three context sources, in their fixed
// emission order.
type Source string

const (
	SourceValues      Source = "values"
	SourceExperiences Source = "experiences"
	SourceMemories    Source = "memories"
)

var emissionOrder = []Source{SourceValues, SourceExperiences, SourceMemories}

// sectionHeading is the markdown heading rendered for each source's
// section, in emission order.
var sectionHeading = map[Source]string{
	SourceValues:      "## Values",
	SourceExperiences: "## Experiences",
	SourceMemories:    "## Memories",
}

// sourceWeight is each source's share of the total token budget before
// any empty-source renormalization.
var sourceWeight = map[Source]float64{
	SourceValues:      0.30,
	SourceExperiences: 0.45,
	SourceMemories:    0.25,
}

// ContextItem is one selected piece of context.
type ContextItem struct {
	Source        Source
	Text          string
	Score         float32
	TokenEstimate int
}

// Hash and Eq are defined purely over Text, so two items with identical
// text are interchangeable regardless of source or score — the
// full-text-based identity invariant.
func (c ContextItem) Hash() string {
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:])
}

func (c ContextItem) Eq(other ContextItem) bool {
	return c.Text == other.Text
}

// tokenEstimate implements token_estimate = ceil(len(text)/4).
func tokenEstimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// Fragment is the assembled, ready-to-render context.
type Fragment struct {
	Items       []ContextItem
	TotalTokens int
	Markdown    string
}

// Assembler builds context fragments from a searcher.
type Assembler struct {
	searcher *searcher.Searcher
}

// New wraps a searcher as a context assembler.
func New(s *searcher.Searcher) *Assembler {
	return &Assembler{searcher: s}
}

// Assemble fetches all three sources for query, packs them into budget
// total tokens by the weighted-budget/greedy-by-score/newline-truncation
// rules, and emits them in values -> experiences -> memories order. An
// empty query returns an empty, 0-token fragment without touching
// storage.
func (a *Assembler) Assemble(ctx context.Context, query string, axis string, budgetTokens int) (Fragment, *errs.Error) {
	if strings.TrimSpace(query) == "" {
		return Fragment{}, nil
	}

	values, err := a.searcher.SearchValues(ctx, searcher.Params{Query: query, Limit: 20})
	if err != nil {
		return Fragment{}, err
	}
	experiences, err := a.searcher.SearchExperiences(ctx, axis, searcher.Params{Query: query, Limit: 20})
	if err != nil {
		return Fragment{}, err
	}
	memories, err := a.searcher.SearchMemories(ctx, searcher.Params{Query: query, Limit: 20})
	if err != nil {
		return Fragment{}, err
	}

	bySource := map[Source][]searcher.Result{
		SourceValues:      values,
		SourceExperiences: experiences,
		SourceMemories:    memories,
	}

	budgets := renormalizedBudgets(bySource, budgetTokens)

	var allItems []ContextItem
	for _, src := range emissionOrder {
		items := packGreedy(bySource[src], src, budgets[src])
		allItems = append(allItems, items...)
	}

	total := 0
	for _, it := range allItems {
		total += it.TokenEstimate
	}

	return Fragment{Items: allItems, TotalTokens: total, Markdown: renderMarkdown(allItems)}, nil
}

// renderMarkdown emits one "## <Source>" section per source that has at
// least one item, in emission order, each item as a single bullet point.
// A source with zero selected items contributes no section at all.
func renderMarkdown(items []ContextItem) string {
	bySource := map[Source][]ContextItem{}
	for _, it := range items {
		bySource[it.Source] = append(bySource[it.Source], it)
	}

	var b strings.Builder
	for _, src := range emissionOrder {
		group := bySource[src]
		if len(group) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sectionHeading[src])
		for _, it := range group {
			b.WriteString("\n- ")
			b.WriteString(strings.ReplaceAll(it.Text, "\n", " "))
		}
	}
	return b.String()
}

// renormalizedBudgets applies sourceWeight to budgetTokens, then, if any
// source has zero results, redistributes its share across the remaining
// non-empty sources exactly once (not iteratively).
func renormalizedBudgets(bySource map[Source][]searcher.Result, budgetTokens int) map[Source]int {
	nonEmptyWeight := 0.0
	for _, src := range emissionOrder {
		if len(bySource[src]) > 0 {
			nonEmptyWeight += sourceWeight[src]
		}
	}

	budgets := map[Source]int{}
	if nonEmptyWeight == 0 {
		return budgets
	}
	for _, src := range emissionOrder {
		if len(bySource[src]) == 0 {
			budgets[src] = 0
			continue
		}
		budgets[src] = int(float64(budgetTokens) * (sourceWeight[src] / nonEmptyWeight))
	}
	return budgets
}

// packGreedy selects results by descending score until the token budget
// is exhausted. A single result that alone exceeds the remaining budget
// is truncated at the last newline boundary within budget, rather than
// skipped outright.
func packGreedy(results []searcher.Result, src Source, budget int) []ContextItem {
	if budget <= 0 {
		return nil
	}
	sorted := append([]searcher.Result{}, results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var items []ContextItem
	remaining := budget
	for _, r := range sorted {
		if remaining <= 0 {
			break
		}
		est := tokenEstimate(r.Text)
		text := r.Text
		if est > remaining {
			text = truncateToTokenBudget(r.Text, remaining)
			est = tokenEstimate(text)
			if est == 0 {
				continue
			}
		}
		items = append(items, ContextItem{Source: src, Text: text, Score: r.Score, TokenEstimate: est})
		remaining -= est
	}
	return items
}

// truncateToTokenBudget cuts text to fit within budget tokens (4
// chars/token), backing off to the last newline within that cut so a
// line is never split mid-sentence.
func truncateToTokenBudget(text string, budget int) string {
	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}
	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		return cut[:idx]
	}
	return cut
}
