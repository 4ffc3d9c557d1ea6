package persister

import "strings"

// renderTemplate expands a template containing `{field}` placeholders and
// `[... {field} ...]` optional sections. A bracketed section is removed in
// its entirety (brackets included) if its placeholder's value is empty;
// otherwise the brackets are stripped and the placeholder substituted.
// Nested brackets are not supported — the first matching `]` closes the
// section opened by the preceding unmatched `[`.
func renderTemplate(tmpl string, fields map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		switch tmpl[i] {
		case '[':
			end := strings.IndexByte(tmpl[i+1:], ']')
			if end < 0 {
				out.WriteByte(tmpl[i])
				i++
				continue
			}
			section := tmpl[i+1 : i+1+end]
			if sectionHasValue(section, fields) {
				out.WriteString(substitute(section, fields))
			}
			i = i + 1 + end + 1
		default:
			out.WriteByte(tmpl[i])
			i++
		}
	}
	return strings.TrimSpace(collapseBlankLines(out.String()))
}

// sectionHasValue reports whether every placeholder referenced within an
// optional section has a non-empty value. A section with multiple
// placeholders is elided unless all of them resolve.
func sectionHasValue(section string, fields map[string]string) bool {
	i := 0
	found := false
	for i < len(section) {
		if section[i] == '{' {
			end := strings.IndexByte(section[i+1:], '}')
			if end < 0 {
				break
			}
			key := section[i+1 : i+1+end]
			if fields[key] == "" {
				return false
			}
			found = true
			i = i + 1 + end + 1
			continue
		}
		i++
	}
	return found
}

func substitute(s string, fields map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '{' {
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				out.WriteByte(s[i])
				i++
				continue
			}
			key := s[i+1 : i+1+end]
			out.WriteString(fields[key])
			i = i + 1 + end + 1
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// Axis-specific templates, each rendered against the same field map built
// from a resolved GHAP entry.
const fullTemplate = `Domain: {domain}
Strategy: {strategy}
Goal: {goal}
Hypothesis: {hypothesis}
Action: {action}
Prediction: {prediction}
Outcome: {outcome_status} - {outcome_result}
[Surprise: {surprise}]
[Root cause ({root_cause_category}): {root_cause_description}]
[What worked: {lesson_what_worked}]
[Takeaway: {lesson_takeaway}]`

const strategyTemplate = `Strategy: {strategy}
Goal: {goal}
Outcome: {outcome_status}
Iterations: {iteration_count}
[What worked: {lesson_what_worked}]`

const surpriseTemplate = `Expected: {prediction}
Surprise: {surprise}
Domain: {domain}`

const rootCauseTemplate = `Root cause ({root_cause_category}): {root_cause_description}
Surprise: {surprise}
Domain: {domain}`
