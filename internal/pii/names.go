package pii

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"incidentrag/internal/domain"
)

const (
	fullNameScore = 0.95
	namePartScore = 0.7
	minNamePart   = 3
)

// NameDetector flags occurrences of known person names. The dictionary is
// seeded from the corpus' assignee column and from config; it can grow
// while detections run.
type NameDetector struct {
	mu    sync.RWMutex
	names map[string]string // lower-cased full name -> original
	full  *regexp.Regexp
	parts *regexp.Regexp
}

func NewNameDetector(names ...string) *NameDetector {
	d := &NameDetector{names: make(map[string]string)}
	d.Add(names...)
	return d
}

// Add registers names and returns how many were new.
func (d *NameDetector) Add(names ...string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	added := 0
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		if len(n) < minNamePart || strings.ContainsAny(n, "[]") {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := d.names[key]; ok {
			continue
		}
		d.names[key] = n
		added++
	}
	if added > 0 {
		d.rebuild()
	}
	return added
}

func (d *NameDetector) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// rebuild compiles the matchers. Alternatives are ordered longest first
// so RE2's leftmost-first alternation prefers the longest name.
func (d *NameDetector) rebuild() {
	var fulls []string
	partSet := make(map[string]bool)
	for _, n := range d.names {
		fulls = append(fulls, n)
		tokens := strings.Fields(n)
		if len(tokens) < 2 {
			continue
		}
		for _, tok := range tokens {
			tok = strings.Trim(tok, ".,")
			if len(tok) >= minNamePart {
				partSet[tok] = true
			}
		}
	}
	d.full = compileAlternation(fulls, true)

	parts := make([]string, 0, len(partSet))
	for p := range partSet {
		parts = append(parts, p)
	}
	d.parts = compileAlternation(parts, false)
}

func compileAlternation(words []string, caseInsensitive bool) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	expr := `\b(?:` + strings.Join(quoted, "|") + `)\b`
	if caseInsensitive {
		expr = `(?i)` + expr
	}
	return regexp.MustCompile(expr)
}

func (d *NameDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	full, parts := d.full, d.parts
	d.mu.RUnlock()

	var out []Detection
	if full != nil {
		for _, loc := range full.FindAllStringIndex(text, -1) {
			out = append(out, Detection{Type: domain.EntityPerson, Start: loc[0], End: loc[1], Score: fullNameScore})
		}
	}
	// Partial hits overlapping a full-name hit lose on score during
	// overlap resolution.
	if parts != nil {
		for _, loc := range parts.FindAllStringIndex(text, -1) {
			out = append(out, Detection{Type: domain.EntityPerson, Start: loc[0], End: loc[1], Score: namePartScore})
		}
	}
	return out, nil
}
