package classify

import (
	"sort"
	"strings"
	"time"

	"incidentrag/internal/domain"
)

// Classifier is stateless after construction and safe for concurrent use.
type Classifier struct {
	table Table
	teams []string // longest first
	loc   *time.Location
}

// New builds a classifier over table. Known team names come from the
// index and are fixed for the classifier's lifetime.
func New(table Table, teams []string) *Classifier {
	kept := make([]string, 0, len(teams))
	seen := make(map[string]bool)
	for _, t := range teams {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, t)
	}
	sort.Slice(kept, func(i, j int) bool {
		if len(kept[i]) != len(kept[j]) {
			return len(kept[i]) > len(kept[j])
		}
		return kept[i] < kept[j]
	})
	return &Classifier{table: table, teams: kept, loc: time.UTC}
}

// WithLocation sets the zone date ranges in questions are read in. It
// should match the zone incident timestamps were normalized in.
func (c *Classifier) WithLocation(loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	cp := *c
	cp.loc = loc
	return &cp
}

func (c *Classifier) Version() string { return c.table.Version }

func (c *Classifier) Classify(question string) domain.QueryClassification {
	lower := strings.ToLower(question)
	out := domain.QueryClassification{Type: domain.QueryDefault, K: c.table.DefaultK}
	for _, r := range c.table.Rules {
		if containsAny(lower, r.Phrases) {
			out.Type = r.Type
			out.K = r.K
			break
		}
	}
	out.Hints = c.hints(question)
	return out
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func (c *Classifier) hints(question string) domain.FilterHints {
	return domain.FilterHints{
		IncidentID:    incidentID(question),
		DateRange:     dateRange(question, c.loc),
		PriorityLevel: priorityLevel(question),
		Severity:      severity(question),
		Team:          c.team(question),
	}
}

func (c *Classifier) team(question string) string {
	lower := strings.ToLower(question)
	for _, t := range c.teams {
		if strings.Contains(lower, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}
