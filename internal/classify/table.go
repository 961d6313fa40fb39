package classify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"incidentrag/internal/domain"
)

// TableVersion pins the order of DefaultTable. Reordering rows changes
// how overlapping phrases resolve and must bump the version.
const TableVersion = "v1"

const DefaultK = 20

type Rule struct {
	Type    domain.QueryType `yaml:"type"`
	Phrases []string         `yaml:"phrases"`
	K       int              `yaml:"k"`
}

// Table is evaluated top to bottom; the first rule with any phrase
// contained in the question wins.
type Table struct {
	Version  string `yaml:"version"`
	Rules    []Rule `yaml:"rules"`
	DefaultK int    `yaml:"default_k"`
}

func DefaultTable() Table {
	return Table{
		Version: TableVersion,
		Rules: []Rule{
			{Type: domain.QueryAnalytical, K: 50, Phrases: []string{"pattern", "trend", "all", "how many", "count", "list", "analyze", "summarize"}},
			{Type: domain.QueryTemporal, K: 100, Phrases: []string{"between", "from", "to", "during", "within", "time frame"}},
			{Type: domain.QueryCategory, K: 25, Phrases: []string{"category", "type of", "similar to", "like this"}},
			{Type: domain.QueryPriority, K: 30, Phrases: []string{"critical", "high priority", "urgent", "severity"}},
			{Type: domain.QueryResolution, K: 40, Phrases: []string{"resolved", "resolution time", "how long", "duration"}},
			{Type: domain.QueryTeam, K: 30, Phrases: []string{"team", "group", "assigned to", "handled by"}},
		},
		DefaultK: DefaultK,
	}
}

// LoadTable reads a replacement table from YAML. File order is kept.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading classifier table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parsing classifier table %s: %w", path, err)
	}
	if t.DefaultK == 0 {
		t.DefaultK = DefaultK
	}
	for i := range t.Rules {
		for j, p := range t.Rules[i].Phrases {
			t.Rules[i].Phrases[j] = strings.ToLower(strings.TrimSpace(p))
		}
	}
	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("classifier table %s: %w", path, err)
	}
	return t, nil
}

func (t Table) Validate() error {
	var errs []error
	if t.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if len(t.Rules) == 0 {
		errs = append(errs, errors.New("at least one rule is required"))
	}
	if t.DefaultK < 1 {
		errs = append(errs, fmt.Errorf("default_k must be >= 1, got %d", t.DefaultK))
	}
	seen := make(map[domain.QueryType]bool)
	for i, r := range t.Rules {
		if !r.Type.Valid() || r.Type == domain.QueryDefault {
			errs = append(errs, fmt.Errorf("rule %d: unknown query type '%s'", i, r.Type))
		}
		if seen[r.Type] {
			errs = append(errs, fmt.Errorf("rule %d: duplicate query type '%s'", i, r.Type))
		}
		seen[r.Type] = true
		if r.K < 1 {
			errs = append(errs, fmt.Errorf("rule %d: k must be >= 1, got %d", i, r.K))
		}
		if len(r.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("rule %d: no phrases", i))
		}
		for _, p := range r.Phrases {
			if p == "" {
				errs = append(errs, fmt.Errorf("rule %d: empty phrase", i))
			}
		}
	}
	return errors.Join(errs...)
}
