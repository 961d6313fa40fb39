package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"incidentrag/internal/domain"
	"incidentrag/internal/embedding"
	"incidentrag/internal/index"
	"incidentrag/internal/logger"
	"incidentrag/internal/metrics"
	"incidentrag/internal/retry"
)

// Plan is the ranked, duplicate-free retrieval result for one question.
type Plan struct {
	K        int
	Chunks   []index.Match
	Filter   *Filter
	FellBack bool
}

func (p Plan) IncidentIDs() []string {
	out := make([]string, len(p.Chunks))
	for i, m := range p.Chunks {
		out[i] = m.Chunk.IncidentID
	}
	return out
}

// Planner holds no per-query state and is safe for concurrent use.
type Planner struct {
	embedder embedding.Embedder
	idx      index.Index
	policy   retry.Policy
	log      *logger.Logger
	now      func() time.Time
}

func NewPlanner(emb embedding.Embedder, idx index.Index, policy retry.Policy, log *logger.Logger) *Planner {
	policy.Kind = domain.KindIndex
	policy.Op = "index_query"
	if log == nil {
		log = logger.Nop()
	}
	return &Planner{embedder: emb, idx: idx, policy: policy, log: log, now: time.Now}
}

// WithClock fixes the reference time used to place year-less dates.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	cp := *p
	cp.now = now
	return &cp
}

// Plan runs the semantic top-k search, then narrows the candidates with
// the classifier's hints. When the hints would leave nothing, the
// unfiltered candidates are returned and FellBack is set.
func (p *Planner) Plan(ctx context.Context, question string, cls domain.QueryClassification) (Plan, error) {
	if cls.K < 1 {
		return Plan{}, fmt.Errorf("retrieval k must be >= 1, got %d", cls.K)
	}
	plan := Plan{K: cls.K}

	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return Plan{}, fmt.Errorf("embedding question: %w", err)
	}
	candidates, err := p.query(ctx, vec, cls.K, nil)
	if err != nil {
		return Plan{}, err
	}

	filter, err := FromHints(cls.Hints, p.now())
	if err != nil {
		// Hints are advisory; a hint that does not make a valid filter is dropped.
		p.log.Warn("ignoring retrieval hints", "query_type", cls.Type, "error", err)
		filter = nil
	}
	plan.Filter = filter

	selected := candidates
	if !filter.Empty() {
		var kept []index.Match
		for _, m := range candidates {
			if filter.Match(m.Chunk.Metadata) {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 && len(candidates) > 0 {
			plan.FellBack = true
			metrics.RecordFallback()
			p.log.Info("metadata filter matched nothing, using unfiltered results", "query_type", cls.Type, "candidates", len(candidates))
		} else {
			selected = kept
		}
	}

	plan.Chunks = rank(selected, cls.K)
	return plan, nil
}

// Search runs a direct filtered similarity search without classification.
func (p *Planner) Search(ctx context.Context, text string, k int, filter *Filter) ([]index.Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding search text: %w", err)
	}
	var pred index.Predicate
	if !filter.Empty() {
		pred = filter
	}
	matches, err := p.query(ctx, vec, k, pred)
	if err != nil {
		return nil, err
	}
	return rank(matches, k), nil
}

func (p *Planner) query(ctx context.Context, vec []float32, k int, pred index.Predicate) (matches []index.Match, err error) {
	done := metrics.ObserveExternal(p.policy.Op)
	defer func() { done(err) }()
	return retry.Do(ctx, p.policy, func(ctx context.Context) ([]index.Match, error) {
		return p.idx.Query(ctx, vec, k, pred)
	})
}

// rank orders by score then incident id, drops repeated ids and caps the
// result at k.
func rank(matches []index.Match, k int) []index.Match {
	sorted := make([]index.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Chunk.IncidentID < sorted[j].Chunk.IncidentID
	})
	seen := make(map[string]bool, len(sorted))
	out := make([]index.Match, 0, min(k, len(sorted)))
	for _, m := range sorted {
		if seen[m.Chunk.IncidentID] {
			continue
		}
		seen[m.Chunk.IncidentID] = true
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out
}
