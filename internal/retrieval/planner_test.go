package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"incidentrag/internal/domain"
	"incidentrag/internal/index"
	"incidentrag/internal/logger"
	"incidentrag/internal/retry"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeIndex struct {
	matches []index.Match
	err     error
	calls   int
}

func (f *fakeIndex) Upsert(context.Context, domain.TextChunk, []float32) error { return nil }
func (f *fakeIndex) Get(context.Context, string) (domain.TextChunk, error) {
	return domain.TextChunk{}, domain.ErrNotFound
}
func (f *fakeIndex) Count(context.Context) (int, error)      { return len(f.matches), nil }
func (f *fakeIndex) Teams(context.Context) ([]string, error) { return nil, nil }
func (f *fakeIndex) Close() error                            { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, k int, pred index.Predicate) ([]index.Match, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []index.Match
	for _, m := range f.matches {
		if pred != nil && !pred.Match(m.Chunk.Metadata) {
			continue
		}
		out = append(out, m)
	}
	// Deliberately unsorted and unbounded; the planner must rank and cap.
	return out, nil
}

func match(id, team string, score float64) index.Match {
	return index.Match{
		Chunk: domain.TextChunk{IncidentID: id, Metadata: domain.IncidentMetadata{IncidentID: id, Team: team}},
		Score: score,
	}
}

func testPlanner(idx index.Index) *Planner {
	p := NewPlanner(fakeEmbedder{}, idx, retry.Policy{MaxAttempts: 2, Timeout: time.Second, InitialInterval: time.Millisecond}, logger.Nop())
	return p.WithClock(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
}

func TestPlanCapsDedupesAndOrders(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		match("INC3", "Net", 0.9),
		match("INC1", "Net", 0.9),
		match("INC2", "Net", 0.95),
		match("INC1", "Net", 0.9),
		match("INC4", "Net", 0.1),
	}}
	plan, err := testPlanner(idx).Plan(context.Background(), "vpn", domain.QueryClassification{Type: domain.QueryDefault, K: 3})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	got := plan.IncidentIDs()
	want := []string{"INC2", "INC1", "INC3"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestPlanAppliesHintsAsPostFilter(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		match("INC1", "Network", 0.9),
		match("INC2", "Database", 0.8),
	}}
	cls := domain.QueryClassification{Type: domain.QueryTeam, K: 5, Hints: domain.FilterHints{Team: "Database"}}
	plan, err := testPlanner(idx).Plan(context.Background(), "database team", cls)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.FellBack || len(plan.Chunks) != 1 || plan.Chunks[0].Chunk.IncidentID != "INC2" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestPlanFallsBackWhenFilterMatchesNothing(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		match("INC1", "Network", 0.9),
		match("INC2", "Database", 0.8),
	}}
	cls := domain.QueryClassification{Type: domain.QueryTeam, K: 5, Hints: domain.FilterHints{Team: "Facilities"}}
	plan, err := testPlanner(idx).Plan(context.Background(), "facilities", cls)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.FellBack || len(plan.Chunks) != 2 {
		t.Fatalf("expected unfiltered fallback, got %+v", plan)
	}
}

func TestPlanEmptyIndexIsNotAnError(t *testing.T) {
	plan, err := testPlanner(&fakeIndex{}).Plan(context.Background(), "x", domain.QueryClassification{K: 20})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Chunks) != 0 || plan.FellBack {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestPlanIndexFailureIsTyped(t *testing.T) {
	idx := &fakeIndex{err: errors.New("disk I/O error")}
	_, err := testPlanner(idx).Plan(context.Background(), "x", domain.QueryClassification{K: 5})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if idx.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", idx.calls)
	}
}

func TestSearchUsesFilterAsPredicate(t *testing.T) {
	idx := &fakeIndex{matches: []index.Match{
		match("INC1", "Network", 0.9),
		match("INC2", "Database", 0.8),
	}}
	f, err := NewFilter(Eq(FieldTeam, "network"))
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	got, err := testPlanner(idx).Search(context.Background(), "x", 5, f)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.IncidentID != "INC1" {
		t.Fatalf("unexpected matches %+v", got)
	}
}
