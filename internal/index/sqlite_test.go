package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"incidentrag/internal/domain"
)

func newTestIndex(t *testing.T, dims int) *SQLiteIndex {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "test.db"), dims)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func chunk(id, team, category string) domain.TextChunk {
	return domain.TextChunk{
		IncidentID: id,
		Text:       "=== Incident Details ===\nIncident Number: " + id,
		Metadata:   domain.IncidentMetadata{IncidentID: id, Team: team, Category: category},
	}
}

type teamIs string

func (t teamIs) Match(md domain.IncidentMetadata) bool { return md.Team == string(t) }

func TestUpsertReplacesByID(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()

	if err := idx.Upsert(ctx, chunk("INC1", "Network", "Network"), []float32{1, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	updated := chunk("INC1", "Database", "Database")
	if err := idx.Upsert(ctx, updated, []float32{0, 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	n, err := idx.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 chunk, got %d (%v)", n, err)
	}
	got, err := idx.Get(ctx, "INC1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Metadata.Team != "Database" {
		t.Fatalf("upsert did not replace metadata: %+v", got.Metadata)
	}
}

func TestQueryOrdersByScoreThenID(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()
	vectors := map[string][]float32{
		"INC3": {1, 0},
		"INC1": {1, 0},
		"INC2": {0.6, 0.8},
		"INC4": {0, 1},
	}
	for id, v := range vectors {
		if err := idx.Upsert(ctx, chunk(id, "Network", "Network"), v); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	got, err := idx.Query(ctx, []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"INC1", "INC3", "INC2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].Chunk.IncidentID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].Chunk.IncidentID, id)
		}
	}
	if got[0].Score < 0.999 {
		t.Fatalf("unexpected top score %f", got[0].Score)
	}
}

func TestQueryAppliesPredicate(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, chunk("INC1", "Network", "Network"), []float32{1, 0})
	_ = idx.Upsert(ctx, chunk("INC2", "Database", "Database"), []float32{1, 0})

	got, err := idx.Query(ctx, []float32{1, 0}, 5, teamIs("Database"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.IncidentID != "INC2" {
		t.Fatalf("unexpected matches %+v", got)
	}
}

func TestDimensionChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dims.db")
	idx, err := Open(path, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := idx.Upsert(ctx, chunk("INC1", "", ""), []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch on upsert")
	}
	if err := idx.Upsert(ctx, chunk("INC1", "", ""), []float32{1, 2, 3}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := idx.Query(ctx, []float32{1}, 1, nil); err == nil {
		t.Fatal("expected dimension mismatch on query")
	}
	idx.Close()

	if _, err := Open(path, 4); err == nil {
		t.Fatal("expected reopening with other dimensions to fail")
	}
	reopened, err := Open(path, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if n, _ := reopened.Count(ctx); n != 1 {
		t.Fatalf("expected persisted chunk, got %d", n)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	idx := newTestIndex(t, 2)
	_, err := idx.Get(context.Background(), "INC404")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTeamsAndCategoryCounts(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, chunk("INC1", "Network Operations", "Network"), []float32{1, 0})
	_ = idx.Upsert(ctx, chunk("INC2", "Database Team", "Database"), []float32{1, 0})
	_ = idx.Upsert(ctx, chunk("INC3", "Network Operations", "Network"), []float32{1, 0})
	_ = idx.Upsert(ctx, chunk("INC4", "", "Hardware"), []float32{1, 0})

	teams, err := idx.Teams(ctx)
	if err != nil {
		t.Fatalf("Teams: %v", err)
	}
	if len(teams) != 2 || teams[0] != "Database Team" || teams[1] != "Network Operations" {
		t.Fatalf("unexpected teams %v", teams)
	}

	counts, err := idx.CategoryCounts(ctx)
	if err != nil {
		t.Fatalf("CategoryCounts: %v", err)
	}
	if counts[0].Category != "Network" || counts[0].Count != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}
