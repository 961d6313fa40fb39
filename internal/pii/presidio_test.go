package pii

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"incidentrag/internal/domain"
)

func TestPresidioDetectorConvertsRuneOffsets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req presidioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Language != "en" {
			t.Errorf("unexpected language %q", req.Language)
		}
		_ = json.NewEncoder(w).Encode([]presidioResult{
			{EntityType: "PERSON", Start: 6, End: 10, Score: 0.85},
			{EntityType: "NRP", Start: 0, End: 1, Score: 0.9},
		})
	}))
	defer srv.Close()

	d := NewPresidioDetector(srv.URL+"/", "en", domain.DefaultEntities, srv.Client())
	text := "café: José left"
	hits, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected unknown entity types dropped, got %+v", hits)
	}
	if got := text[hits[0].Start:hits[0].End]; got != "José" {
		t.Fatalf("unexpected span %q", got)
	}
}

func TestPresidioDetectorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewPresidioDetector(srv.URL, "en", nil, srv.Client())
	if _, err := d.Detect(context.Background(), "text"); err == nil {
		t.Fatal("expected error for 503")
	}
}
