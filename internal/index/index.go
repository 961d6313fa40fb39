package index

import (
	"context"

	"incidentrag/internal/domain"
)

// Match is one retrieved chunk with its cosine similarity to the query.
type Match struct {
	Chunk domain.TextChunk
	Score float64
}

// Predicate restricts a query to chunks whose metadata it accepts.
type Predicate interface {
	Match(md domain.IncidentMetadata) bool
}

// Index stores one embedded chunk per incident id.
type Index interface {
	Upsert(ctx context.Context, chunk domain.TextChunk, vector []float32) error
	Query(ctx context.Context, vector []float32, k int, pred Predicate) ([]Match, error)
	Get(ctx context.Context, id string) (domain.TextChunk, error)
	Count(ctx context.Context) (int, error)
	Teams(ctx context.Context) ([]string, error)
	Close() error
}
