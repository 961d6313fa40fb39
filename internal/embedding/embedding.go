package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"incidentrag/internal/config"
	"incidentrag/internal/domain"
	"incidentrag/internal/metrics"
	"incidentrag/internal/retry"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retrying adds per-attempt timeouts and bounded backoff to an embedder.
// Embedding a fixed text is idempotent, so every failure is retried
// unless the inner embedder marks it permanent.
type Retrying struct {
	inner  Embedder
	policy retry.Policy
}

func NewRetrying(inner Embedder, policy retry.Policy) *Retrying {
	policy.Kind = domain.KindEmbedding
	if policy.Op == "" {
		policy.Op = "embed"
	}
	return &Retrying{inner: inner, policy: policy}
}

func (r *Retrying) Embed(ctx context.Context, text string) (vec []float32, err error) {
	done := metrics.ObserveExternal(r.policy.Op)
	defer func() { done(err) }()
	return retry.Do(ctx, r.policy, func(ctx context.Context) ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// FromConfig builds the configured embedder wrapped with retries.
func FromConfig(cfg config.EmbeddingConfig, client *http.Client) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("embedding provider openai requires OPENAI_API_KEY")
		}
		inner = NewOpenAI(cfg.OpenAIAPIKey, cfg.Model, cfg.Dimensions, cfg.BaseURL, client)
	case "hash":
		inner = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewRetrying(inner, retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}), nil
}
