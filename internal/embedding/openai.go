package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"incidentrag/internal/retry"
)

type OpenAI struct {
	apiKey  string
	model   string
	dims    int
	baseURL string
	client  *http.Client
}

func NewOpenAI(apiKey, model string, dims int, baseURL string, client *http.Client) *OpenAI {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type openAIEmbeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	bodyBytes, err := json.Marshal(openAIEmbeddingRequest{Model: o.model, Input: text, Dimensions: o.dims})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshaling request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out openAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing OpenAI response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if out.Error != nil {
			msg += ": " + out.Error.Message
		}
		err := fmt.Errorf("OpenAI embeddings error: %s", msg)
		// Client errors other than rate limiting will not succeed on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no embedding in OpenAI response")
	}
	vec := out.Data[0].Embedding
	if o.dims > 0 && len(vec) != o.dims {
		return nil, retry.Permanent(fmt.Errorf("OpenAI returned %d dimensions, configured %d", len(vec), o.dims))
	}
	return vec, nil
}
