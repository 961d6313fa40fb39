package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"incidentrag/internal/domain"
)

// PresidioDetector calls a Presidio analyzer service for model-based
// entities (PERSON, LOCATION, DATE_TIME) that patterns cannot find.
type PresidioDetector struct {
	baseURL  string
	language string
	entities []string
	client   *http.Client
}

func NewPresidioDetector(baseURL, language string, entities []domain.EntityType, client *http.Client) *PresidioDetector {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, string(e))
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PresidioDetector{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		entities: names,
		client:   client,
	}
}

type presidioRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities,omitempty"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

func (p *PresidioDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	body, err := json.Marshal(presidioRequest{Text: text, Language: p.language, Entities: p.entities})
	if err != nil {
		return nil, fmt.Errorf("marshaling presidio request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating presidio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presidio request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading presidio response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("presidio status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}

	var results []presidioResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, fmt.Errorf("parsing presidio response: %w", err)
	}

	// Presidio reports offsets in characters; convert to byte offsets.
	runeToByte := runeOffsets(text)
	out := make([]Detection, 0, len(results))
	for _, r := range results {
		typ, ok := domain.ParseEntityType(r.EntityType)
		if !ok {
			continue
		}
		if r.Start < 0 || r.End > len(runeToByte)-1 || r.Start >= r.End {
			continue
		}
		out = append(out, Detection{Type: typ, Start: runeToByte[r.Start], End: runeToByte[r.End], Score: r.Score})
	}
	return out, nil
}

// runeOffsets maps rune index -> byte offset, with a trailing entry for
// the end of the string.
func runeOffsets(s string) []int {
	out := make([]int, 0, len(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
