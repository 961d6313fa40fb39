package pii

import (
	"context"
	"fmt"

	"incidentrag/internal/domain"
)

// Detection is one raw detector hit. Offsets are byte offsets into the
// scanned text, End exclusive.
type Detection struct {
	Type  domain.EntityType
	Start int
	End   int
	Score float64
}

type Detector interface {
	Detect(ctx context.Context, text string) ([]Detection, error)
}

type multiDetector struct {
	detectors []Detector
}

// Multi runs every detector over the text and concatenates their hits.
// Any member failure fails the whole call.
func Multi(detectors ...Detector) Detector {
	var kept []Detector
	for _, d := range detectors {
		if d != nil {
			kept = append(kept, d)
		}
	}
	return &multiDetector{detectors: kept}
}

func (m *multiDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	var out []Detection
	for i, d := range m.detectors {
		hits, err := d.Detect(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("detector %d: %w", i, err)
		}
		out = append(out, hits...)
	}
	return out, nil
}
