package pii

import (
	"context"
	"regexp"

	"incidentrag/internal/domain"
)

type pattern struct {
	typ      domain.EntityType
	re       *regexp.Regexp
	score    float64
	validate func(string) bool
}

var defaultPatterns = []pattern{
	{
		typ:   domain.EntityEmail,
		re:    regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		score: 1.0,
	},
	{
		typ:   domain.EntitySSN,
		re:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		score: 0.85,
	},
	{
		typ:      domain.EntityCreditCard,
		re:       regexp.MustCompile(`\b\d(?:[ \-]?\d){12,18}\b`),
		score:    0.95,
		validate: luhnValid,
	},
	{
		typ:   domain.EntityPhone,
		re:    regexp.MustCompile(`\(\d{3}\)\s?\d{3}[\s.\-]\d{4}\b|\b(?:1[\s.\-])?\d{3}[\s.\-]\d{3}[\s.\-]\d{4}\b`),
		score: 0.75,
	},
	{
		typ:   domain.EntityIPAddress,
		re:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
		score: 0.9,
	},
	{
		typ:   domain.EntityDriverLicense,
		re:    regexp.MustCompile(`\b[A-Z]\d{7}\b`),
		score: 0.65,
	},
	{
		typ:   domain.EntityLocation,
		re:    regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl)\b\.?`),
		score: 0.7,
	},
}

// PatternDetector finds structured identifiers with regular expressions.
type PatternDetector struct {
	patterns []pattern
}

func NewPatternDetector() *PatternDetector {
	return &PatternDetector{patterns: defaultPatterns}
}

func (d *PatternDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	var out []Detection
	for _, p := range d.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if p.validate != nil && !p.validate(text[loc[0]:loc[1]]) {
				continue
			}
			out = append(out, Detection{Type: p.typ, Start: loc[0], End: loc[1], Score: p.score})
		}
	}
	return out, nil
}

func luhnValid(s string) bool {
	sum := 0
	digits := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		n := int(c - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
		digits++
	}
	return digits >= 13 && sum%10 == 0
}
