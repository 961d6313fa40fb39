package incident

import (
	"strings"
)

const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

type levelPair struct {
	impact  string
	urgency string
}

var severityTable = map[levelPair]string{
	{"high", "high"}:     SeverityCritical,
	{"high", "medium"}:   SeverityHigh,
	{"medium", "high"}:   SeverityHigh,
	{"high", "low"}:      SeverityMedium,
	{"medium", "medium"}: SeverityMedium,
	{"low", "high"}:      SeverityMedium,
	{"medium", "low"}:    SeverityLow,
	{"low", "medium"}:    SeverityLow,
	{"low", "low"}:       SeverityLow,
}

// Severity maps impact x urgency onto the ordinal severity scale. ok is
// false when the combination is not in the table; the result is then
// Medium.
func Severity(impact, urgency string) (string, bool) {
	sev, ok := severityTable[levelPair{normalizeLevel(impact), normalizeLevel(urgency)}]
	if !ok {
		return SeverityMedium, false
	}
	return sev, true
}

// normalizeLevel reduces "1 - High", "High" and "1" to "high".
func normalizeLevel(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(s, "-"); idx >= 0 {
		prefix := strings.TrimSpace(s[:idx])
		label := strings.TrimSpace(s[idx+1:])
		if label != "" {
			s = label
		} else {
			s = prefix
		}
	}
	switch s {
	case "1", "high":
		return "high"
	case "2", "medium", "moderate":
		return "medium"
	case "3", "low":
		return "low"
	}
	return s
}
