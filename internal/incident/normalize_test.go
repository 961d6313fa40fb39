package incident

import (
	"errors"
	"math"
	"testing"
	"time"

	"incidentrag/internal/domain"
)

func validRow() map[string]string {
	return map[string]string{
		"Number":            "INC0010001",
		"State":             "Resolved",
		"Category":          "Network",
		"Subcategory":       "VPN",
		"Impact":            "1 - High",
		"Urgency":           "2 - Medium",
		"Priority":          "2 - High",
		"Opened At":         "2024-07-03 08:00:00",
		"Resolved At":       "2024-07-03 14:30:00",
		"Assignment Group":  "Network Operations",
		"Assigned To":       "Jane Doe",
		"Short Description": "VPN drops every 10 minutes",
		"Notes":             "User jane.doe@example.com reports tunnel resets.",
	}
}

func newTestNormalizer() *Normalizer {
	return NewNormalizer(nil, time.UTC)
}

func TestNormalizeValidRow(t *testing.T) {
	rec, warnings, err := newTestNormalizer().Normalize(1, validRow())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if rec.ID != "INC0010001" || rec.Category != "Network" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.PriorityLevel != 2 || rec.PriorityLabel != "High" {
		t.Fatalf("unexpected priority: %d %q", rec.PriorityLevel, rec.PriorityLabel)
	}
	if rec.Severity != SeverityHigh {
		t.Fatalf("unexpected severity: %q", rec.Severity)
	}
	if rec.ResolutionHours != 6.5 {
		t.Fatalf("unexpected resolution hours: %f", rec.ResolutionHours)
	}
}

func TestNormalizeMissingRequiredField(t *testing.T) {
	for _, col := range []string{"Number", "State", "Category", "Priority"} {
		t.Run(col, func(t *testing.T) {
			row := validRow()
			row[col] = "  "
			_, _, err := newTestNormalizer().Normalize(3, row)
			var mf *domain.MissingFieldError
			if !errors.As(err, &mf) {
				t.Fatalf("expected MissingFieldError, got %v", err)
			}
			if mf.Field != col || mf.Row != 3 {
				t.Fatalf("unexpected error: %+v", mf)
			}
		})
	}
}

func TestNormalizeOpenedAtIsMandatory(t *testing.T) {
	for _, value := range []string{"", "yesterday-ish"} {
		row := validRow()
		row["Opened At"] = value
		_, _, err := newTestNormalizer().Normalize(1, row)
		var md *domain.MalformedDateError
		if !errors.As(err, &md) {
			t.Fatalf("opened=%q: expected MalformedDateError, got %v", value, err)
		}
	}
}

func TestNormalizeUnparsableResolvedAtIsUnresolved(t *testing.T) {
	row := validRow()
	row["Resolved At"] = "not a date"
	rec, warnings, err := newTestNormalizer().Normalize(1, row)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rec.IsResolved() {
		t.Fatal("expected record to be unresolved")
	}
	if rec.ResolutionHours != domain.UnresolvedSentinel {
		t.Fatalf("expected sentinel, got %f", rec.ResolutionHours)
	}
	if len(warnings) != 1 || warnings[0].Field != "Resolved At" {
		t.Fatalf("expected one Resolved At warning, got %v", warnings)
	}
}

func TestNormalizeInvertedTimestampsKeepsRecord(t *testing.T) {
	row := validRow()
	row["Resolved At"] = "2024-07-02 08:00:00"
	rec, warnings, err := newTestNormalizer().Normalize(1, row)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rec.ResolutionHours != domain.UnresolvedSentinel {
		t.Fatalf("inverted timestamps must yield sentinel, got %f", rec.ResolutionHours)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected an anomaly warning, got %v", warnings)
	}
}

func TestNormalizeMalformedPriorityDegrades(t *testing.T) {
	row := validRow()
	row["Priority"] = "Critical"
	rec, warnings, err := newTestNormalizer().Normalize(1, row)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rec.PriorityLevel != 0 || rec.PriorityLabel != "Unknown" {
		t.Fatalf("unexpected priority fallback: %d %q", rec.PriorityLevel, rec.PriorityLabel)
	}
	if len(warnings) != 1 || warnings[0].Field != "Priority" {
		t.Fatalf("expected a Priority warning, got %v", warnings)
	}
}

func TestNormalizeHeaderTolerance(t *testing.T) {
	row := map[string]string{
		"number":      "INC1",
		"STATE":       "New",
		"category":    "Software",
		"priority":    "3 - Moderate",
		"opened_at":   "07/01/2024 09:15",
		"Impact":      "3 - Low",
		"Urgency":     "3 - Low",
		"assigned_to": "",
	}
	rec, _, err := newTestNormalizer().Normalize(1, row)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := time.Date(2024, 7, 1, 9, 15, 0, 0, time.UTC)
	if !rec.OpenedAt.Equal(want) {
		t.Fatalf("opened = %s, want %s", rec.OpenedAt, want)
	}
	if rec.Severity != SeverityLow {
		t.Fatalf("unexpected severity: %q", rec.Severity)
	}
}

func TestSeverityTable(t *testing.T) {
	tests := []struct {
		impact, urgency string
		want            string
		known           bool
	}{
		{"1 - High", "1 - High", SeverityCritical, true},
		{"High", "Medium", SeverityHigh, true},
		{"2 - Medium", "1 - High", SeverityHigh, true},
		{"High", "Low", SeverityMedium, true},
		{"Medium", "Medium", SeverityMedium, true},
		{"Low", "High", SeverityMedium, true},
		{"Medium", "Low", SeverityLow, true},
		{"3 - Low", "2 - Medium", SeverityLow, true},
		{"Low", "Low", SeverityLow, true},
		{"Enormous", "High", SeverityMedium, false},
		{"", "", SeverityMedium, false},
	}
	for _, tt := range tests {
		got, known := Severity(tt.impact, tt.urgency)
		if got != tt.want || known != tt.known {
			t.Fatalf("Severity(%q,%q) = %q,%v want %q,%v", tt.impact, tt.urgency, got, known, tt.want, tt.known)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		raw   string
		level int
		label string
		ok    bool
	}{
		{"1 - Critical", 1, "Critical", true},
		{"4-Low", 4, "Low", true},
		{"12 - Odd", 0, "Unknown", false},
		{"P1", 0, "Unknown", false},
		{"3 - ", 0, "Unknown", false},
	}
	for _, tt := range tests {
		level, label, ok := ParsePriority(tt.raw)
		if level != tt.level || label != tt.label || ok != tt.ok {
			t.Fatalf("ParsePriority(%q) = %d,%q,%v", tt.raw, level, label, ok)
		}
	}
}

func TestResolutionDurationNonNegative(t *testing.T) {
	opened := "2024-01-01 00:00:00"
	for _, resolved := range []string{"2024-01-01 00:00:00", "2024-01-02 12:00:00", "2023-12-31 00:00:00", ""} {
		row := validRow()
		row["Opened At"] = opened
		row["Resolved At"] = resolved
		rec, _, err := newTestNormalizer().Normalize(1, row)
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		if rec.ResolutionHours < 0 && rec.ResolutionHours != domain.UnresolvedSentinel {
			t.Fatalf("resolved=%q: negative duration %f", resolved, rec.ResolutionHours)
		}
		if math.IsNaN(rec.ResolutionHours) {
			t.Fatalf("resolved=%q: NaN duration", resolved)
		}
	}
}
