package retrieval

import (
	"errors"
	"testing"
	"time"

	"incidentrag/internal/domain"
)

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		ok   bool
	}{
		{"eq string", Eq(FieldCategory, "Network"), true},
		{"eq number", Eq(FieldPriorityLevel, 1), true},
		{"in", In(FieldSeverity, "High", "Critical"), true},
		{"range", Range(FieldResolutionHours, 0, 24), true},
		{"unknown field", Eq(Field("colour"), "red"), false},
		{"wrong type", Eq(FieldPriorityLevel, "one"), false},
		{"range on string", Range(FieldCategory, 0, 1), false},
		{"empty range", Range(FieldTimestamp, 5, 5), false},
		{"empty in", In(FieldTeam), false},
		{"bool", Eq(FieldIsResolved, true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilter(tt.cond)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrInvalidFilter) {
				t.Fatalf("expected ErrInvalidFilter, got %v", err)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	md := domain.IncidentMetadata{
		IncidentID:      "INC1",
		Category:        "Network",
		PriorityLevel:   2,
		Severity:        "High",
		Team:            "Network Operations",
		OpenedAt:        time.Date(2024, 7, 3, 9, 0, 0, 0, time.UTC).Unix(),
		IsResolved:      true,
		ResolutionHours: 6.5,
	}
	f, err := NewFilter(
		Eq(FieldCategory, "network"),
		Eq(FieldPriorityLevel, 2),
		In(FieldSeverity, "Critical", "High"),
		Range(FieldResolutionHours, 0, 24),
		Eq(FieldIsResolved, true),
	)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if !f.Match(md) {
		t.Fatal("expected match")
	}
	md.ResolutionHours = 24
	if f.Match(md) {
		t.Fatal("range upper bound must be exclusive")
	}
	var nilFilter *Filter
	if !nilFilter.Match(md) {
		t.Fatal("nil filter should match everything")
	}
}

func TestFromHintsResolvesYearlessRange(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	hints := domain.FilterHints{DateRange: &domain.DateRange{
		From: time.Date(2000, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2000, 7, 16, 0, 0, 0, 0, time.UTC),
	}}
	f, err := FromHints(hints, now)
	if err != nil {
		t.Fatalf("FromHints: %v", err)
	}
	c := f.Conditions[0]
	if c.Field != FieldTimestamp || c.Op != OpRange {
		t.Fatalf("unexpected condition %+v", c)
	}
	wantFrom := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC)
	if c.Min != float64(wantFrom.Unix()) || c.Max != float64(wantTo.Unix()) {
		t.Fatalf("got [%v, %v)", time.Unix(int64(c.Min), 0).UTC(), time.Unix(int64(c.Max), 0).UTC())
	}
}

func TestResolveYear(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		from     time.Time
		wantYear int
	}{
		{"earlier this year", time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC), 2025},
		{"later in the year", time.Date(2000, 7, 1, 0, 0, 0, 0, time.UTC), 2024},
		{"leap day", time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), 2024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResolveYear(domain.DateRange{From: tt.from, To: tt.from.AddDate(0, 0, 1)}, now)
			if r.From.Year() != tt.wantYear || !r.YearKnown {
				t.Fatalf("got %v", r.From)
			}
			if r.From.Month() != tt.from.Month() || r.From.Day() != tt.from.Day() {
				t.Fatalf("month/day changed: %v", r.From)
			}
		})
	}
}

func TestFromHintsEmpty(t *testing.T) {
	f, err := FromHints(domain.FilterHints{}, time.Now())
	if err != nil || f != nil {
		t.Fatalf("expected nil filter, got %+v %v", f, err)
	}
}

func TestFromHintsKeepsRangeZone(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	opened := time.Date(2024, 12, 31, 22, 0, 0, 0, est)
	md := domain.IncidentMetadata{IncidentID: "INC1", OpenedAt: opened.Unix()}

	known := domain.FilterHints{DateRange: &domain.DateRange{
		From:      time.Date(2024, 12, 1, 0, 0, 0, 0, est),
		To:        time.Date(2025, 1, 1, 0, 0, 0, 0, est),
		YearKnown: true,
	}}
	f, err := FromHints(known, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FromHints: %v", err)
	}
	if !f.Match(md) {
		t.Fatal("late-evening Dec 31 incident should fall inside December")
	}

	yearless := domain.FilterHints{DateRange: &domain.DateRange{
		From: time.Date(2000, 12, 1, 0, 0, 0, 0, est),
		To:   time.Date(2001, 1, 1, 0, 0, 0, 0, est),
	}}
	f, err = FromHints(yearless, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FromHints: %v", err)
	}
	if !f.Match(md) {
		t.Fatal("year-less December should resolve to December 2024 in EST")
	}
	if f.Match(domain.IncidentMetadata{OpenedAt: time.Date(2025, 1, 1, 0, 30, 0, 0, est).Unix()}) {
		t.Fatal("Jan 1 local time should be outside the range")
	}
}

func TestResolveYearCrossesYearEnd(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := ResolveYear(domain.DateRange{
		From: time.Date(2000, 12, 25, 0, 0, 0, 0, loc),
		To:   time.Date(2001, 1, 3, 0, 0, 0, 0, loc),
	}, now)
	wantFrom := time.Date(2024, 12, 25, 0, 0, 0, 0, loc)
	wantTo := time.Date(2025, 1, 3, 0, 0, 0, 0, loc)
	if !r.From.Equal(wantFrom) || !r.To.Equal(wantTo) {
		t.Fatalf("got [%v, %v), want [%v, %v)", r.From, r.To, wantFrom, wantTo)
	}
	if r.From.Location() != loc {
		t.Fatalf("zone changed to %v", r.From.Location())
	}
}
