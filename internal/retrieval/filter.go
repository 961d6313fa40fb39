package retrieval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentrag/internal/domain"
)

type Field string

const (
	FieldIncidentID      Field = "incident_id"
	FieldCategory        Field = "category"
	FieldSubcategory     Field = "subcategory"
	FieldPriorityLevel   Field = "priority_level"
	FieldSeverity        Field = "severity"
	FieldState           Field = "state"
	FieldTeam            Field = "team"
	FieldTimestamp       Field = "timestamp"
	FieldYear            Field = "year"
	FieldYearMonth       Field = "year_month"
	FieldIsResolved      Field = "is_resolved"
	FieldResolutionHours Field = "resolution_hours"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
)

var fieldKinds = map[Field]fieldKind{
	FieldIncidentID:      kindString,
	FieldCategory:        kindString,
	FieldSubcategory:     kindString,
	FieldPriorityLevel:   kindNumber,
	FieldSeverity:        kindString,
	FieldState:           kindString,
	FieldTeam:            kindString,
	FieldTimestamp:       kindNumber,
	FieldYear:            kindString,
	FieldYearMonth:       kindString,
	FieldIsResolved:      kindBool,
	FieldResolutionHours: kindNumber,
}

type Op string

const (
	OpEq    Op = "eq"
	OpIn    Op = "in"
	OpRange Op = "range"
)

// Condition is one tagged test on a metadata field. Range is half-open:
// Min <= v < Max.
type Condition struct {
	Field  Field
	Op     Op
	Value  any
	Values []any
	Min    float64
	Max    float64
}

func Eq(field Field, v any) Condition { return Condition{Field: field, Op: OpEq, Value: v} }

func In(field Field, vs ...any) Condition { return Condition{Field: field, Op: OpIn, Values: vs} }

func Range(field Field, min, max float64) Condition {
	return Condition{Field: field, Op: OpRange, Min: min, Max: max}
}

// Filter is a conjunction of conditions.
type Filter struct {
	Conditions []Condition
}

func NewFilter(conds ...Condition) (*Filter, error) {
	f := &Filter{Conditions: conds}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Filter) Empty() bool {
	return f == nil || len(f.Conditions) == 0
}

// Validate checks every condition against the known metadata fields.
// Errors wrap domain.ErrInvalidFilter.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	var errs []error
	for i, c := range f.Conditions {
		if err := c.validate(); err != nil {
			errs = append(errs, fmt.Errorf("condition %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}
	return nil
}

func (c Condition) validate() error {
	kind, ok := fieldKinds[c.Field]
	if !ok {
		return fmt.Errorf("unknown field %q", c.Field)
	}
	switch c.Op {
	case OpEq:
		return checkKind(c.Field, kind, c.Value)
	case OpIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("field %s: in needs at least one value", c.Field)
		}
		for _, v := range c.Values {
			if err := checkKind(c.Field, kind, v); err != nil {
				return err
			}
		}
		return nil
	case OpRange:
		if kind != kindNumber {
			return fmt.Errorf("field %s: range needs a numeric field", c.Field)
		}
		if c.Max <= c.Min {
			return fmt.Errorf("field %s: empty range [%v, %v)", c.Field, c.Min, c.Max)
		}
		return nil
	default:
		return fmt.Errorf("field %s: unknown op %q", c.Field, c.Op)
	}
}

func checkKind(field Field, kind fieldKind, v any) error {
	switch kind {
	case kindString:
		if _, ok := v.(string); ok {
			return nil
		}
	case kindNumber:
		if _, ok := toFloat(v); ok {
			return nil
		}
	case kindBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	}
	return fmt.Errorf("field %s: value %v has the wrong type", field, v)
}

// Match reports whether md satisfies every condition. A nil filter
// matches everything.
func (f *Filter) Match(md domain.IncidentMetadata) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Conditions {
		if !c.match(md) {
			return false
		}
	}
	return true
}

func (c Condition) match(md domain.IncidentMetadata) bool {
	got := fieldValue(md, c.Field)
	switch c.Op {
	case OpEq:
		return equal(got, c.Value)
	case OpIn:
		for _, v := range c.Values {
			if equal(got, v) {
				return true
			}
		}
		return false
	case OpRange:
		n, ok := toFloat(got)
		return ok && n >= c.Min && n < c.Max
	}
	return false
}

func fieldValue(md domain.IncidentMetadata, f Field) any {
	switch f {
	case FieldIncidentID:
		return md.IncidentID
	case FieldCategory:
		return md.Category
	case FieldSubcategory:
		return md.Subcategory
	case FieldPriorityLevel:
		return md.PriorityLevel
	case FieldSeverity:
		return md.Severity
	case FieldState:
		return md.State
	case FieldTeam:
		return md.Team
	case FieldTimestamp:
		return md.OpenedAt
	case FieldYear:
		return md.Year
	case FieldYearMonth:
		return md.YearMonth
	case FieldIsResolved:
		return md.IsResolved
	case FieldResolutionHours:
		return md.ResolutionHours
	}
	return nil
}

func equal(got, want any) bool {
	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		return ok && strings.EqualFold(g, w)
	case bool:
		w, ok := want.(bool)
		return ok && g == w
	}
	gn, ok1 := toFloat(got)
	wn, ok2 := toFloat(want)
	return ok1 && ok2 && gn == wn
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// FromHints turns classifier hints into a filter. Year-less date ranges
// are placed in the most recent year that does not start in the future.
// Returns nil when there are no hints.
func FromHints(h domain.FilterHints, now time.Time) (*Filter, error) {
	if h.Empty() {
		return nil, nil
	}
	var conds []Condition
	if h.IncidentID != "" {
		conds = append(conds, Eq(FieldIncidentID, h.IncidentID))
	}
	if h.DateRange != nil {
		r := ResolveYear(*h.DateRange, now)
		conds = append(conds, Range(FieldTimestamp, float64(r.From.Unix()), float64(r.To.Unix())))
	}
	if h.PriorityLevel != 0 {
		conds = append(conds, Eq(FieldPriorityLevel, h.PriorityLevel))
	}
	if h.Severity != "" {
		conds = append(conds, Eq(FieldSeverity, h.Severity))
	}
	if h.Team != "" {
		conds = append(conds, Eq(FieldTeam, h.Team))
	}
	return NewFilter(conds...)
}

// ResolveYear places a year-less range in the zone it was built in. Days
// are shifted on the calendar, so a range that crosses a DST change keeps
// whole local days.
func ResolveYear(r domain.DateRange, now time.Time) domain.DateRange {
	if r.YearKnown {
		return r
	}
	loc := r.From.Location()
	now = now.In(loc)
	shift := func(t time.Time, years int) time.Time {
		return time.Date(t.Year()+years, t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	for year := now.Year(); year > now.Year()-8; year-- {
		from := shift(r.From, year-r.From.Year())
		if from.Month() != r.From.Month() || from.After(now) {
			continue
		}
		return domain.DateRange{From: from, To: shift(r.To, year-r.From.Year()), YearKnown: true}
	}
	years := now.Year() - 1 - r.From.Year()
	return domain.DateRange{From: shift(r.From, years), To: shift(r.To, years), YearKnown: true}
}
