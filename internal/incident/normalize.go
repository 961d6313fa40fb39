package incident

import (
	"strconv"
	"strings"
	"time"

	"incidentrag/internal/domain"
	"incidentrag/internal/logger"
)

// Column names of the ingestion table.
const (
	ColNumber           = "Number"
	ColState            = "State"
	ColCategory         = "Category"
	ColSubcategory      = "Subcategory"
	ColImpact           = "Impact"
	ColUrgency          = "Urgency"
	ColPriority         = "Priority"
	ColOpenedAt         = "Opened At"
	ColResolvedAt       = "Resolved At"
	ColAssignmentGroup  = "Assignment Group"
	ColAssignedTo       = "Assigned To"
	ColShortDescription = "Short Description"
	ColNotes            = "Notes"
)

var Columns = []string{
	ColNumber, ColState, ColCategory, ColSubcategory, ColImpact, ColUrgency,
	ColPriority, ColOpenedAt, ColResolvedAt, ColAssignmentGroup, ColAssignedTo,
	ColShortDescription, ColNotes,
}

var requiredColumns = []string{ColNumber, ColState, ColCategory, ColPriority}

type Normalizer struct {
	log *logger.Logger
	loc *time.Location
}

func NewNormalizer(log *logger.Logger, loc *time.Location) *Normalizer {
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{log: log.With("component", "normalizer"), loc: loc}
}

// Normalize turns one raw row into an IncidentRecord. line is the 1-based
// data row number used in error messages. A returned error means the row
// must be skipped; warnings describe fallbacks applied to a kept row.
func (n *Normalizer) Normalize(line int, row map[string]string) (domain.IncidentRecord, []domain.AnomalyWarning, error) {
	fields := canonicalize(row)
	get := func(col string) string { return fields[columnKey(col)] }

	for _, col := range requiredColumns {
		if get(col) == "" {
			return domain.IncidentRecord{}, nil, &domain.MissingFieldError{Row: line, Field: col}
		}
	}

	rec := domain.IncidentRecord{
		ID:               get(ColNumber),
		State:            get(ColState),
		Category:         get(ColCategory),
		Subcategory:      get(ColSubcategory),
		Impact:           get(ColImpact),
		Urgency:          get(ColUrgency),
		PriorityRaw:      get(ColPriority),
		AssignmentGroup:  get(ColAssignmentGroup),
		AssignedTo:       get(ColAssignedTo),
		ShortDescription: get(ColShortDescription),
		Notes:            get(ColNotes),
	}

	opened, ok := parseDate(get(ColOpenedAt), n.loc)
	if !ok {
		return domain.IncidentRecord{}, nil, &domain.MalformedDateError{Row: line, Field: ColOpenedAt, Value: get(ColOpenedAt)}
	}
	rec.OpenedAt = opened

	var warnings []domain.AnomalyWarning
	warn := func(field, reason string) {
		w := domain.AnomalyWarning{IncidentID: rec.ID, Field: field, Reason: reason}
		warnings = append(warnings, w)
		n.log.Warn("incident anomaly", "incident_id", rec.ID, "row", line, "field", field, "reason", reason)
	}

	if raw := get(ColResolvedAt); raw != "" {
		if resolved, ok := parseDate(raw, n.loc); ok {
			rec.ResolvedAt = &resolved
		} else {
			warn(ColResolvedAt, "unparsable value "+strconv.Quote(raw)+", treated as unresolved")
		}
	}

	level, label, ok := ParsePriority(rec.PriorityRaw)
	if !ok {
		warn(ColPriority, "malformed priority "+strconv.Quote(rec.PriorityRaw))
	}
	rec.PriorityLevel, rec.PriorityLabel = level, label

	sev, ok := Severity(rec.Impact, rec.Urgency)
	if !ok {
		warn("Severity", "unknown impact/urgency combination "+strconv.Quote(rec.Impact)+"/"+strconv.Quote(rec.Urgency)+", defaulted to Medium")
	}
	rec.Severity = sev

	rec.ResolutionHours = domain.UnresolvedSentinel
	if rec.ResolvedAt != nil {
		if rec.ResolvedAt.Before(rec.OpenedAt) {
			warn(ColResolvedAt, "resolved before opened, resolution duration not computed")
		} else {
			rec.ResolutionHours = rec.ResolvedAt.Sub(rec.OpenedAt).Hours()
		}
	}

	return rec, warnings, nil
}

// ParsePriority splits "<digit> - <label>". Malformed input yields level 0
// and label "Unknown".
func ParsePriority(raw string) (int, string, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return 0, domain.UnknownPriorityLabel, false
	}
	digits := strings.TrimSpace(parts[0])
	label := strings.TrimSpace(parts[1])
	if len(digits) != 1 || digits[0] < '0' || digits[0] > '9' || label == "" {
		return 0, domain.UnknownPriorityLabel, false
	}
	return int(digits[0] - '0'), label, true
}

func canonicalize(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[columnKey(k)] = strings.TrimSpace(v)
	}
	return out
}

// columnKey makes header matching tolerant of case, spacing and
// underscores ("Opened At", "opened_at", "OPENEDAT").
func columnKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == ' ' || r == '_' || r == '\t' || r == '\ufeff' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
