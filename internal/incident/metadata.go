package incident

import (
	"strconv"

	"incidentrag/internal/domain"
)

// Extract derives the index metadata for a normalized record. It is a pure
// function of rec. Year and month buckets follow the zone OpenedAt was read
// in, so they agree with the rendered chunk text.
func Extract(rec domain.IncidentRecord) domain.IncidentMetadata {
	opened := rec.OpenedAt
	hours := rec.ResolutionHours
	if !rec.IsResolved() {
		hours = domain.UnresolvedSentinel
	}
	return domain.IncidentMetadata{
		IncidentID:      rec.ID,
		Category:        rec.Category,
		Subcategory:     rec.Subcategory,
		PriorityLevel:   rec.PriorityLevel,
		Severity:        rec.Severity,
		State:           rec.State,
		Team:            rec.AssignmentGroup,
		OpenedAt:        opened.Unix(),
		Year:            strconv.Itoa(opened.Year()),
		YearMonth:       opened.Format("2006-01"),
		IsResolved:      rec.IsResolved(),
		ResolutionHours: hours,
	}
}
