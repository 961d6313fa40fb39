package domain

import "time"

// UnresolvedSentinel is the resolution duration recorded for incidents that
// have no usable resolution timestamp.
const UnresolvedSentinel = -1.0

const UnknownPriorityLabel = "Unknown"

type IncidentRecord struct {
	ID               string
	State            string
	Category         string
	Subcategory      string
	Impact           string
	Urgency          string
	PriorityLevel    int
	PriorityLabel    string
	PriorityRaw      string
	OpenedAt         time.Time
	ResolvedAt       *time.Time // nil when missing or unparsable
	AssignmentGroup  string
	AssignedTo       string
	ShortDescription string
	Notes            string

	// Derived at normalization time.
	Severity        string
	ResolutionHours float64
}

// IsResolved reports whether the record carries a usable resolution time.
func (r IncidentRecord) IsResolved() bool {
	return r.ResolvedAt != nil
}

type IncidentMetadata struct {
	IncidentID      string  `json:"incident_id"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory"`
	PriorityLevel   int     `json:"priority_level"`
	Severity        string  `json:"severity"`
	State           string  `json:"state"`
	Team            string  `json:"team"`
	OpenedAt        int64   `json:"timestamp"`
	Year            string  `json:"year"`
	YearMonth       string  `json:"year_month"`
	IsResolved      bool    `json:"is_resolved"`
	ResolutionHours float64 `json:"resolution_hours"`
}

type TextChunk struct {
	IncidentID string
	Text       string
	Metadata   IncidentMetadata
}

// AnomalyWarning flags a row that was kept but needed a fallback value.
type AnomalyWarning struct {
	IncidentID string
	Field      string
	Reason     string
}

func (w AnomalyWarning) String() string {
	return w.IncidentID + ": " + w.Field + ": " + w.Reason
}
