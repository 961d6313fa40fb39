package domain

import "time"

type QueryType string

const (
	QueryAnalytical QueryType = "analytical"
	QueryTemporal   QueryType = "temporal"
	QueryCategory   QueryType = "category"
	QueryPriority   QueryType = "priority"
	QueryResolution QueryType = "resolution"
	QueryTeam       QueryType = "team"
	QueryDefault    QueryType = "default"
)

var queryTypes = map[QueryType]bool{
	QueryAnalytical: true,
	QueryTemporal:   true,
	QueryCategory:   true,
	QueryPriority:   true,
	QueryResolution: true,
	QueryTeam:       true,
	QueryDefault:    true,
}

func (q QueryType) Valid() bool {
	return queryTypes[q]
}

// DateRange is inclusive of From and exclusive of To. When YearKnown is
// false the year of From/To is a placeholder and must be resolved against
// a reference date before use.
type DateRange struct {
	From      time.Time
	To        time.Time
	YearKnown bool
}

type FilterHints struct {
	IncidentID    string
	DateRange     *DateRange
	PriorityLevel int
	Severity      string
	Team          string
}

func (h FilterHints) Empty() bool {
	return h.IncidentID == "" && h.DateRange == nil && h.PriorityLevel == 0 && h.Severity == "" && h.Team == ""
}

type QueryClassification struct {
	Type  QueryType
	K     int
	Hints FilterHints
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
