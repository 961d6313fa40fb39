package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"incidentrag/internal/domain"
	"incidentrag/internal/incident"
)

// placeholderYear stands in for a year the question did not name. It is a
// leap year so "Feb 29" survives until the planner picks the real year.
const placeholderYear = 2000

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	incidentIDRe  = regexp.MustCompile(`(?i)\bINC\d+\b`)
	isoRangeRe    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\s*(?:to|and|through|until|-)\s*(\d{4}-\d{2}-\d{2})\b`)
	dayRangeRe    = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})\s*(?:-|to|through|until)\s*(\d{1,2})(?:(?:,\s*|\s+)(\d{4}))?\b`)
	monthYearRe   = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{4})\b`)
	pLevelRe      = regexp.MustCompile(`(?i)\bp([1-5])\b`)
	priorityNumRe = regexp.MustCompile(`(?i)\bpriority\s*(?:level\s*)?([1-5])\b`)
	severityRe    = regexp.MustCompile(`(?i)\b(critical|high|medium|low)\s+severity\b|\bseverity\s*(?:of|is|=|:)?\s*(critical|high|medium|low)\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func parseMonth(s string) time.Month {
	s = strings.ToLower(s)
	if len(s) > 3 {
		s = s[:3]
	}
	return months[s]
}

func incidentID(q string) string {
	return strings.ToUpper(incidentIDRe.FindString(q))
}

// dateRange reads the first date range in q as whole days in loc.
func dateRange(q string, loc *time.Location) *domain.DateRange {
	if m := isoRangeRe.FindStringSubmatch(q); m != nil {
		from, err1 := time.ParseInLocation("2006-01-02", m[1], loc)
		to, err2 := time.ParseInLocation("2006-01-02", m[2], loc)
		if err1 == nil && err2 == nil && !to.Before(from) {
			return &domain.DateRange{From: from, To: to.AddDate(0, 0, 1), YearKnown: true}
		}
	}
	if m := dayRangeRe.FindStringSubmatch(q); m != nil {
		month := parseMonth(m[1])
		d1, _ := strconv.Atoi(m[2])
		d2, _ := strconv.Atoi(m[3])
		year, known := placeholderYear, false
		if m[4] != "" {
			year, _ = strconv.Atoi(m[4])
			known = true
		}
		if month != 0 && validDay(year, month, d1) && validDay(year, month, d2) && d1 <= d2 {
			return &domain.DateRange{
				From:      time.Date(year, month, d1, 0, 0, 0, 0, loc),
				To:        time.Date(year, month, d2+1, 0, 0, 0, 0, loc),
				YearKnown: known,
			}
		}
	}
	if m := monthYearRe.FindStringSubmatch(q); m != nil {
		month := parseMonth(m[1])
		year, _ := strconv.Atoi(m[2])
		if month != 0 {
			from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
			return &domain.DateRange{From: from, To: from.AddDate(0, 1, 0), YearKnown: true}
		}
	}
	return nil
}

func validDay(year int, month time.Month, day int) bool {
	if day < 1 {
		return false
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return day <= last
}

func priorityLevel(q string) int {
	if m := pLevelRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := priorityNumRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	lower := strings.ToLower(q)
	// A severity phrase names severity, not priority.
	if severityRe.MatchString(q) {
		return 0
	}
	switch {
	case strings.Contains(lower, "critical"):
		return 1
	case strings.Contains(lower, "high priority"):
		return 2
	}
	return 0
}

func severity(q string) string {
	m := severityRe.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	level := m[1]
	if level == "" {
		level = m[2]
	}
	switch strings.ToLower(level) {
	case "critical":
		return incident.SeverityCritical
	case "high":
		return incident.SeverityHigh
	case "medium":
		return incident.SeverityMedium
	default:
		return incident.SeverityLow
	}
}
