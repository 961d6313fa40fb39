package incident

import (
	"fmt"
	"strings"
	"time"

	"incidentrag/internal/domain"
)

const NotAvailable = "Not available"

const timeLayout = "2006-01-02 15:04:05"

// RedactedFields holds the anonymizer output for the free-text fields.
// Render never reads these fields from the record itself.
type RedactedFields struct {
	ShortDescription string
	Notes            string
	AssignedTo       string
}

// Render produces the structured document that gets embedded. Section
// headers are stable; missing values render as "Not available".
func Render(rec domain.IncidentRecord, redacted RedactedFields) string {
	var b strings.Builder

	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n", title)
	}
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s: %s\n", label, orNA(value))
	}

	section("Incident Details")
	line("Incident Number", rec.ID)
	line("Status", rec.State)

	section("Classification")
	line("Category", rec.Category)
	line("Subcategory", rec.Subcategory)

	section("Priority Assessment")
	line("Impact", rec.Impact)
	line("Urgency", rec.Urgency)
	line("Priority", priorityText(rec))
	line("Overall Severity", rec.Severity)

	section("Timeline")
	line("Opened", formatTime(&rec.OpenedAt))
	line("Resolved", formatTime(rec.ResolvedAt))
	resolution := ""
	if rec.IsResolved() && rec.ResolutionHours >= 0 {
		resolution = fmt.Sprintf("%.2f hours", rec.ResolutionHours)
	}
	line("Resolution Time", resolution)

	section("Support Details")
	line("Assignment Group", rec.AssignmentGroup)
	line("Assigned To", redacted.AssignedTo)

	section("Description")
	line("Summary", redacted.ShortDescription)

	section("Detailed Notes")
	b.WriteString(orNA(redacted.Notes))
	b.WriteString("\n")

	return b.String()
}

// BuildChunk renders rec and attaches its metadata.
func BuildChunk(rec domain.IncidentRecord, redacted RedactedFields) domain.TextChunk {
	return domain.TextChunk{
		IncidentID: rec.ID,
		Text:       Render(rec, redacted),
		Metadata:   Extract(rec),
	}
}

func priorityText(rec domain.IncidentRecord) string {
	if rec.PriorityLevel == 0 {
		return rec.PriorityLabel
	}
	return fmt.Sprintf("%d - %s", rec.PriorityLevel, rec.PriorityLabel)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return strings.TrimSpace(s)
}
