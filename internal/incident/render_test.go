package incident

import (
	"strings"
	"testing"
)

func TestRenderSectionsAreStable(t *testing.T) {
	rec, _, err := newTestNormalizer().Normalize(1, validRow())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	text := Render(rec, RedactedFields{
		ShortDescription: "VPN drops every 10 minutes",
		Notes:            "User [EMAIL] reports tunnel resets.",
		AssignedTo:       "[PERSON]",
	})

	headers := []string{
		"=== Incident Details ===",
		"=== Classification ===",
		"=== Priority Assessment ===",
		"=== Timeline ===",
		"=== Support Details ===",
		"=== Description ===",
		"=== Detailed Notes ===",
	}
	last := -1
	for _, h := range headers {
		idx := strings.Index(text, h)
		if idx < 0 {
			t.Fatalf("missing header %q in:\n%s", h, text)
		}
		if idx < last {
			t.Fatalf("header %q out of order", h)
		}
		last = idx
	}
	for _, want := range []string{
		"Incident Number: INC0010001",
		"Priority: 2 - High",
		"Overall Severity: High",
		"Resolution Time: 6.50 hours",
		"Assigned To: [PERSON]",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRenderUsesOnlyRedactedFreeText(t *testing.T) {
	rec, _, err := newTestNormalizer().Normalize(1, validRow())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	text := Render(rec, RedactedFields{
		ShortDescription: "VPN drops every 10 minutes",
		Notes:            "User [EMAIL] reports tunnel resets.",
		AssignedTo:       "[PERSON]",
	})
	for _, raw := range []string{"jane.doe@example.com", "Jane Doe"} {
		if strings.Contains(text, raw) {
			t.Fatalf("rendered chunk leaked %q:\n%s", raw, text)
		}
	}
}

func TestRenderMissingValuesAreExplicit(t *testing.T) {
	row := validRow()
	row["Resolved At"] = ""
	row["Subcategory"] = ""
	rec, _, err := newTestNormalizer().Normalize(1, row)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	text := Render(rec, RedactedFields{})

	for _, want := range []string{
		"Subcategory: Not available",
		"Resolved: Not available",
		"Resolution Time: Not available",
		"Assigned To: Not available",
		"Summary: Not available",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, "=== Detailed Notes ===\nNot available\n") {
		t.Fatalf("notes section should render the marker, got:\n%s", text)
	}
}

func TestBuildChunkCarriesMetadata(t *testing.T) {
	rec, _, err := newTestNormalizer().Normalize(1, validRow())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	chunk := BuildChunk(rec, RedactedFields{})
	if chunk.IncidentID != rec.ID || chunk.Metadata.IncidentID != rec.ID {
		t.Fatalf("chunk ids do not match record: %+v", chunk)
	}
}
