package ingest

import (
	"fmt"
	"strings"
	"time"
)

const maxSummaryErrors = 10

// FormatSummary renders a Result for chat and log output.
func FormatSummary(r Result) string {
	if r.Rows == 0 {
		return "No incident rows found, nothing to index."
	}
	if r.Indexed == 0 && len(r.Errors) > 0 {
		return fmt.Sprintf("Indexed none of %d rows:\n%s", r.Rows, formatErrors(r.Errors))
	}

	parts := []string{fmt.Sprintf("%d indexed", r.Indexed)}
	if r.Rejected > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", r.Rejected))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", r.Warnings))
	}
	msg := fmt.Sprintf("Processed %d rows in %s: %s. PII entities redacted: %d.",
		r.Rows, r.Duration.Round(100*time.Millisecond), strings.Join(parts, ", "), r.PIIEntities)
	if len(r.Errors) > 0 {
		msg += "\nErrors:\n" + formatErrors(r.Errors)
	}
	return msg
}

func formatErrors(errs []string) string {
	if len(errs) <= maxSummaryErrors {
		return strings.Join(errs, "\n")
	}
	shown := strings.Join(errs[:maxSummaryErrors], "\n")
	return fmt.Sprintf("%s\n... and %d more", shown, len(errs)-maxSummaryErrors)
}
