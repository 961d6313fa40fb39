package ingest

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFormatSummaryEmpty(t *testing.T) {
	if got := FormatSummary(Result{}); !strings.Contains(got, "nothing to index") {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestFormatSummaryAllRejected(t *testing.T) {
	got := FormatSummary(Result{Rows: 2, Rejected: 2, Errors: []string{"row 1: bad", "row 2: bad"}})
	if !strings.HasPrefix(got, "Indexed none of 2 rows:") || !strings.Contains(got, "row 2: bad") {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestFormatSummaryMixed(t *testing.T) {
	got := FormatSummary(Result{Rows: 5, Indexed: 3, Rejected: 1, Failed: 1, Warnings: 2, PIIEntities: 7, Duration: 1250 * time.Millisecond, Errors: []string{"row 4: x", "row 5: y"}})
	want := "Processed 5 rows in 1.3s: 3 indexed, 1 rejected, 1 failed, 2 warnings. PII entities redacted: 7.\nErrors:\nrow 4: x\nrow 5: y"
	if got != want {
		t.Fatalf("summary mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatSummaryTruncatesErrors(t *testing.T) {
	var errs []string
	for i := 1; i <= 13; i++ {
		errs = append(errs, fmt.Sprintf("row %d: bad", i))
	}
	got := FormatSummary(Result{Rows: 20, Indexed: 7, Rejected: 13, Errors: errs})
	if !strings.HasSuffix(got, "... and 3 more") || strings.Contains(got, "row 11:") {
		t.Fatalf("errors not truncated: %q", got)
	}
}
