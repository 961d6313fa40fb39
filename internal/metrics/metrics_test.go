package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersIncrement(t *testing.T) {
	before := testutil.ToFloat64(global().ingestRows.WithLabelValues("rejected"))
	RecordIngestRow("rejected")
	if got := testutil.ToFloat64(global().ingestRows.WithLabelValues("rejected")); got != before+1 {
		t.Fatalf("rejected rows = %v, want %v", got, before+1)
	}

	beforePII := testutil.ToFloat64(global().piiEntities.WithLabelValues("PERSON"))
	RecordPIIEntities(map[string]int{"PERSON": 3})
	if got := testutil.ToFloat64(global().piiEntities.WithLabelValues("PERSON")); got != beforePII+3 {
		t.Fatalf("person entities = %v, want %v", got, beforePII+3)
	}

	SetIndexSize(42)
	if got := testutil.ToFloat64(global().indexSize); got != 42 {
		t.Fatalf("index size = %v, want 42", got)
	}
}

func TestObserveExternalLabelsOutcome(t *testing.T) {
	ObserveExternal("embed")(nil)
	ObserveExternal("embed")(errors.New("boom"))
	if n := testutil.CollectAndCount(global().externalCall); n < 2 {
		t.Fatalf("expected ok and error series, got %d", n)
	}
}
