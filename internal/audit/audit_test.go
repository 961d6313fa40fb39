package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSinkWritesCountsNotValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pii_audit.log")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	f := NewFinding(KindIncident, "INC0010001", map[string]int{"PERSON": 2, "EMAIL_ADDRESS": 1})
	if err := sink.Record(context.Background(), f); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one audit line, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	if entry["subject"] != "INC0010001" || entry["kind"] != "incident" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["count_PERSON"] != float64(2) || entry["total"] != float64(3) {
		t.Fatalf("unexpected counts: %v", entry)
	}
}

type recordingSink struct {
	findings []Finding
	err      error
	closed   bool
}

func (r *recordingSink) Record(_ context.Context, f Finding) error {
	r.findings = append(r.findings, f)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiSinkFansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	sink := Multi(ok, nil, failing)

	err := sink.Record(context.Background(), NewFinding(KindQuery, "session-1", nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.findings) != 1 || len(failing.findings) != 1 {
		t.Fatalf("finding not delivered to every sink")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !ok.closed || !failing.closed {
		t.Fatal("expected every sink closed")
	}
}

func TestNewFindingCopiesCounts(t *testing.T) {
	counts := map[string]int{"PHONE_NUMBER": 1}
	f := NewFinding(KindQuery, "s", counts)
	counts["PHONE_NUMBER"] = 5
	if f.Counts["PHONE_NUMBER"] != 1 || f.Total != 1 {
		t.Fatalf("finding should not alias caller map: %+v", f)
	}
}
