package audit

import (
	"context"
	"errors"
	"sort"
	"time"
)

const (
	KindIncident = "incident"
	KindQuery    = "query"
)

// Finding is one compliance line: which entity types were redacted from a
// subject and how often. Raw values never reach a Finding.
type Finding struct {
	Kind    string         `json:"kind"`
	Subject string         `json:"subject"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
	At      time.Time      `json:"at"`
}

func NewFinding(kind, subject string, counts map[string]int) Finding {
	total := 0
	copied := make(map[string]int, len(counts))
	for k, v := range counts {
		copied[k] = v
		total += v
	}
	return Finding{Kind: kind, Subject: subject, Counts: copied, Total: total, At: time.Now().UTC()}
}

// Types returns the entity types present in the finding, sorted.
func (f Finding) Types() []string {
	out := make([]string, 0, len(f.Counts))
	for k := range f.Counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sink receives compliance findings. Implementations must be safe for
// concurrent use; Close flushes and releases resources.
type Sink interface {
	Record(ctx context.Context, f Finding) error
	Close() error
}

type multiSink struct {
	sinks []Sink
}

// Multi fans a finding out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	var kept []Sink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &multiSink{sinks: kept}
}

func (m *multiSink) Record(ctx context.Context, f Finding) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopSink struct{}

func Nop() Sink { return nopSink{} }

func (nopSink) Record(context.Context, Finding) error { return nil }
func (nopSink) Close() error                          { return nil }
