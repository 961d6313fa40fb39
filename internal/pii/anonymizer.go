package pii

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"incidentrag/internal/audit"
	"incidentrag/internal/config"
	"incidentrag/internal/domain"
	"incidentrag/internal/incident"
	"incidentrag/internal/logger"
	"incidentrag/internal/metrics"
)

// Options is the validated form of config.PIIConfig.
type Options struct {
	Enabled          bool
	Entities         []domain.EntityType
	Excluded         []domain.EntityType
	MinConfidence    float64
	LogFindings      bool
	FailOpen         bool
	PreservePatterns []*regexp.Regexp
}

func OptionsFromConfig(cfg config.PIIConfig) (Options, error) {
	opts := Options{
		Enabled:       cfg.IsEnabled(),
		MinConfidence: cfg.MinConfidence,
		LogFindings:   cfg.ShouldLogFindings(),
		FailOpen:      cfg.FailOpen,
	}
	for _, raw := range cfg.Entities {
		t, ok := domain.ParseEntityType(raw)
		if !ok {
			return Options{}, fmt.Errorf("unknown pii entity %q", raw)
		}
		opts.Entities = append(opts.Entities, t)
	}
	for _, raw := range cfg.ExcludedEntities {
		t, ok := domain.ParseEntityType(raw)
		if !ok {
			return Options{}, fmt.Errorf("unknown excluded pii entity %q", raw)
		}
		opts.Excluded = append(opts.Excluded, t)
	}
	for _, raw := range cfg.PreservePatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return Options{}, fmt.Errorf("invalid preserve pattern %q: %w", raw, err)
		}
		opts.PreservePatterns = append(opts.PreservePatterns, re)
	}
	return opts, nil
}

// Result is one anonymized text. Entities carry offsets into the input
// text, ordered by Start.
type Result struct {
	Text     string
	Entities []domain.PIIEntity
}

// Counts tallies entities by type name.
func (r Result) Counts() map[string]int {
	out := make(map[string]int)
	for _, e := range r.Entities {
		out[string(e.Type)]++
	}
	return out
}

type Anonymizer struct {
	det         Detector
	opts        Options
	sink        audit.Sink
	log         *logger.Logger
	inScope     map[domain.EntityType]bool
	placeholder *regexp.Regexp
}

func New(det Detector, opts Options, sink audit.Sink, log *logger.Logger) *Anonymizer {
	if sink == nil {
		sink = audit.Nop()
	}
	if log == nil {
		log = logger.Nop()
	}
	entities := opts.Entities
	if len(entities) == 0 {
		entities = domain.DefaultEntities
	}
	scope := make(map[domain.EntityType]bool, len(entities))
	for _, t := range entities {
		scope[t] = true
	}
	for _, t := range opts.Excluded {
		delete(scope, t)
	}

	tokens := domain.Placeholders()
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	return &Anonymizer{
		det:         det,
		opts:        opts,
		sink:        sink,
		log:         log,
		inScope:     scope,
		placeholder: regexp.MustCompile(strings.Join(quoted, "|")),
	}
}

func (a *Anonymizer) Enabled() bool { return a.opts.Enabled }

// Anonymize replaces every accepted entity in text with its placeholder.
// A detector failure yields a PIIDetectorUnavailable error unless the
// anonymizer was configured to fail open.
func (a *Anonymizer) Anonymize(ctx context.Context, text string) (Result, error) {
	if !a.opts.Enabled || strings.TrimSpace(text) == "" {
		return Result{Text: text}, nil
	}
	hits, err := a.det.Detect(ctx, text)
	if err != nil {
		if a.opts.FailOpen {
			a.log.Warn("pii detector unavailable, passing text through", "error", err)
			return Result{Text: text}, nil
		}
		return Result{}, err
	}
	accepted := a.resolve(text, hits)
	return Result{Text: substitute(text, accepted), Entities: accepted}, nil
}

// resolve drops hits that are out of scope, below threshold or inside a
// preserved span, then keeps the best of any overlapping group: higher
// score first, then the longer span, then the earlier one.
func (a *Anonymizer) resolve(text string, hits []Detection) []domain.PIIEntity {
	preserved := a.preservedSpans(text)
	candidates := make([]Detection, 0, len(hits))
	for _, h := range hits {
		if !a.inScope[h.Type] || h.Score < a.opts.MinConfidence {
			continue
		}
		if h.Start < 0 || h.End > len(text) || h.Start >= h.End {
			continue
		}
		if overlapsAny(h.Start, h.End, preserved) {
			continue
		}
		candidates = append(candidates, h)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Score != cj.Score {
			return ci.Score > cj.Score
		}
		if li, lj := ci.End-ci.Start, cj.End-cj.Start; li != lj {
			return li > lj
		}
		return ci.Start < cj.Start
	})

	var taken [][2]int
	var out []domain.PIIEntity
	for _, c := range candidates {
		if overlapsAny(c.Start, c.End, taken) {
			continue
		}
		taken = append(taken, [2]int{c.Start, c.End})
		out = append(out, domain.PIIEntity{
			Type:        c.Type,
			Start:       c.Start,
			End:         c.End,
			Score:       c.Score,
			Placeholder: c.Type.Placeholder(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (a *Anonymizer) preservedSpans(text string) [][2]int {
	var spans [][2]int
	for _, loc := range a.placeholder.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	for _, re := range a.opts.PreservePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	return spans
}

func overlapsAny(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

func substitute(text string, entities []domain.PIIEntity) string {
	if len(entities) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, e := range entities {
		b.WriteString(text[prev:e.Start])
		b.WriteString(e.Placeholder)
		prev = e.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// AnonymizeRecord redacts the free-text fields of one incident and writes
// a single compliance line with the combined counts. Structured fields are
// never scanned.
func (a *Anonymizer) AnonymizeRecord(ctx context.Context, rec domain.IncidentRecord) (incident.RedactedFields, map[string]int, error) {
	counts := make(map[string]int)
	merge := func(r Result) {
		for k, v := range r.Counts() {
			counts[k] += v
		}
	}

	desc, err := a.Anonymize(ctx, rec.ShortDescription)
	if err != nil {
		return incident.RedactedFields{}, nil, fmt.Errorf("anonymizing %s short description: %w", rec.ID, err)
	}
	merge(desc)
	notes, err := a.Anonymize(ctx, rec.Notes)
	if err != nil {
		return incident.RedactedFields{}, nil, fmt.Errorf("anonymizing %s notes: %w", rec.ID, err)
	}
	merge(notes)
	assignee, err := a.anonymizeAssignee(ctx, rec.AssignedTo)
	if err != nil {
		return incident.RedactedFields{}, nil, fmt.Errorf("anonymizing %s assignee: %w", rec.ID, err)
	}
	merge(assignee)

	a.record(ctx, audit.KindIncident, rec.ID, counts)
	return incident.RedactedFields{
		ShortDescription: desc.Text,
		Notes:            notes.Text,
		AssignedTo:       assignee.Text,
	}, counts, nil
}

// anonymizeAssignee treats the whole assignee value as a person name when
// the detector finds nothing in it.
func (a *Anonymizer) anonymizeAssignee(ctx context.Context, name string) (Result, error) {
	res, err := a.Anonymize(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !a.opts.Enabled || !a.inScope[domain.EntityPerson] {
		return res, nil
	}
	trimmed := strings.TrimSpace(res.Text)
	if trimmed == "" || len(res.Entities) > 0 || a.placeholder.MatchString(trimmed) {
		return res, nil
	}
	return Result{
		Text: domain.EntityPerson.Placeholder(),
		Entities: []domain.PIIEntity{{
			Type:        domain.EntityPerson,
			Start:       0,
			End:         len(name),
			Score:       1.0,
			Placeholder: domain.EntityPerson.Placeholder(),
		}},
	}, nil
}

// AnonymizeQuery redacts a live question before it is classified,
// embedded or stored in conversation memory.
func (a *Anonymizer) AnonymizeQuery(ctx context.Context, sessionID, question string) (Result, error) {
	res, err := a.Anonymize(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("anonymizing query: %w", err)
	}
	a.record(ctx, audit.KindQuery, sessionID, res.Counts())
	return res, nil
}

func (a *Anonymizer) record(ctx context.Context, kind, subject string, counts map[string]int) {
	if !a.opts.Enabled {
		return
	}
	metrics.RecordPIIEntities(counts)
	if !a.opts.LogFindings {
		return
	}
	if err := a.sink.Record(ctx, audit.NewFinding(kind, subject, counts)); err != nil {
		a.log.Warn("writing pii audit line failed", "kind", kind, "subject", subject, "error", err)
	}
}
