package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"incidentrag/internal/domain"
	"incidentrag/internal/embedding"
	"incidentrag/internal/incident"
	"incidentrag/internal/index"
	"incidentrag/internal/logger"
	"incidentrag/internal/metrics"
	"incidentrag/internal/pii"
	"incidentrag/internal/source"
)

// Result summarizes one ingest run. Errors holds one line per row that
// did not make it into the index.
type Result struct {
	Rows        int
	Indexed     int
	Rejected    int
	Failed      int
	Warnings    int
	PIIEntities int
	Duration    time.Duration
	Errors      []string
}

type Pipeline struct {
	norm        *incident.Normalizer
	anon        *pii.Anonymizer
	names       *pii.NameDetector
	emb         embedding.Embedder
	idx         index.Index
	concurrency int
	log         *logger.Logger
}

// New wires the ingest stages. names may be nil when the detector chain
// has no person-name dictionary.
func New(norm *incident.Normalizer, anon *pii.Anonymizer, names *pii.NameDetector, emb embedding.Embedder, idx index.Index, concurrency int, log *logger.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		norm:        norm,
		anon:        anon,
		names:       names,
		emb:         emb,
		idx:         idx,
		concurrency: concurrency,
		log:         log.With("component", "ingest"),
	}
}

func (p *Pipeline) IngestFile(ctx context.Context, path string) (Result, error) {
	rows, err := source.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", path, err)
	}
	p.log.Info("ingest started", "path", path, "rows", len(rows))
	return p.Ingest(ctx, rows)
}

type embedded struct {
	line   int
	chunk  domain.TextChunk
	vector []float32
}

// Ingest normalizes, anonymizes, renders and embeds rows in parallel and
// upserts the chunks from a single writer. Row failures are counted and
// logged; only cancellation aborts the batch.
func (p *Pipeline) Ingest(ctx context.Context, rows []source.Row) (Result, error) {
	start := time.Now()
	res := Result{Rows: len(rows)}
	var mu sync.Mutex
	fail := func(kind string, line int, id string, err error) {
		msg := err.Error()
		if id != "" {
			msg = fmt.Sprintf("row %d %s: %v", line, id, err)
		}
		mu.Lock()
		defer mu.Unlock()
		switch kind {
		case "rejected":
			res.Rejected++
		default:
			res.Failed++
		}
		res.Errors = append(res.Errors, msg)
		metrics.RecordIngestRow(kind)
		p.log.Warn("incident row "+kind, "row", line, "incident_id", id, "error", err)
	}

	// Phase 1: normalize and learn assignee names before any text is
	// scanned, so a name appearing in another incident's notes is caught.
	records := make([]*domain.IncidentRecord, len(rows))
	var warnings atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, warns, err := p.norm.Normalize(row.Line, row.Values)
			if err != nil {
				fail("rejected", row.Line, "", err)
				return nil
			}
			warnings.Add(int32(len(warns)))
			if p.names != nil && rec.AssignedTo != "" {
				p.names.Add(rec.AssignedTo)
			}
			records[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Warnings = int(warnings.Load()) + p.dropDuplicates(rows, records)

	// Phase 2: anonymize, render and embed in parallel; one writer upserts.
	out := make(chan embedded)
	var (
		writeErr error
		indexed  int
		writerWG sync.WaitGroup
		piiTotal atomic.Int32
	)
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		for e := range out {
			if err := p.idx.Upsert(ctx, e.chunk, e.vector); err != nil {
				if ctx.Err() != nil {
					writeErr = ctx.Err()
					continue
				}
				fail("failed", e.line, e.chunk.IncidentID, err)
				continue
			}
			indexed++
			metrics.RecordIngestRow("indexed")
		}
	}()

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, rec := range records {
		if rec == nil {
			continue
		}
		line := rows[i].Line
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			redacted, counts, err := p.anon.AnonymizeRecord(gctx, *rec)
			if err != nil {
				// Fail closed: a record that cannot be scanned is never indexed.
				fail("rejected", line, rec.ID, err)
				return nil
			}
			for _, n := range counts {
				piiTotal.Add(int32(n))
			}
			chunk := incident.BuildChunk(*rec, redacted)
			vec, err := p.emb.Embed(gctx, chunk.Text)
			if err != nil {
				fail("failed", line, rec.ID, err)
				return nil
			}
			select {
			case out <- embedded{line: line, chunk: chunk, vector: vec}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	waitErr := g.Wait()
	close(out)
	writerWG.Wait()

	res.Indexed = indexed
	res.PIIEntities = int(piiTotal.Load())
	res.Duration = time.Since(start)
	if n, err := p.idx.Count(ctx); err == nil {
		metrics.SetIndexSize(n)
	}

	if err := errors.Join(waitErr, writeErr); err != nil {
		return res, err
	}
	p.log.Info("ingest finished",
		"rows", res.Rows,
		"indexed", res.Indexed,
		"rejected", res.Rejected,
		"failed", res.Failed,
		"warnings", res.Warnings,
		"pii_entities", res.PIIEntities,
		"duration", res.Duration.String(),
	)
	return res, nil
}

// dropDuplicates keeps the last row for each incident id so a batch with
// repeated ids indexes deterministically.
func (p *Pipeline) dropDuplicates(rows []source.Row, records []*domain.IncidentRecord) int {
	dropped := 0
	last := make(map[string]int)
	for i, rec := range records {
		if rec == nil {
			continue
		}
		if prev, ok := last[rec.ID]; ok {
			p.log.Warn("duplicate incident id, keeping later row", "incident_id", rec.ID, "row", rows[prev].Line, "kept_row", rows[i].Line)
			records[prev] = nil
			dropped++
		}
		last[rec.ID] = i
	}
	return dropped
}
