package index

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"incidentrag/internal/domain"
)

// SQLiteIndex keeps chunks, vectors and metadata in one table and answers
// queries with an exact cosine scan.
type SQLiteIndex struct {
	db   *sql.DB
	dims int
}

func Open(path string, dims int) (*SQLiteIndex, error) {
	if dims < 1 {
		return nil, fmt.Errorf("index dimensions must be positive, got %d", dims)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Ingest from the scheduler and from /reindex may overlap.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		incident_id      TEXT PRIMARY KEY,
		text             TEXT NOT NULL,
		vector           BLOB NOT NULL,
		dims             INTEGER NOT NULL,
		metadata         TEXT NOT NULL,
		category         TEXT DEFAULT '',
		team             TEXT DEFAULT '',
		priority_level   INTEGER DEFAULT 0,
		opened_at        INTEGER DEFAULT 0,
		indexed_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_team ON chunks(team);
	CREATE INDEX IF NOT EXISTS idx_chunks_opened_at ON chunks(opened_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// A database built with another embedding size cannot be queried.
	var stored int
	err = db.QueryRow(`SELECT dims FROM chunks LIMIT 1`).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		db.Close()
		return nil, err
	}
	if err == nil && stored != dims {
		db.Close()
		return nil, fmt.Errorf("index at %s holds %d-dimension vectors, configured %d", path, stored, dims)
	}

	return &SQLiteIndex{db: db, dims: dims}, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) Dimensions() int { return s.dims }

// Upsert replaces any existing chunk with the same incident id.
func (s *SQLiteIndex) Upsert(ctx context.Context, chunk domain.TextChunk, vector []float32) error {
	if len(vector) != s.dims {
		return fmt.Errorf("upsert %s: vector has %d dimensions, want %d", chunk.IncidentID, len(vector), s.dims)
	}
	md, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %s: %w", chunk.IncidentID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (incident_id, text, vector, dims, metadata, category, team, priority_level, opened_at, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(incident_id) DO UPDATE SET
		   text = excluded.text,
		   vector = excluded.vector,
		   dims = excluded.dims,
		   metadata = excluded.metadata,
		   category = excluded.category,
		   team = excluded.team,
		   priority_level = excluded.priority_level,
		   opened_at = excluded.opened_at,
		   indexed_at = excluded.indexed_at`,
		chunk.IncidentID, chunk.Text, encodeVector(vector), len(vector), string(md),
		chunk.Metadata.Category, chunk.Metadata.Team, chunk.Metadata.PriorityLevel,
		chunk.Metadata.OpenedAt, time.Now().UTC(),
	)
	if err != nil {
		return domain.NewExternalError("index_upsert", domain.KindIndex, 1, false, err)
	}
	return nil
}

// Query returns up to k chunks accepted by pred, best first. Equal scores
// are ordered by incident id.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, k int, pred Predicate) ([]Match, error) {
	if k < 1 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d", len(vector), s.dims)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT incident_id, text, vector, metadata FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := &matchHeap{}
	for rows.Next() {
		var (
			chunk  domain.TextChunk
			blob   []byte
			mdJSON string
		)
		if err := rows.Scan(&chunk.IncidentID, &chunk.Text, &blob, &mdJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(mdJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", chunk.IncidentID, err)
		}
		if pred != nil && !pred.Match(chunk.Metadata) {
			continue
		}
		score := cosineSim(vector, decodeVector(blob))
		m := Match{Chunk: chunk, Score: score}
		if top.Len() < k {
			heap.Push(top, m)
			continue
		}
		if better(m, (*top)[0]) {
			(*top)[0] = m
			heap.Fix(top, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Match, top.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(top).(Match)
	}
	return out, nil
}

func (s *SQLiteIndex) Get(ctx context.Context, id string) (domain.TextChunk, error) {
	var (
		chunk  domain.TextChunk
		mdJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT incident_id, text, metadata FROM chunks WHERE incident_id = ?`, id,
	).Scan(&chunk.IncidentID, &chunk.Text, &mdJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TextChunk{}, fmt.Errorf("incident %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TextChunk{}, err
	}
	if err := json.Unmarshal([]byte(mdJSON), &chunk.Metadata); err != nil {
		return domain.TextChunk{}, fmt.Errorf("decoding metadata for %s: %w", id, err)
	}
	return chunk, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Teams lists distinct assignment groups, used to seed the classifier.
func (s *SQLiteIndex) Teams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT team FROM chunks WHERE team != '' ORDER BY team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CategoryCount is one row of the knowledge-base breakdown.
type CategoryCount struct {
	Category string
	Count    int
}

func (s *SQLiteIndex) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM chunks GROUP BY category ORDER BY COUNT(*) DESC, category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func cosineSim(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Chunk.IncidentID < b.Chunk.IncidentID
}

// matchHeap is a min-heap on rank: the root is the worst kept match.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)        { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}
