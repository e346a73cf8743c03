// Package sqlite is a single-file knowledge index for local runs and tests.
// Vectors are stored as little-endian float32 blobs and searched by brute
// force cosine similarity, which is fine up to a few hundred thousand chunks.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"zero-entropy-be/pkg/embedding"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"

	_ "modernc.org/sqlite"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/queries.sql
var queriesSQL string

var queries = parseQueries(queriesSQL)

// parseQueries extracts named queries marked with "-- name: QueryName".
func parseQueries(content string) map[string]string {
	result := make(map[string]string)
	re := regexp.MustCompile(`(?m)^--\s*name:\s*(\w+)\s*$`)
	matches := re.FindAllStringSubmatchIndex(content, -1)

	for i, match := range matches {
		name := content[match[2]:match[3]]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		result[name] = strings.TrimSpace(content[match[1]:end])
	}
	return result
}

type VectorStore struct {
	db *sql.DB
}

var _ search.VectorIndex = (*VectorStore)(nil)

// NewVectorStore opens (and creates) the database file at path.
func NewVectorStore(path string) (*VectorStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := NewVectorStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewVectorStoreWithDB uses an existing connection. Tests pass ":memory:".
func NewVectorStoreWithDB(db *sql.DB) (*VectorStore, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &VectorStore{db: db}, nil
}

func (s *VectorStore) Close() error {
	return s.db.Close()
}

func (s *VectorStore) Upsert(ctx context.Context, chunks []search.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, queries["UpsertChunk"])
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		tags, err := json.Marshal(c.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Content, c.Tags.Kind, c.Tags.SessionID, string(tags),
			len(c.Embedding), VectorToBytes(c.Embedding), createdAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, k int, filter search.Filter) ([]search.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, queries["SelectCandidates"],
		filter.Kind, filter.Kind, filter.SessionID, filter.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []search.ScoredChunk
	for rows.Next() {
		var (
			c         search.Chunk
			tagsJSON  string
			dim       int
			blob      []byte
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &tagsJSON, &dim, &blob, &createdAt); err != nil {
			return nil, err
		}
		if dim != len(vector) {
			continue
		}
		if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s: %w", c.ID, err)
		}
		c.Embedding = BytesToVector(blob)
		c.CreatedAt = time.Unix(createdAt, 0).UTC()

		results = append(results, search.ScoredChunk{
			Chunk:      c,
			Similarity: embedding.Cosine(vector, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *VectorStore) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, queries["DeleteDocument"], documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *VectorStore) Stats(ctx context.Context) (search.Stats, error) {
	stats := search.Stats{ByKind: map[string]int64{}}
	if err := s.db.QueryRowContext(ctx, queries["CountChunks"]).Scan(&stats.Chunks, &stats.Documents); err != nil {
		return stats, err
	}

	rows, err := s.db.QueryContext(ctx, queries["CountByKind"])
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return stats, err
		}
		if kind == "" {
			kind = store.KindKnowledge
		}
		stats.ByKind[kind] += n
	}
	return stats, rows.Err()
}

func (s *VectorStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, queries["DeleteAll"])
	return err
}

// VectorToBytes encodes a vector as little-endian float32s.
func VectorToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func BytesToVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
