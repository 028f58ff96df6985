package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"openworker/internal/models"
)

// Chunk ids are relative to their root, so two roots may hold the same id.
const chunkSchema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT NOT NULL,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		root_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (root_path, id)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_root ON chunks(root_path);
	CREATE TABLE IF NOT EXISTS index_meta (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO index_meta (name, value) VALUES ('generation', 0);
`

const bumpGeneration = "UPDATE index_meta SET value = value + 1 WHERE name = 'generation'"

// ChunkKey identifies a stored chunk.
type ChunkKey struct {
	Root string
	ID   string
}

func KeyOf(c models.Chunk) ChunkKey { return ChunkKey{Root: c.RootPath, ID: c.ID} }

// String encodes the key for the lexical index; parseKey reverses it.
func (k ChunkKey) String() string { return k.Root + "\x00" + k.ID }

func parseKey(s string) ChunkKey {
	root, id, _ := strings.Cut(s, "\x00")
	return ChunkKey{Root: root, ID: id}
}

// VectorStore keeps chunks and their embeddings in SQLite and searches
// them by brute-force cosine similarity.
type VectorStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// Hit is a chunk with its similarity to the query vector.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

func OpenVectorStore(path string) (*VectorStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := migrateChunkKey(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &VectorStore{db: db}, nil
}

// migrateChunkKey rekeys a chunks table created with id as its only
// primary key column, keeping the stored rows.
func migrateChunkKey(db *sql.DB) error {
	var pkCols int
	if err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('chunks') WHERE pk > 0").Scan(&pkCols); err != nil {
		return err
	}
	if pkCols != 1 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		"ALTER TABLE chunks RENAME TO chunks_old",
		"DROP INDEX IF EXISTS idx_chunks_source",
		"DROP INDEX IF EXISTS idx_chunks_root",
		chunkSchema,
		`INSERT OR REPLACE INTO chunks (id, text, source, chunk_index, root_path, content_hash, mtime, embedding)
			SELECT id, text, source, chunk_index, root_path, content_hash, mtime, embedding FROM chunks_old`,
		"DROP TABLE chunks_old",
		bumpGeneration,
	} {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *VectorStore) Close() error { return s.db.Close() }

// FileUpdate is the full new chunk list of one source file, indexed under
// Root.
type FileUpdate struct {
	Source  string
	Root    string
	Chunks  []models.Chunk
	Vectors [][]float32
}

// Apply upserts every file's chunks and drops chunks past each file's new
// length, all in one transaction. A file previously stored under another
// root is moved to Root, so one source is never stored twice.
func (s *VectorStore) Apply(ctx context.Context, files []FileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, text, source, chunk_index, root_path, content_hash, mtime, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE source = ? AND root_path <> ?", f.Source, f.Root); err != nil {
			return fmt.Errorf("moving %s: %w", f.Source, err)
		}
		for i, c := range f.Chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.Source, c.Index, c.RootPath,
				c.ContentHash, c.ModTime, encodeVector(f.Vectors[i])); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE source = ? AND chunk_index >= ?", f.Source, len(f.Chunks)); err != nil {
			return fmt.Errorf("trimming %s: %w", f.Source, err)
		}
	}
	if _, err := tx.ExecContext(ctx, bumpGeneration); err != nil {
		return fmt.Errorf("bumping generation: %w", err)
	}
	return tx.Commit()
}

// DeleteSource removes every chunk of one file.
func (s *VectorStore) DeleteSource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bumpGeneration); err != nil {
		return err
	}
	return tx.Commit()
}

// Generation counts committed writes to the collection. It is shared by
// every process using the same database file.
func (s *VectorStore) Generation(ctx context.Context) (int64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE name = 'generation'").Scan(&gen)
	return gen, err
}

// Search returns the k chunks most similar to vec among those keep accepts.
func (s *VectorStore) Search(ctx context.Context, vec []float32, k int, keep func(models.Chunk) bool) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, source, chunk_index, root_path, content_hash, mtime, embedding
		FROM chunks ORDER BY root_path, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &c.Index, &c.RootPath, &c.ContentHash, &c.ModTime, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if keep != nil && !keep(c) {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Score: cosineSimilarity(vec, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// All returns every chunk without embeddings, ordered by root and id.
func (s *VectorStore) All(ctx context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ctx, "SELECT id, text, source, chunk_index, root_path, content_hash, mtime FROM chunks ORDER BY root_path, id")
}

// Get returns the chunks with the given keys.
func (s *VectorStore) Get(ctx context.Context, keys []ChunkKey) (map[ChunkKey]models.Chunk, error) {
	out := make(map[ChunkKey]models.Chunk, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k.Root, k.ID)
	}
	q := "SELECT id, text, source, chunk_index, root_path, content_hash, mtime FROM chunks" +
		" WHERE (root_path, id) IN (VALUES (?, ?)" + strings.Repeat(", (?, ?)", len(keys)-1) + ")"
	chunks, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		out[KeyOf(c)] = c
	}
	return out, nil
}

// SourceInfo returns the stored content hash and owning root of a file, if
// it is indexed.
func (s *VectorStore) SourceInfo(ctx context.Context, source string) (hash, root string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRowContext(ctx,
		"SELECT content_hash, root_path FROM chunks WHERE source = ? ORDER BY chunk_index LIMIT 1", source).Scan(&hash, &root)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return hash, root, true, nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Reset drops and recreates the collection in one transaction.
func (s *VectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS chunks"); err != nil {
		return fmt.Errorf("dropping chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, chunkSchema); err != nil {
		return fmt.Errorf("recreating chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, bumpGeneration); err != nil {
		return fmt.Errorf("bumping generation: %w", err)
	}
	return tx.Commit()
}

func (s *VectorStore) query(ctx context.Context, q string, args ...any) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &c.Index, &c.RootPath, &c.ContentHash, &c.ModTime); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
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

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
