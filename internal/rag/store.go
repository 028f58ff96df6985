// Package rag indexes documents from the allowed folders and answers hybrid
// queries: cosine similarity over stored embeddings, BM25 over the same
// chunks, then a rerank pass.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"openworker/internal/logging"
	"openworker/internal/metrics"
	"openworker/internal/models"
	"openworker/internal/pathguard"
)

const (
	ClearedMessage  = "Knowledge base cleared successfully."
	NotFoundMessage = "Directory not found."
)

// Embedder maps texts to vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores docs against query, aligned with docs.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
}

// Result is one ranked chunk.
type Result struct {
	Chunk models.Chunk
	Score float64
}

type Options struct {
	Splitter   *Splitter
	Extractor  Extractor
	Candidates int
	TopK       int
	Logger     *slog.Logger
}

// Store owns the vector index and the in-memory lexical index over the same
// chunks.
type Store struct {
	vectors    *VectorStore
	embedder   Embedder
	reranker   Reranker
	folders    pathguard.FolderLister
	splitter   *Splitter
	extractor  Extractor
	candidates int
	topK       int
	logger     *slog.Logger

	// writeMu serializes index mutations; readers use the lexical snapshot.
	writeMu sync.Mutex
	lexical atomic.Pointer[BM25Index]

	// lexicalGen is the collection generation the snapshot was built from.
	lexMu      sync.Mutex
	lexicalGen atomic.Int64
}

// NewStore builds the lexical index from the current vector contents.
func NewStore(ctx context.Context, vectors *VectorStore, embedder Embedder, reranker Reranker, folders pathguard.FolderLister, opts Options) (*Store, error) {
	if opts.Splitter == nil {
		opts.Splitter = NewSplitter(1000, 100)
	}
	if opts.Extractor == nil {
		opts.Extractor = FileExtractor{}
	}
	if opts.Candidates <= 0 {
		opts.Candidates = 10
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if reranker == nil {
		reranker = EmbeddingReranker{Embedder: embedder}
	}

	s := &Store{
		vectors:    vectors,
		embedder:   embedder,
		reranker:   reranker,
		folders:    folders,
		splitter:   opts.Splitter,
		extractor:  opts.Extractor,
		candidates: opts.Candidates,
		topK:       opts.TopK,
		logger:     logging.OrDiscard(opts.Logger),
	}
	if err := s.rebuildLexical(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type pendingFile struct {
	path   string
	hash   string
	mtime  int64
	chunks []string
}

// IndexDirectory indexes every non-hidden file under dir. It always
// re-embeds; chunk ids are derived from the relative path so re-indexing
// overwrites instead of duplicating.
func (s *Store) IndexDirectory(ctx context.Context, dir string) (string, error) {
	defer metrics.ObserveSince("index", time.Now())

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NotFoundMessage, nil
	}
	root, err := pathguard.Canonicalize(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	var files []pendingFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("rag.walk_error", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		f, ok := s.load(path)
		if ok {
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := s.write(ctx, root, files); err != nil {
		return "", err
	}

	total, err := s.vectors.Count(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Info("rag.indexed", "root", root, "files", len(files), "total_chunks", total)
	return fmt.Sprintf("Indexed %d files. Total chunks: %d", len(files), total), nil
}

// IndexFile re-indexes one file when its content hash differs from the
// stored one. root names the folder to derive ids from for a file not yet
// indexed. It reports whether the index changed.
func (s *Store) IndexFile(ctx context.Context, root, path string) (bool, error) {
	root, err := pathguard.Canonicalize(root)
	if err != nil {
		return false, err
	}
	path, err = pathguard.Canonicalize(path)
	if err != nil {
		return false, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return false, err
	}
	stored, storedRoot, ok, err := s.vectors.SourceInfo(ctx, path)
	if err != nil {
		return false, err
	}
	if ok && stored == hash {
		return false, nil
	}
	if ok {
		// Keep the ids the file was first indexed under.
		root = storedRoot
	}

	f, loaded := s.load(path)
	if !loaded {
		return false, nil
	}
	return true, s.write(ctx, root, []pendingFile{f})
}

// RemoveFile drops the chunks of a deleted file.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.vectors.DeleteSource(ctx, path); err != nil {
		return err
	}
	return s.rebuildLexical(ctx)
}

// load extracts and splits one file. Unreadable or empty files are skipped.
func (s *Store) load(path string) (pendingFile, bool) {
	text, err := s.extractor.Extract(path)
	if err != nil {
		s.logger.Debug("rag.skip", "path", path, "error", err)
		return pendingFile{}, false
	}
	if strings.TrimSpace(text) == "" {
		return pendingFile{}, false
	}
	hash, err := hashFile(path)
	if err != nil {
		s.logger.Debug("rag.skip", "path", path, "error", err)
		return pendingFile{}, false
	}
	var mtime int64
	if info, err := os.Stat(path); err == nil {
		mtime = info.ModTime().Unix()
	}
	return pendingFile{path: path, hash: hash, mtime: mtime, chunks: s.splitter.Split(text)}, true
}

// write embeds every chunk of files in one batch, upserts them and rebuilds
// the lexical index.
func (s *Store) write(ctx context.Context, root string, files []pendingFile) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var texts []string
	updates := make([]FileUpdate, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f.path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		u := FileUpdate{Source: f.path, Root: root}
		for i, text := range f.chunks {
			u.Chunks = append(u.Chunks, models.Chunk{
				ID:          rel + "_" + strconv.Itoa(i),
				Text:        text,
				Source:      f.path,
				Index:       i,
				RootPath:    root,
				ContentHash: f.hash,
				ModTime:     f.mtime,
			})
			texts = append(texts, text)
		}
		updates = append(updates, u)
	}

	if len(texts) > 0 {
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedding chunks: got %d vectors for %d texts", len(vecs), len(texts))
		}
		next := 0
		for i := range updates {
			n := len(updates[i].Chunks)
			updates[i].Vectors = vecs[next : next+n]
			next += n
		}
	}

	if err := s.vectors.Apply(ctx, updates); err != nil {
		return err
	}
	return s.rebuildLexical(ctx)
}

// rebuildLexical builds a new BM25 index from the vector store and swaps it
// in, so concurrent queries see either the old or the new snapshot.
func (s *Store) rebuildLexical(ctx context.Context) error {
	s.lexMu.Lock()
	defer s.lexMu.Unlock()

	gen, err := s.vectors.Generation(ctx)
	if err != nil {
		return fmt.Errorf("reading generation: %w", err)
	}
	chunks, err := s.vectors.All(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	keys := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		keys[i] = KeyOf(c).String()
		texts[i] = c.Text
	}
	s.lexical.Store(BuildBM25Index(keys, texts))
	s.lexicalGen.Store(gen)
	metrics.IndexChunks.Set(float64(len(chunks)))
	return nil
}

// refreshLexical rebuilds the lexical snapshot when another process, or
// another Store on the same file, has written since it was built.
func (s *Store) refreshLexical(ctx context.Context) error {
	gen, err := s.vectors.Generation(ctx)
	if err != nil {
		return fmt.Errorf("reading generation: %w", err)
	}
	if gen == s.lexicalGen.Load() {
		return nil
	}
	return s.rebuildLexical(ctx)
}

// Query runs hybrid retrieval restricted to the allowed folders and returns
// at most TopK results ordered by rerank score. limit bounds each candidate
// source; zero uses the configured default.
func (s *Store) Query(ctx context.Context, query string, limit int) ([]Result, error) {
	defer metrics.ObserveSince("query", time.Now())
	if limit <= 0 {
		limit = s.candidates
	}

	roots, err := s.allowedRoots()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	keep := func(c models.Chunk) bool {
		for _, r := range roots {
			if pathguard.Within(r, c.RootPath) {
				return true
			}
		}
		return false
	}

	start := time.Now()
	qvec, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(qvec) != 1 {
		return nil, errors.New("embedding query: no vector returned")
	}
	hits, err := s.vectors.Search(ctx, qvec[0], limit, keep)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSince("vector", start)

	candidates := make([]models.Chunk, 0, len(hits)+limit)
	seen := make(map[ChunkKey]bool, len(hits))
	for _, h := range hits {
		candidates = append(candidates, h.Chunk)
		seen[KeyOf(h.Chunk)] = true
	}

	start = time.Now()
	if err := s.refreshLexical(ctx); err != nil {
		return nil, err
	}
	var extra []ChunkKey
	for _, key := range s.lexical.Load().Top(query, limit) {
		if k := parseKey(key); !seen[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		found, err := s.vectors.Get(ctx, extra)
		if err != nil {
			return nil, err
		}
		for _, k := range extra {
			c, ok := found[k]
			if ok && keep(c) {
				candidates = append(candidates, c)
				seen[k] = true
			}
		}
	}
	metrics.ObserveSince("lexical", start)

	if len(candidates) == 0 {
		return nil, nil
	}
	return s.rerank(ctx, query, candidates)
}

func (s *Store) rerank(ctx context.Context, query string, candidates []models.Chunk) ([]Result, error) {
	defer metrics.ObserveSince("rerank", time.Now())

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	scores, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Keep retrieval order when the reranker is unavailable.
		s.logger.Warn("rag.rerank_failed", "error", err)
		scores = make([]float64, len(candidates))
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank: got %d scores for %d documents", len(scores), len(candidates))
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{Chunk: c, Score: scores[i]}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > s.topK {
		results = results[:s.topK]
	}
	return results, nil
}

// Clear drops every chunk and resets the lexical index.
func (s *Store) Clear(ctx context.Context) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.vectors.Reset(ctx); err != nil {
		return "", fmt.Errorf("clearing knowledge base: %w", err)
	}
	if err := s.rebuildLexical(ctx); err != nil {
		return "", err
	}
	s.logger.Info("rag.cleared")
	return ClearedMessage, nil
}

func (s *Store) allowedRoots() ([]string, error) {
	if s.folders == nil {
		return nil, nil
	}
	folders, err := s.folders.ListFolders()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	roots := make([]string, 0, len(folders))
	for _, f := range folders {
		r, err := pathguard.Canonicalize(f)
		if err != nil {
			continue
		}
		roots = append(roots, r)
	}
	return roots, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
