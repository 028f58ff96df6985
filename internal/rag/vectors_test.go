package rag

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openworker/internal/models"
)

func openTestVectors(t *testing.T) *VectorStore {
	t.Helper()
	vs, err := OpenVectorStore(filepath.Join(t.TempDir(), "vectors", "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func update(source, root string, vecs ...[]float32) FileUpdate {
	u := FileUpdate{Source: source, Root: root, Vectors: vecs}
	for i := range vecs {
		u.Chunks = append(u.Chunks, models.Chunk{
			ID:          filepath.Base(source) + "_" + string(rune('0'+i)),
			Text:        source,
			Source:      source,
			Index:       i,
			RootPath:    root,
			ContentHash: "h",
		})
	}
	return u
}

func TestVectorStore_ApplySearchReset(t *testing.T) {
	ctx := context.Background()
	vs := openTestVectors(t)

	require.NoError(t, vs.Apply(ctx, []FileUpdate{
		update("/r1/x.txt", "/r1", []float32{1, 0}, []float32{0.9, 0.1}),
		update("/r2/y.txt", "/r2", []float32{0, 1}),
	}))
	n, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := vs.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x.txt_0", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	onlyR2 := func(c models.Chunk) bool { return c.RootPath == "/r2" }
	hits, err = vs.Search(ctx, []float32{1, 0}, 5, onlyR2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "y.txt_0", hits[0].Chunk.ID)

	x1 := ChunkKey{Root: "/r1", ID: "x.txt_1"}
	got, err := vs.Get(ctx, []ChunkKey{x1, {Root: "/r2", ID: "x.txt_1"}, {Root: "/r1", ID: "missing"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, got[x1].Index)

	require.NoError(t, vs.Reset(ctx))
	n, err = vs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorStore_ApplyTrimsStaleTail(t *testing.T) {
	ctx := context.Background()
	vs := openTestVectors(t)

	require.NoError(t, vs.Apply(ctx, []FileUpdate{
		update("/r/a.txt", "/r", []float32{1}, []float32{1}, []float32{1}),
	}))
	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/r/a.txt", "/r", []float32{1})}))

	all, err := vs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a.txt_0", all[0].ID)
}

func TestVectorStore_SameIDUnderTwoRoots(t *testing.T) {
	ctx := context.Background()
	vs := openTestVectors(t)

	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/a/notes.txt", "/a", []float32{1, 0})}))
	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/b/notes.txt", "/b", []float32{0, 1})}))

	all, err := vs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/a/notes.txt", all[0].Source)
	assert.Equal(t, "/b/notes.txt", all[1].Source)
	assert.Equal(t, all[0].ID, all[1].ID)
}

func TestVectorStore_ApplyMovesSourceToNewRoot(t *testing.T) {
	ctx := context.Background()
	vs := openTestVectors(t)

	parent := update("/p/sub/x.txt", "/p", []float32{1})
	parent.Chunks[0].ID = "sub/x.txt_0"
	require.NoError(t, vs.Apply(ctx, []FileUpdate{parent}))
	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/p/sub/x.txt", "/p/sub", []float32{1})}))

	all, err := vs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/p/sub", all[0].RootPath)
	assert.Equal(t, "x.txt_0", all[0].ID)
}

func TestVectorStore_GenerationCountsWrites(t *testing.T) {
	ctx := context.Background()
	vs := openTestVectors(t)

	g0, err := vs.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/r/a.txt", "/r", []float32{1})}))
	require.NoError(t, vs.DeleteSource(ctx, "/r/a.txt"))
	require.NoError(t, vs.Reset(ctx))

	g3, err := vs.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, g0+3, g3)
}

func TestOpenVectorStore_MigratesIDOnlyKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	old, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = old.Exec(`
		CREATE TABLE chunks (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			root_path TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			mtime INTEGER NOT NULL,
			embedding BLOB NOT NULL
		);
		CREATE INDEX idx_chunks_source ON chunks(source, chunk_index);
		CREATE INDEX idx_chunks_root ON chunks(root_path);
		INSERT INTO chunks VALUES ('a.txt_0', 'kept', '/r/a.txt', 0, '/r', 'h', 0, x'0000803f');
	`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	vs, err := OpenVectorStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	all, err := vs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "kept", all[0].Text)

	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/s/a.txt", "/s", []float32{1})}))
	n, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVectorStore_SourceInfo(t *testing.T) {
	ctx := context.Background()
	vs := openTestVectors(t)

	_, _, ok, err := vs.SourceInfo(ctx, "/r/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, vs.Apply(ctx, []FileUpdate{update("/r/a.txt", "/r", []float32{1})}))
	hash, root, ok, err := vs.SourceInfo(ctx, "/r/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "h", hash)
	assert.Equal(t, "/r", root)

	require.NoError(t, vs.DeleteSource(ctx, "/r/a.txt"))
	_, _, ok, err = vs.SourceInfo(ctx, "/r/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Equal(t, []float32{1.5, -2}, decodeVector(encodeVector([]float32{1.5, -2})))
}
