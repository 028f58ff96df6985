package toolserver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openworker/internal/models"
	"openworker/internal/pathguard"
	"openworker/internal/rag"
	"openworker/internal/tools"
)

type fakeKnowledge struct {
	indexed []string
	queries []string
	results []rag.Result
	cleared int
	err     error
}

func (k *fakeKnowledge) IndexDirectory(_ context.Context, dir string) (string, error) {
	if k.err != nil {
		return "", k.err
	}
	k.indexed = append(k.indexed, dir)
	return "Indexed 2 files. Total chunks: 4", nil
}

func (k *fakeKnowledge) Query(_ context.Context, query string, _ int) ([]rag.Result, error) {
	if k.err != nil {
		return nil, k.err
	}
	k.queries = append(k.queries, query)
	return k.results, nil
}

func (k *fakeKnowledge) Clear(context.Context) (string, error) {
	if k.err != nil {
		return "", k.err
	}
	k.cleared++
	return rag.ClearedMessage, nil
}

type upperRefiner struct{}

func (upperRefiner) Refine(_ context.Context, q string) string { return strings.ToUpper(q) }

func connect(t *testing.T, allowed string, k Knowledge) tools.Provider {
	t.Helper()
	srv := New(Deps{
		Guard:     pathguard.New(pathguard.StaticFolders{allowed}, nil),
		Knowledge: k,
		Refiner:   upperRefiner{},
	})
	p, err := tools.ConnectInProcess(context.Background(), Name, srv, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestServer_ListsAllTools(t *testing.T) {
	p := connect(t, t.TempDir(), &fakeKnowledge{})
	defs, err := p.ListTools(context.Background())
	require.NoError(t, err)

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.ElementsMatch(t, []string{
		"read_file", "list_files", "write_file",
		"index_folder", "search_knowledge", "reset_knowledge_base",
	}, names)
}

func TestReadFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("remember the milk"), 0o644))
	p := connect(t, dir, &fakeKnowledge{})

	out, err := p.CallTool(ctx, "read_file", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", out)

	missing := filepath.Join(dir, "nope.txt")
	out, err = p.CallTool(ctx, "read_file", map[string]any{"path": missing})
	require.NoError(t, err)
	assert.Equal(t, "Error: File not found at "+missing, out)
}

func TestReadFile_OutsideAllowedFolder(t *testing.T) {
	ctx := context.Background()
	allowed := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("s3cret"), 0o644))
	p := connect(t, allowed, &fakeKnowledge{})

	out, err := p.CallTool(ctx, "read_file", map[string]any{"path": outside})
	require.NoError(t, err)
	assert.Equal(t, "Error: Access denied. Path '"+outside+"' is not in an authorized folder.", out)
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), nil, 0o644))
	p := connect(t, dir, &fakeKnowledge{})

	out, err := p.CallTool(ctx, "list_files", map[string]any{"directory": dir})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "a.txt"))
	assert.True(t, strings.HasSuffix(lines[1], filepath.Join("sub", "b.txt")))

	missing := filepath.Join(dir, "gone")
	out, err = p.CallTool(ctx, "list_files", map[string]any{"directory": missing})
	require.NoError(t, err)
	assert.Equal(t, "Error: Directory not found "+missing, out)
}

func TestListFiles_Limit(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	tool := &ListFilesTool{guard: pathguard.New(pathguard.StaticFolders{dir}, nil), limit: 2}
	srvReq := callRequest("list_files", map[string]any{"directory": dir})

	res, err := tool.Handle(context.Background(), srvReq)
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Len(t, strings.Split(resultText(res), "\n"), 2)
}

func TestWriteFile_CreatesParents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "reports", "q3", "summary.md")
	p := connect(t, dir, &fakeKnowledge{})

	out, err := p.CallTool(ctx, "write_file", map[string]any{"path": target, "content": "# Q3"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully wrote to "+target, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "# Q3", string(data))

	outside := filepath.Join(t.TempDir(), "x.txt")
	out, err = p.CallTool(ctx, "write_file", map[string]any{"path": outside, "content": "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: Access denied."))
	assert.NoFileExists(t, outside)
}

func TestIndexFolder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	k := &fakeKnowledge{}
	p := connect(t, dir, k)

	out, err := p.CallTool(ctx, "index_folder", map[string]any{"directory": dir})
	require.NoError(t, err)
	assert.Equal(t, "Indexed 2 files. Total chunks: 4", out)
	require.Len(t, k.indexed, 1)

	k.err = errors.New("embedding endpoint down")
	out, err = p.CallTool(ctx, "index_folder", map[string]any{"directory": dir})
	require.NoError(t, err)
	assert.Equal(t, "Error indexing: embedding endpoint down", out)
}

func TestSearchKnowledge_Format(t *testing.T) {
	ctx := context.Background()
	k := &fakeKnowledge{results: []rag.Result{
		{Chunk: models.Chunk{Source: "/docs/a.md", Text: "alpha"}},
		{Chunk: models.Chunk{Source: "/docs/b.md", Text: "beta"}},
	}}
	p := connect(t, t.TempDir(), k)

	out, err := p.CallTool(ctx, "search_knowledge", map[string]any{"query": "greek letters"})
	require.NoError(t, err)
	assert.Equal(t, "Original Query: greek letters\n---\nRefined Query: GREEK LETTERS\n---\n---\n---\n"+
		"[Source: /docs/a.md]\nalpha\n\n---\n[Source: /docs/b.md]\nbeta\n", out)
	assert.Equal(t, []string{"GREEK LETTERS"}, k.queries)
}

func TestResetKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	k := &fakeKnowledge{}
	p := connect(t, t.TempDir(), k)

	out, err := p.CallTool(ctx, "reset_knowledge_base", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, rag.ClearedMessage, out)
	assert.Equal(t, 1, k.cleared)
}

func TestThroughExecutor_DeniedBeforeProvider(t *testing.T) {
	ctx := context.Background()
	allowed := t.TempDir()
	srv := New(Deps{Guard: pathguard.New(pathguard.StaticFolders{allowed}, nil), Knowledge: &fakeKnowledge{}})
	p, err := tools.ConnectInProcess(ctx, Name, srv, nil)
	require.NoError(t, err)

	guard := pathguard.New(pathguard.StaticFolders{allowed}, nil)
	e := tools.NewExecutor([]tools.Provider{p}, tools.Options{Guard: guard})
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Initialize(ctx))

	out := e.Execute(ctx, models.ToolCall{ID: "1", Name: "read_file", Arguments: `{"path":"/etc/passwd"}`})
	assert.Equal(t, "Error: Access denied. Path '/etc/passwd' is not in an authorized folder.", out)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
