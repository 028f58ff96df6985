package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openworker/internal/models"
	"openworker/internal/pathguard"
)

type fakeProvider struct {
	name    string
	defs    []models.ToolDefinition
	listErr error
	callErr error
	result  string
	calls   []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ListTools(context.Context) ([]models.ToolDefinition, error) {
	return f.defs, f.listErr
}

func (f *fakeProvider) CallTool(_ context.Context, name string, _ map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	if f.callErr != nil {
		return "", f.callErr
	}
	return f.result, nil
}

func (f *fakeProvider) Close() error { return nil }

func pathTool(name, arg string) models.ToolDefinition {
	return models.ToolDefinition{
		Name:        name,
		Description: name + " tool",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{arg: map[string]any{"type": "string"}},
			"required":   []any{arg},
		},
	}
}

type recordingConfirmer struct {
	answer  bool
	prompts []string
}

func (r *recordingConfirmer) Confirm(_ context.Context, prompt string) bool {
	r.prompts = append(r.prompts, prompt)
	return r.answer
}

type fixedSummarizer string

func (s fixedSummarizer) Summarize(context.Context, string, map[string]any) string { return string(s) }

func TestInitialize_NoProviders(t *testing.T) {
	err := NewExecutor(nil, Options{}).Initialize(context.Background())
	require.ErrorIs(t, err, ErrNoProviders)
}

func TestInitialize_PartialFailureAndPrefix(t *testing.T) {
	good := &fakeProvider{name: "files", defs: []models.ToolDefinition{pathTool("read_file", "path")}}
	bad := &fakeProvider{name: "broken", listErr: errors.New("disconnected")}

	e := NewExecutor([]Provider{bad, good}, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	defs := e.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "read_file", defs[0].Name)
	assert.Equal(t, "[files] read_file tool", defs[0].Description)
	assert.Equal(t, "files", defs[0].Provider)

	assert.Equal(t, []ProviderInfo{{Name: "broken", Tools: 0}, {Name: "files", Tools: 1}}, e.Providers())
}

func TestInitialize_LastRegistrationWins(t *testing.T) {
	first := &fakeProvider{name: "a", defs: []models.ToolDefinition{pathTool("read_file", "path")}, result: "from a"}
	second := &fakeProvider{name: "b", defs: []models.ToolDefinition{pathTool("read_file", "path")}, result: "from b"}

	e := NewExecutor([]Provider{first, second}, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	defs := e.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "b", defs[0].Provider)
	assert.Equal(t, "from b", e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "read_file", Arguments: `{"path":"x"}`}))
	assert.Empty(t, first.calls)
}

func TestExecute_UnknownTool(t *testing.T) {
	p := &fakeProvider{name: "files"}
	e := NewExecutor([]Provider{p}, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	got := e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "rm_rf", Arguments: `{}`})
	assert.Equal(t, "Error: Tool rm_rf not found.", got)
}

func TestExecute_ProviderErrorBecomesText(t *testing.T) {
	p := &fakeProvider{name: "files", defs: []models.ToolDefinition{pathTool("search_knowledge", "query")}, callErr: errors.New("broken pipe")}
	e := NewExecutor([]Provider{p}, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	got := e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "search_knowledge", Arguments: `{"query":"q"}`})
	assert.Equal(t, "Error executing tool search_knowledge on files: broken pipe", got)
}

func TestExecute_InvalidArguments(t *testing.T) {
	p := &fakeProvider{name: "files", defs: []models.ToolDefinition{pathTool("search_knowledge", "query")}, result: "ok"}
	e := NewExecutor([]Provider{p}, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	got := e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "search_knowledge", Arguments: `{not json`})
	assert.True(t, strings.HasPrefix(got, "Error: Invalid arguments for tool search_knowledge:"), got)

	got = e.Execute(context.Background(), models.ToolCall{ID: "2", Name: "search_knowledge", Arguments: `{}`})
	assert.True(t, strings.HasPrefix(got, "Error: Invalid arguments for tool search_knowledge:"), got)

	got = e.Execute(context.Background(), models.ToolCall{ID: "3", Name: "search_knowledge", Arguments: `{"query": 7}`})
	assert.True(t, strings.HasPrefix(got, "Error: Invalid arguments for tool search_knowledge:"), got)

	assert.Empty(t, p.calls)

	assert.Equal(t, "ok", e.Execute(context.Background(), models.ToolCall{ID: "4", Name: "search_knowledge", Arguments: `{"query":"q"}`}))
}

func TestGateway_DeniedNeverReachesProvider(t *testing.T) {
	dir := t.TempDir()
	p := &fakeProvider{name: "files", defs: []models.ToolDefinition{pathTool("write_file", "path")}, result: "written"}
	confirm := &recordingConfirmer{answer: false}

	e := NewExecutor([]Provider{p}, Options{
		Guard:      pathguard.New(pathguard.StaticFolders{dir}, nil),
		Summarizer: fixedSummarizer("Writes notes.txt"),
		Confirmer:  confirm,
	})
	require.NoError(t, e.Initialize(context.Background()))

	args := `{"path":"` + filepath.Join(dir, "notes.txt") + `"}`
	got := e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "write_file", Arguments: args})
	assert.Equal(t, DeniedByUser, got)
	assert.Empty(t, p.calls)
	require.Len(t, confirm.prompts, 1)
	assert.Equal(t, "\nACTION REQUIRED\nWrites notes.txt\n\nExecute this action?", confirm.prompts[0])

	confirm.answer = true
	got = e.Execute(context.Background(), models.ToolCall{ID: "2", Name: "write_file", Arguments: args})
	assert.Equal(t, "written", got)
	assert.Equal(t, []string{"write_file"}, p.calls)
}

func TestGateway_NoConfirmerDenies(t *testing.T) {
	p := &fakeProvider{name: "kb", defs: []models.ToolDefinition{{Name: "reset_knowledge_base"}}, result: "cleared"}
	e := NewExecutor([]Provider{p}, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	assert.Equal(t, DeniedByUser, e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "reset_knowledge_base"}))
	assert.Empty(t, p.calls)
}

func TestGateway_NonSensitiveSkipsConfirmation(t *testing.T) {
	p := &fakeProvider{name: "kb", defs: []models.ToolDefinition{pathTool("search_knowledge", "query")}, result: "hits"}
	confirm := &recordingConfirmer{}
	e := NewExecutor([]Provider{p}, Options{Confirmer: confirm})
	require.NoError(t, e.Initialize(context.Background()))

	assert.Equal(t, "hits", e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "search_knowledge", Arguments: `{"query":"q"}`}))
	assert.Empty(t, confirm.prompts)
}

// Two providers, one path outside the allowed folders.
func TestScenario_TwoProvidersAccessDenied(t *testing.T) {
	base := t.TempDir()
	allowed := filepath.Join(base, "allowed")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(allowed, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0o644))

	reader := &fakeProvider{name: "reader", defs: []models.ToolDefinition{pathTool("read_file", "path")}, result: "contents"}
	lister := &fakeProvider{name: "lister", defs: []models.ToolDefinition{pathTool("list_files", "directory")}, result: "a.txt"}

	e := NewExecutor([]Provider{reader, lister}, Options{Guard: pathguard.New(pathguard.StaticFolders{allowed}, nil)})
	require.NoError(t, e.Initialize(context.Background()))

	names := []string{}
	for _, d := range e.Definitions() {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"read_file", "list_files"}, names)

	got := e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "read_file", Arguments: `{"path":"` + secret + `"}`})
	assert.Equal(t, "Error: Access denied. Path '"+secret+"' is not in an authorized folder.", got)
	assert.Empty(t, reader.calls)

	got = e.Execute(context.Background(), models.ToolCall{ID: "2", Name: "list_files", Arguments: `{"directory":"` + allowed + `"}`})
	assert.Equal(t, "a.txt", got)
}

func TestGenerateToolSummary(t *testing.T) {
	assert.Equal(t, "READ a.txt (2 lines)", GenerateToolSummary("read_file", `{"path":"/x/a.txt"}`, "one\ntwo"))
	assert.Equal(t, "READ a.txt (failed)", GenerateToolSummary("read_file", `{"path":"/x/a.txt"}`, "Error: Access denied. Path '/x/a.txt' is not in an authorized folder."))
	assert.Equal(t, "WRITE b.md (3 lines)", GenerateToolSummary("write_file", `{"path":"/x/b.md","content":"1\n2\n3"}`, "Successfully wrote to /x/b.md"))
	assert.Equal(t, "WRITE_FILE (denied)", GenerateToolSummary("write_file", `{}`, DeniedByUser))
	assert.Equal(t, "LIST /x (2 files)", GenerateToolSummary("list_files", `{"directory":"/x"}`, "/x/a\n/x/b"))
	assert.Equal(t, "SEARCH \"q\" (1 hits)", GenerateToolSummary("search_knowledge", `{"query":"q"}`, "[Source: a]\ntext"))
	assert.Equal(t, "RESET knowledge base", GenerateToolSummary("reset_knowledge_base", `{}`, "Knowledge base cleared successfully."))
}

func TestGateway_FallbackSummaryWithoutSummarizer(t *testing.T) {
	p := &fakeProvider{name: "kb", defs: []models.ToolDefinition{pathTool("index_folder", "directory")}, result: "indexed"}
	confirm := &recordingConfirmer{answer: true}
	e := NewExecutor([]Provider{p}, Options{Confirmer: confirm})
	require.NoError(t, e.Initialize(context.Background()))

	got := e.Execute(context.Background(), models.ToolCall{ID: "1", Name: "index_folder", Arguments: `{"directory":"/docs"}`})
	assert.Equal(t, "indexed", got)
	require.Len(t, confirm.prompts, 1)
	want := models.FallbackSummary("index_folder", map[string]any{"directory": "/docs"})
	assert.Equal(t, `Execute tool 'index_folder' with args: {"directory":"/docs"}`, want)
	assert.Equal(t, ConfirmationPrompt(want), confirm.prompts[0])
}
