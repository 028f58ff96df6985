// Package toolserver is the built-in tool provider: an MCP server over stdio
// that exposes file access and the knowledge base to the agent.
//
// Every path argument is checked against the allowed folders on each call,
// read fresh from the shared state database, so folder changes made by the
// chat process apply immediately.
package toolserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"openworker/internal/logging"
	"openworker/internal/rag"
)

// Name is the provider name the agent sees in tool descriptions.
const Name = "openworker"

// Version is set at build time via ldflags.
var Version = "dev"

// PathResolver canonicalizes a path and rejects anything outside the
// allowed folders.
type PathResolver interface {
	ResolveTarget(target string) (string, error)
}

// Knowledge is the retrieval store behind the knowledge-base tools.
type Knowledge interface {
	IndexDirectory(ctx context.Context, dir string) (string, error)
	Query(ctx context.Context, query string, limit int) ([]rag.Result, error)
	Clear(ctx context.Context) (string, error)
}

// Refiner rewrites a user query for retrieval.
type Refiner interface {
	Refine(ctx context.Context, query string) string
}

type Deps struct {
	Guard     PathResolver
	Knowledge Knowledge
	Refiner   Refiner
	Extractor rag.Extractor
	Logger    *slog.Logger
}

// New registers every tool on a fresh MCP server.
func New(deps Deps) *server.MCPServer {
	if deps.Extractor == nil {
		deps.Extractor = rag.FileExtractor{}
	}
	logger := logging.OrDiscard(deps.Logger)

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	// --- File tools ---

	readTool := &ReadFileTool{guard: deps.Guard, extractor: deps.Extractor, logger: logger}
	s.AddTool(readTool.Definition(), readTool.Handle)

	listTool := &ListFilesTool{guard: deps.Guard, limit: DefaultListLimit}
	s.AddTool(listTool.Definition(), listTool.Handle)

	writeTool := &WriteFileTool{guard: deps.Guard, logger: logger}
	s.AddTool(writeTool.Definition(), writeTool.Handle)

	// --- Knowledge base tools ---

	indexTool := &IndexFolderTool{guard: deps.Guard, knowledge: deps.Knowledge, logger: logger}
	s.AddTool(indexTool.Definition(), indexTool.Handle)

	searchTool := &SearchKnowledgeTool{knowledge: deps.Knowledge, refiner: deps.Refiner, logger: logger}
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	resetTool := &ResetKnowledgeTool{knowledge: deps.Knowledge, logger: logger}
	s.AddTool(resetTool.Definition(), resetTool.Handle)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects. Protocol errors
// go to logger since stdout carries the protocol.
func Serve(s *server.MCPServer, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	return server.ServeStdio(s, server.WithErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)))
}
