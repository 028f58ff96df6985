package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"openworker/internal/config"
	"openworker/internal/logging"
	"openworker/internal/models"
)

const clientVersion = "0.1.0"

// MCPProvider is a Provider backed by an MCP client session.
type MCPProvider struct {
	name   string
	client *client.Client
	logger *slog.Logger
}

// NewMCPProvider performs the initialize handshake on an already started
// client.
func NewMCPProvider(ctx context.Context, name string, c *client.Client, logger *slog.Logger) (*MCPProvider, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "openworker", Version: clientVersion}

	res, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}

	logger = logging.OrDiscard(logger).With("provider", name)
	logger.Info("mcp.connected", "server", res.ServerInfo.Name, "version", res.ServerInfo.Version)
	return &MCPProvider{name: name, client: c, logger: logger}, nil
}

// ConnectStdio launches a provider process and speaks MCP over its stdio.
func ConnectStdio(ctx context.Context, name string, cfg config.ServerConfig, logger *slog.Logger) (*MCPProvider, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	if stderr, ok := client.GetStderr(c); ok {
		log := logging.OrDiscard(logger).With("provider", name)
		go func() {
			sc := bufio.NewScanner(stderr)
			for sc.Scan() {
				log.Debug("mcp.stderr", "line", sc.Text())
			}
		}()
	}
	return NewMCPProvider(ctx, name, c, logger)
}

// ConnectInProcess attaches to a server running in this process.
func ConnectInProcess(ctx context.Context, name string, srv *server.MCPServer, logger *slog.Logger) (*MCPProvider, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return NewMCPProvider(ctx, name, c, logger)
}

// ConnectAll starts every enabled server concurrently. Servers that fail to
// start are logged and left out; the result keeps config order.
func ConnectAll(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]Provider, error) {
	logger = logging.OrDiscard(logger)
	names := cfg.ServerNames()
	connected := make([]Provider, len(names))

	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			p, err := ConnectStdio(ctx, name, cfg.Servers[name], logger)
			if err != nil {
				logger.Error("mcp.connect_failed", "provider", name, "error", err)
				return nil
			}
			connected[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Provider, 0, len(connected))
	for _, p := range connected {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoProviders
	}
	return out, nil
}

func (p *MCPProvider) Name() string { return p.name }

func (p *MCPProvider) ListTools(ctx context.Context) ([]models.ToolDefinition, error) {
	res, err := p.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	defs := make([]models.ToolDefinition, 0, len(res.Tools))
	for _, t := range res.Tools {
		params, err := inputSchema(t)
		if err != nil {
			p.logger.Warn("mcp.bad_schema", "tool", t.Name, "error", err)
			continue
		}
		defs = append(defs, models.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
			Provider:    p.name,
		})
	}
	return defs, nil
}

func (p *MCPProvider) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := p.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}
	text := contentText(res.Content)
	if res.IsError && text == "" {
		return "", errors.New("tool reported an error")
	}
	return text, nil
}

func (p *MCPProvider) Close() error { return p.client.Close() }

func inputSchema(t mcp.Tool) (map[string]any, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var wire struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.InputSchema == nil {
		wire.InputSchema = map[string]any{"type": "object"}
	}
	return wire.InputSchema, nil
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%T content omitted]", c))
		}
	}
	return strings.Join(parts, "\n")
}
