package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"

	"openworker/internal/agent"
	"openworker/internal/llm"
	"openworker/internal/metrics"
	"openworker/internal/pathguard"
	"openworker/internal/tools"
	"openworker/internal/ui"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive assistant (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}
}

func runChat(cmd *cobra.Command, flags *rootFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(flags)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key: set OPENROUTER_API_KEY or llm.api_key in %s", cfg.Path())
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics.serve_failed", "error", err)
			}
		}()
	}

	executor, bridge, err := startTools(ctx, rt)
	if err != nil {
		return err
	}
	defer executor.Close()

	folders, err := rt.folders().ListFolders()
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}

	api := llm.NewAPI(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	transcript := agent.NewTranscript(rt.db, cfg.LLM.Model, logger)
	session := agent.NewSession(
		llm.NewClient(api, cfg.LLM.Model, "agent", logger),
		executor,
		agent.Options{
			Folders:       folders,
			MaxIterations: cfg.LLM.MaxIterations,
			Hooks: agent.Hooks{
				OnMessage:    transcript.Record,
				OnToolCall:   bridge.ToolCall,
				OnToolResult: bridge.ToolResult,
			},
			Logger: logger,
		},
	)
	logger.Info("chat.start", "session", session.ID(), "model", cfg.LLM.Model, "folders", len(folders))

	p := ui.NewProgram(ctx, ui.Deps{
		Agent:     session,
		Folders:   rt.folders(),
		Servers:   executor,
		DB:        rt.db,
		ModelName: cfg.LLM.Model,
		Logger:    logger,
	}, bridge)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

// startTools connects the configured tool servers and builds the executor
// with the path policy and the approval gateway wired to the UI.
func startTools(ctx context.Context, rt *app) (*tools.Executor, *ui.Bridge, error) {
	cfg, logger := rt.cfg, rt.logger

	providers, err := tools.ConnectAll(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect tool servers: %w", err)
	}

	// Summaries are advisory; a failed call falls back immediately.
	summaryAPI := llm.NewAPI(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	summarizer := llm.NewSummarizer(
		llm.NewClient(summaryAPI, cfg.LLM.SummaryModel, "summary", logger, option.WithMaxRetries(0)),
		logger,
	)

	bridge := ui.NewBridge()
	executor := tools.NewExecutor(providers, tools.Options{
		Guard:      pathguard.New(rt.folders(), logger),
		Summarizer: summarizer,
		Confirmer:  bridge,
		Logger:     logger,
	})
	if err := executor.Initialize(ctx); err != nil {
		_ = executor.Close()
		return nil, nil, fmt.Errorf("initialize tools: %w", err)
	}
	return executor, bridge, nil
}
