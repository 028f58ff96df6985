package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"openworker/internal/llm"
	"openworker/internal/pathguard"
	"openworker/internal/rag"
	"openworker/internal/toolserver"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the built-in file and knowledge tool server on stdio",
		Long: "Run the built-in tool server over stdio. The chat command launches it\n" +
			"automatically; stdout carries the protocol, so logs go to the trace file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	rt, err := openRuntime(flags)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger.With("component", "toolserver")

	store, vectors, err := openKnowledge(ctx, rt)
	if err != nil {
		return err
	}
	defer vectors.Close()

	guard := pathguard.New(rt.folders(), logger)
	api := llm.NewAPI(rt.cfg.LLM.BaseURL, rt.cfg.LLM.APIKey)
	rewriter := llm.NewRewriter(llm.NewClient(api, rt.cfg.LLM.RewriteModel, "rewrite", logger), logger)

	if rt.cfg.RAG.Watch {
		stopWatch, err := startWatcher(ctx, store, guard, rt)
		if err != nil {
			// Indexing on demand still works without the watcher.
			logger.Warn("watcher.start_failed", "error", err)
		} else {
			defer stopWatch()
		}
	}

	srv := toolserver.New(toolserver.Deps{
		Guard:     guard,
		Knowledge: store,
		Refiner:   rewriter,
		Logger:    logger,
	})
	logger.Info("toolserver.start", "version", toolserver.Version)
	return toolserver.Serve(srv, logger)
}

// startWatcher watches the folders allowed at startup.
func startWatcher(ctx context.Context, store *rag.Store, guard *pathguard.Guard, rt *app) (func(), error) {
	w, err := rag.NewWatcher(store, guard, rt.logger)
	if err != nil {
		return nil, err
	}
	folders, err := rt.folders().ListFolders()
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	for _, f := range folders {
		if err := w.Add(f); err != nil {
			rt.logger.Warn("watcher.add_failed", "path", f, "error", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Warn("watcher.stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
		_ = w.Close()
	}, nil
}
