package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"openworker/internal/pathguard"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "index [directory]",
		Short: "Index a folder into the knowledge base",
		Long: "Index every non-hidden file under an allowed folder so search_knowledge\n" +
			"can find it. With --reset the knowledge base is cleared instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !reset && len(args) == 0 {
				return fmt.Errorf("directory required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			store, vectors, err := openKnowledge(ctx, rt)
			if err != nil {
				return err
			}
			defer vectors.Close()

			if reset {
				msg, err := store.Clear(ctx)
				if err != nil {
					return fmt.Errorf("reset knowledge base: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			}

			dir, err := pathguard.New(rt.folders(), rt.logger).Resolve(args[0])
			if err != nil {
				return err
			}
			msg, err := store.IndexDirectory(ctx, dir)
			if err != nil {
				return fmt.Errorf("index %s: %w", dir, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the knowledge base")
	return cmd
}
