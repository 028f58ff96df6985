package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"openworker/internal/config"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := flags.home
			if home == "" {
				h, err := config.HomeDir()
				if err != nil {
					return fmt.Errorf("resolve home: %w", err)
				}
				home = h
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return fmt.Errorf("create home: %w", err)
			}

			// Defaults only: keys from the environment stay out of the file.
			cfg := config.Default(home)
			if _, err := os.Stat(cfg.Path()); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.Path())
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat config: %w", err)
			}
			cfg.LLM.BaseURL = config.OpenRouterBaseURL
			cfg.Embedding.BaseURL = config.OpenRouterBaseURL

			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", cfg.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
