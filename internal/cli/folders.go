package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"openworker/internal/pathguard"
)

func newFoldersCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage the folders the assistant may read and write",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allowed folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			folders, err := rt.folders().ListFolders()
			if err != nil {
				return fmt.Errorf("list folders: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(folders) == 0 {
				fmt.Fprintln(out, "No folders. Add one with: openworker folders add <path>")
				return nil
			}
			for _, f := range folders {
				fmt.Fprintln(out, f)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path>",
		Short: "Allow a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canonical, err := pathguard.CanonicalDir(args[0])
			if err != nil {
				return fmt.Errorf("cannot add %s: %w", args[0], err)
			}
			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.folders().AddFolder(canonical); err != nil {
				return fmt.Errorf("add folder: %w", err)
			}
			rt.logger.Info("folders.added", "path", canonical)
			fmt.Fprintln(cmd.OutOrStdout(), "Added", canonical)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <path>",
		Short: "Revoke a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			target := args[0]
			if canonical, err := pathguard.CanonicalizeTarget(target); err == nil {
				target = canonical
			}
			store := rt.folders()
			if err := store.RemoveFolder(target); err != nil {
				return fmt.Errorf("remove folder: %w", err)
			}
			if target != args[0] {
				_ = store.RemoveFolder(args[0])
			}
			rt.logger.Info("folders.removed", "path", target)
			fmt.Fprintln(cmd.OutOrStdout(), "Removed", target)
			return nil
		},
	})

	return cmd
}
