package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/tsgdraft/internal/scaffold"
)

func newInitCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter tsgdraft.yml and register the MCP server in .mcp.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := scaffold.Init(dir, force, out); err != nil {
				return err
			}
			fmt.Fprintln(out, "\nSetup complete. Set endpoint in tsgdraft.yml, then run 'tsgdraft draft'.")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "directory to initialize")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
