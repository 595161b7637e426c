package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkanban/internal/project"
)

func newMigrateCmd(a *app) *cobra.Command {
	var mainDir string
	cmd := &cobra.Command{
		Use:   "migrate-worktrees",
		Short: "Move sessions and events recorded under git worktrees to the main project",
		Long: `Sessions and events recorded before worktree mapping existed carry the
worktree directory as their project. This moves them to --main.

Examples:
  kanban migrate-worktrees --main ~/src/app`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			m := project.NewMigrator(db.Sessions(), db.Events(), a.zapLogger().Named("migrate"))
			result, err := m.Migrate(cmd.Context(), mainDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Migrations) == 0 {
				fmt.Fprintln(out, "No worktree sessions found")
				return nil
			}
			for _, mig := range result.Migrations {
				fmt.Fprintf(out, "%s -> %s: %d sessions, %d events\n", mig.From, result.Main, mig.Sessions, mig.Events)
			}
			sessions, events := result.Totals()
			fmt.Fprintf(out, "Migrated %d sessions and %d events\n", sessions, events)
			return nil
		},
	}
	cmd.Flags().StringVar(&mainDir, "main", "", "main project directory")
	_ = cmd.MarkFlagRequired("main")
	return cmd
}
