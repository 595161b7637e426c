package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkanban/internal/mcp"
	"github.com/fyrsmithlabs/agentkanban/internal/reattribution"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve feature tools over MCP on stdio",
		Long: `Starts an MCP server on stdin/stdout exposing feature_list,
feature_active, feature_next, feature_complete and reattribute_preview.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			logger := a.zapLogger().Named("mcp")
			job := reattribution.NewJob(db.Features(), db.Events(), logger)
			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "agentkanban",
				Version:  version,
				Logger:   logger,
				MinScore: a.cfg.Reattribution.MinScore,
			}, a.manualRouter(db.Features()), db.Features(), job)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
