package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkanban/internal/reattribution"
)

func newReattributeCmd(a *app) *cobra.Command {
	var (
		apply      bool
		dryRun     bool
		minScore   int
		catchAll   string
		perFeature bool
	)

	cmd := &cobra.Command{
		Use:   "reattribute",
		Short: "Link unattributed events to completed features by keyword overlap",
		Long: `Finds completed features with no linked events, collects the events
recorded while they were open and assigns each event to the feature whose
description shares the most keywords with it.

Runs as a dry run unless --apply (or --dry-run=false) is given; --apply
wins when both are set.

Examples:
  # Preview assignments
  kanban reattribute

  # Apply with a stricter threshold and per-feature windows
  kanban reattribute --apply --min-score 4 --per-feature`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("min-score") && minScore < 1 {
				return fmt.Errorf("--min-score must be at least 1, got %d", minScore)
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := reattribution.Options{
				DryRun:     dryRun && !apply,
				MinScore:   a.cfg.Reattribution.MinScore,
				CatchAll:   a.cfg.Reattribution.CatchAll,
				PerFeature: a.cfg.Reattribution.PerFeatureWindow,
			}
			if cmd.Flags().Changed("min-score") {
				opts.MinScore = minScore
			}
			if cmd.Flags().Changed("catch-all") {
				opts.CatchAll = catchAll
			}
			if cmd.Flags().Changed("per-feature") {
				opts.PerFeature = perFeature
			}

			job := reattribution.NewJob(db.Features(), db.Events(), a.zapLogger().Named("reattribution"))
			report, err := job.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "write the links; overrides --dry-run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "report assignments without writing them")
	cmd.Flags().IntVar(&minScore, "min-score", reattribution.DefaultMinScore, "minimum keyword overlap, at least 1")
	cmd.Flags().StringVar(&catchAll, "catch-all", "", "description of a catch-all feature whose events may be reassigned")
	cmd.Flags().BoolVar(&perFeature, "per-feature", false, "use each feature's own window instead of the union")
	return cmd
}
