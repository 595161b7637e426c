package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/sink"
	"github.com/fyrsmithlabs/agentkanban/internal/tracker"
)

func newFeaturesCmd(a *app) *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "List, import, export and advance a project's features",
		Long: `Manage the features of a project. The project defaults to the working
directory, mapped from a git worktree to its main checkout.

Examples:
  kanban features list
  kanban features import feature_list.yaml
  kanban features export --format yaml -o features.yaml
  kanban features next
  kanban features complete /path/to/project:3`,
	}
	cmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "project directory (default: working directory)")

	project := func() (string, error) { return resolveProject(projectDir) }

	cmd.AddCommand(
		newFeaturesListCmd(a, project),
		newFeaturesImportCmd(a, project),
		newFeaturesExportCmd(a, project),
		newFeaturesNextCmd(a, project),
		newFeaturesCompleteCmd(a, project),
	)
	return cmd
}

func newFeaturesListCmd(a *app, project func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List features in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := project()
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			features, err := db.Features().List(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return renderFeatureList(cmd.OutOrStdout(), dir, features)
		},
	}
}

func renderFeatureList(w io.Writer, projectDir string, features []*feature.Feature) error {
	if len(features) == 0 {
		_, err := fmt.Fprintf(w, "No features for %s\n", projectDir)
		return err
	}
	for _, f := range features {
		mark := " "
		switch f.Status {
		case feature.StatusComplete:
			mark = "x"
		case feature.StatusInProgress:
			mark = ">"
		case feature.StatusBlocked:
			mark = "!"
		}
		if _, err := fmt.Fprintf(w, "[%d] [%s] %s  (%s, work: %d)\n",
			f.Position, mark, f.Description, f.Criteria, f.WorkCount); err != nil {
			return err
		}
	}
	s := feature.Summarize(features)
	_, err := fmt.Fprintf(w, "\n%d/%d features complete (%.0f%%)\n", s.Completed, s.Total, s.Percentage)
	return err
}

func newFeaturesImportCmd(a *app, project func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Sync the project's features with a feature list file",
		Long: `Syncs the project's features with the contents of a feature list.
Features already tracked keep their status and work count; new items are
added and items missing from the list are removed. Without a file argument
the project's feature_list.json (or feature_list.yaml) is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := project()
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			router := tracker.NewRouter(db.Features(), sink.Nop{}, tracker.Config{MaxRetries: a.cfg.Tracker.MaxRetries},
				tracker.WithLogger(a.zapLogger()))
			var features []*feature.Feature
			if len(args) == 1 {
				features, err = importFile(args[0], dir, time.Now().UTC())
				if err != nil {
					return err
				}
				features, err = router.Import(cmd.Context(), dir, features)
			} else {
				features, err = router.ImportList(cmd.Context(), dir)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d features into %s\n", len(features), dir)
			return nil
		},
	}
}

func importFile(path, projectDir string, now time.Time) ([]*feature.Feature, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	items, err := feature.ParseList(data, feature.FormatForPath(path))
	if err != nil {
		return nil, err
	}
	return feature.FromList(projectDir, items, now), nil
}

func newFeaturesExportCmd(a *app, project func() (string, error)) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the project's features as a feature list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := feature.Format(format)
			if f != feature.FormatJSON && f != feature.FormatYAML {
				return fmt.Errorf("unsupported format %q (json or yaml)", format)
			}
			dir, err := project()
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			features, err := db.Features().List(cmd.Context(), dir)
			if err != nil {
				return err
			}
			data, err := feature.EncodeList(feature.ToList(features), f)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(output, append(data, '\n'), 0o600)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(feature.FormatJSON), "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newFeaturesNextCmd(a *app, project func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Activate the next pending feature when none is in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := project()
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			router := a.manualRouter(db.Features())
			active, err := router.ActivateNext(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if active == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending features")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active: [%d] %s\n", active.Position, active.Description)
			return nil
		},
	}
}

func newFeaturesCompleteCmd(a *app, project func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [id]",
		Short: "Complete the active (or given) feature and activate the next",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := project()
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			router := a.manualRouter(db.Features())
			completed, activated, err := router.CompleteFeature(cmd.Context(), dir, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed: [%d] %s\n", completed.Position, completed.Description)
			if activated != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Active:    [%d] %s\n", activated.Position, activated.Description)
			}
			return nil
		},
	}
}

// manualRouter drives operator-initiated transitions, which emit no events.
func (a *app) manualRouter(features feature.Repository) *tracker.Router {
	return tracker.NewRouter(features, sink.Nop{}, tracker.Config{
		SourceAgent: a.cfg.Tracker.SourceAgent,
		MaxRetries:  a.cfg.Tracker.MaxRetries,
	}, tracker.WithLogger(a.zapLogger().Named("tracker")))
}
