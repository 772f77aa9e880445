package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/run"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(newRunCreateCmd())
	cmd.AddCommand(newRunPopulateCmd())
	cmd.AddCommand(newRunListCmd())
	cmd.AddCommand(newRunStatsCmd())
	cmd.AddCommand(newRunPromoteCmd())
	return cmd
}

func newRunCreateCmd() *cobra.Command {
	var (
		configPath string
		live       bool
		gh         models.GitHubMeta
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty run",
		Long:  "Creates a run. A non-live run with --github-url and --sha opens a GitHub check.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, cleanup, err := serviceFromConfig(ctx, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := run.CreateOpts{Live: live}
			if gh.URL != "" {
				opts.GitHub = &gh
			}
			r, err := svc.CreateRun(ctx, opts)
			if err != nil {
				return err
			}
			return emit(cmd, r, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Created run %d (live: %t)\n", r.ID, r.Live)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().BoolVar(&live, "live", false, "create a live run")
	cmd.Flags().StringVar(&gh.URL, "github-url", "", "repository url of the pull request")
	cmd.Flags().StringVar(&gh.Ref, "ref", "", "git ref of the pull request")
	cmd.Flags().StringVar(&gh.SHA, "sha", "", "commit sha to attach the check to")
	return cmd
}

// parseSpec reads a job spec argument: a manifest URL or a JSON
// {source, layer, name} object.
func parseSpec(arg string) (run.JobSpec, error) {
	var spec run.JobSpec
	if strings.HasPrefix(strings.TrimSpace(arg), "{") {
		if err := json.Unmarshal([]byte(arg), &spec); err != nil {
			return spec, err
		}
		return spec, nil
	}
	spec.Ref = arg
	return spec, nil
}

func newRunPopulateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "populate <run> <spec>...",
		Short: "Fill a run with jobs and dispatch them",
		Long:  "Each spec is a manifest URL or a JSON {\"source\",\"layer\",\"name\"} object. A run can be populated once.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			specs := make([]run.JobSpec, 0, len(args)-1)
			for _, a := range args[1:] {
				spec, err := parseSpec(a)
				if err != nil {
					return fmt.Errorf("spec %q: %w", a, err)
				}
				specs = append(specs, spec)
			}

			ctx := context.Background()
			svc, cleanup, err := serviceFromConfig(ctx, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Runs.Populate(ctx, id, specs)
			if err != nil {
				return err
			}
			return emit(cmd, res, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Run %d: %d job(s), %d error(s)\n", res.RunID, len(res.Jobs), len(res.Errors))
				for _, e := range res.Errors {
					fmt.Fprintf(w, "  %s\t%s\n", e.Spec, e.Message)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newRunListCmd() *cobra.Command {
	var (
		configPath string
		live       string
		limit      int
		page       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			liveFilter, err := optionalBool(live)
			if err != nil {
				return fmt.Errorf("--live: %w", err)
			}
			svc, cleanup, err := serviceFromConfig(context.Background(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Runs.List(run.ListFilters{Live: liveFilter, Limit: limit, Page: page})
			if err != nil {
				return err
			}
			return emit(cmd, res, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tLIVE\tCLOSED\tGITHUB\tCREATED")
				for _, r := range res.Runs {
					fmt.Fprintf(w, "%d\t%t\t%t\t%s\t%s\n", r.ID, r.Live, r.Closed, r.GitHub.URL, r.CreatedAt.Format("2006-01-02 15:04"))
				}
				fmt.Fprintf(w, "%d of %d\n", len(res.Runs), res.Total)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().StringVar(&live, "live", "", "filter by live (true or false)")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	return cmd
}

func newRunStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats <run>",
		Short: "Show job status counts for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, cleanup, err := serviceFromConfig(context.Background(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := svc.Runs.Stats(id)
			if err != nil {
				return err
			}
			return emit(cmd, stats, func(w *tabwriter.Writer) {
				for _, s := range models.AllStatuses {
					fmt.Fprintf(w, "%s\t%d\n", s, stats[s])
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newRunPromoteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "promote <run>",
		Short: "Mark a run live and publish its successful jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := context.Background()
			svc, cleanup, err := serviceFromConfig(ctx, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Runs.Promote(ctx, id)
			if err != nil {
				return err
			}
			svc.Cache.Purge()
			return emit(cmd, res, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Promoted run %d: %d result(s), %d error(s)\n", res.RunID, len(res.Results), len(res.Errors))
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}
