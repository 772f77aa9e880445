package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/spf13/cobra"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and update jobs",
	}

	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobShowCmd())
	cmd.AddCommand(newJobUpdateCmd())
	cmd.AddCommand(newJobLogCmd())
	cmd.AddCommand(newJobRerunCmd())
	return cmd
}

func parseStatuses(s string) ([]models.Status, error) {
	if s == "" {
		return nil, nil
	}
	var out []models.Status
	for _, part := range strings.Split(s, ",") {
		st := models.Status(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

func newJobListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		live       string
		filters    job.ListFilters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filters.Status, err = parseStatuses(status); err != nil {
				return err
			}
			if filters.Live, err = optionalBool(live); err != nil {
				return fmt.Errorf("--live: %w", err)
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			res, err := job.List(gormDB, filters)
			if err != nil {
				return err
			}
			return emit(cmd, res, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tRUN\tSTATUS\tSOURCE\tLAYER\tNAME\tCOUNT")
				for _, j := range res.Jobs {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%d\n", j.ID, j.RunID, j.Status, j.SourceName, j.Layer, j.Name, j.Count)
				}
				fmt.Fprintf(w, "%d of %d\n", len(res.Jobs), res.Total)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().StringVar(&status, "status", "", "comma separated statuses")
	cmd.Flags().StringVar(&filters.Source, "source", "", "source name substring")
	cmd.Flags().StringVar(&filters.Layer, "layer", "", "layer prefix")
	cmd.Flags().Int64Var(&filters.RunID, "run", 0, "run id")
	cmd.Flags().StringVar(&live, "live", "", "filter by live run (true or false)")
	cmd.Flags().IntVar(&filters.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&filters.Page, "page", 0, "page number")
	return cmd
}

func newJobShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <job>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			j, err := job.Get(gormDB, id)
			if err != nil {
				return err
			}
			return emit(cmd, j, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Job:\t%d\n", j.ID)
				fmt.Fprintf(w, "Run:\t%d\n", j.RunID)
				fmt.Fprintf(w, "Source:\t%s\n", j.Source)
				fmt.Fprintf(w, "Layer/Name:\t%s/%s\n", j.Layer, j.Name)
				fmt.Fprintf(w, "Status:\t%s\n", j.Status)
				fmt.Fprintf(w, "Count:\t%d\n", j.Count)
				fmt.Fprintf(w, "Output:\t%+v\n", j.Output)
				if j.MapID != nil {
					fmt.Fprintf(w, "Map:\t%d\n", *j.MapID)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newJobUpdateCmd() *cobra.Command {
	var (
		configPath string
		status     string
		count      int64
		version    string
	)

	cmd := &cobra.Command{
		Use:   "update <job>",
		Short: "Apply a status report to a job",
		Long:  "Updates a job the way a processing task does. Reaching Success runs the regression review.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch job.Patch
			if status != "" {
				st := models.Status(status)
				patch.Status = &st
			}
			if cmd.Flags().Changed("count") {
				patch.Count = &count
			}
			if version != "" {
				patch.Version = &version
			}

			ctx := context.Background()
			svc, cleanup, err := serviceFromConfig(ctx, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			j, err := svc.UpdateJob(ctx, id, patch)
			if err != nil {
				return err
			}
			return emit(cmd, j, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Updated %s: %s\n", job.String(j), j.Status)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().Int64Var(&count, "count", 0, "feature count")
	cmd.Flags().StringVar(&version, "version", "", "processing version")
	return cmd
}

func newJobLogCmd() *cobra.Command {
	var (
		configPath string
		csvOut     bool
	)

	cmd := &cobra.Command{
		Use:   "log <job>",
		Short: "Print a job's log",
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

			lines, err := svc.JobLog(ctx, id)
			if err != nil {
				return err
			}
			if csvOut {
				body, err := job.FormatCSV(lines)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return emit(cmd, lines, func(w *tabwriter.Writer) {
				for _, l := range lines {
					fmt.Fprintf(w, "%d\t%s\n", l.ID, l.Message)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "print as CSV")
	return cmd
}

func newJobRerunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rerun <job>",
		Short: "Dispatch a failed or pending job again",
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

			j, err := svc.Runs.Redispatch(ctx, id)
			if err != nil {
				return err
			}
			return emit(cmd, j, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Dispatched %s\n", job.String(j))
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}
