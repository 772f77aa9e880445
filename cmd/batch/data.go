package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/openaddresses/batch-sub000/internal/coverage"
	"github.com/openaddresses/batch-sub000/internal/delta"
	"github.com/openaddresses/batch-sub000/internal/export"
	"github.com/openaddresses/batch-sub000/internal/moderation"
	"github.com/spf13/cobra"
)

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Inspect the coverage index",
	}
	cmd.AddCommand(newMapListCmd())
	cmd.AddCommand(newMapFeatureCmd())
	return cmd
}

func newMapListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List coverage regions and their layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			features, err := coverage.List(gormDB)
			if err != nil {
				return err
			}
			return emit(cmd, features, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CODE\tNAME\tLAYERS")
				for _, f := range features {
					fmt.Fprintf(w, "%s\t%s\t%s\n", f.Code, f.Name, strings.Join(f.Layers, ","))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newMapFeatureCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "feature <code>",
		Short: "Show one coverage region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			f, err := coverage.GetFeature(gormDB, args[0])
			if err != nil {
				return err
			}
			return emit(cmd, f, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.Code, f.Name, strings.Join(f.Layers, ","))
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newDeltaCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delta <job>",
		Short: "Compare a job with the live job for its source",
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
			cmp, err := delta.Compute(gormDB, id)
			if err != nil {
				return err
			}
			return emit(cmd, cmp, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Compare:\tjob %d\t%d features\n", cmp.Compare.ID, cmp.Compare.Count)
				fmt.Fprintf(w, "Master:\tjob %d\t%d features\n", cmp.Master.ID, cmp.Master.Count)
				fmt.Fprintf(w, "Delta:\t\t%d features, %.0f m2\n", cmp.Delta.Count, cmp.Delta.Bounds.Area)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newErrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "error",
		Short: "Moderate the job error ledger",
	}
	cmd.AddCommand(newErrorListCmd())
	cmd.AddCommand(newErrorModerateCmd())
	cmd.AddCommand(newErrorClearCmd())
	return cmd
}

func newErrorListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs awaiting moderation",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			entries, err := moderation.List(gormDB)
			if err != nil {
				return err
			}
			return emit(cmd, entries, func(w *tabwriter.Writer) {
				for _, e := range entries {
					fmt.Fprintln(w, e.String())
					for _, m := range e.Messages {
						fmt.Fprintf(w, "  - %s\n", m)
					}
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newErrorModerateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:       "moderate <job> <confirm|reject>",
		Short:     "Confirm or reject a flagged job",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{moderation.ActionConfirm, moderation.ActionReject},
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

			out, err := svc.Moderate(ctx, id, args[1])
			if err != nil {
				return err
			}
			return emit(cmd, out, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Job %d: %s\n", out.JobID, out.Action)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newErrorClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every ledger entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := moderation.Clear(gormDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared job error ledger")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Request and list exports",
	}
	cmd.AddCommand(newExportCreateCmd())
	cmd.AddCommand(newExportListCmd())
	return cmd
}

func newExportCreateCmd() *cobra.Command {
	var (
		configPath string
		uid        int64
		jobID      int64
		format     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a format conversion of a job's output",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, cleanup, err := serviceFromConfig(ctx, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			exp, err := svc.Exporter.Create(ctx, uid, jobID, format)
			if err != nil {
				return err
			}
			return emit(cmd, exp, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Created export %d (%s of job %d)\n", exp.ID, exp.Format, exp.JobID)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().Int64Var(&uid, "uid", 0, "requesting user id (required)")
	cmd.Flags().Int64Var(&jobID, "job", 0, "job id (required)")
	cmd.Flags().StringVar(&format, "format", "", "one of "+strings.Join(export.Formats, ", "))
	cmd.MarkFlagRequired("uid")
	cmd.MarkFlagRequired("job")
	cmd.MarkFlagRequired("format")
	return cmd
}

func newExportListCmd() *cobra.Command {
	var (
		configPath string
		uid        int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List exports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			exports, err := export.List(gormDB, uid)
			if err != nil {
				return err
			}
			return emit(cmd, exports, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tUID\tJOB\tFORMAT\tSTATUS")
				for _, e := range exports {
					fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", e.ID, e.UID, e.JobID, e.Format, e.Status)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().Int64Var(&uid, "uid", 0, "filter by user id")
	return cmd
}

func newScanCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Clear the error ledger and start a full source scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, cleanup, err := serviceFromConfig(ctx, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			handle, err := svc.Scanner.Trigger(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started scan %s\n", handle)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	return cmd
}
