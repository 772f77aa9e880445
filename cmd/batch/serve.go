package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openaddresses/batch-sub000/internal/scan"
	"github.com/openaddresses/batch-sub000/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the JSON API and, when scan.enabled is set, triggers full source scans on the configured schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, cleanup, err := serviceFromConfig(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if port == 0 {
		port = svc.Config.Server.Port
	}

	if svc.Config.Scan.Enabled {
		sched, err := scan.ParseSchedule(svc.Config.Scan.Schedule)
		if err != nil {
			return err
		}
		go svc.Scanner.Run(ctx, sched)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return server.Start(ctx, server.StartOpts{
		Service: svc,
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
