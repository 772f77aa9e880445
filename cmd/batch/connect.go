package main

import (
	"context"
	"fmt"

	"github.com/openaddresses/batch-sub000/internal/batch"
	"github.com/openaddresses/batch-sub000/internal/config"
	"github.com/openaddresses/batch-sub000/internal/db"
	"gorm.io/gorm"
)

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	return cfg, gormDB, nil
}

// serviceFromConfig builds the control plane described by the config file.
// The returned cleanup closes the log file.
func serviceFromConfig(ctx context.Context, configPath string) (*batch.Service, func() error, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger, cleanup := config.SetupLogger(cfg.Log.File, level)

	deps, err := batch.BuildDeps(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return batch.New(cfg, gormDB, deps, logger), cleanup, nil
}
