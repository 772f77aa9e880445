package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/openaddresses/batch-sub000/internal/checks"
	"github.com/openaddresses/batch-sub000/internal/config"
	"github.com/openaddresses/batch-sub000/internal/db"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/logs"
	"github.com/openaddresses/batch-sub000/internal/manifest"
	"github.com/openaddresses/batch-sub000/internal/notify"
	"github.com/openaddresses/batch-sub000/internal/notify/discord"
	"github.com/openaddresses/batch-sub000/internal/notify/slack"
	"github.com/openaddresses/batch-sub000/internal/objectstore"
)

// Build opens the database and constructs every configured collaborator.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	deps, err := BuildDeps(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, gormDB, deps, logger), nil
}

// BuildDeps constructs the external collaborators described by cfg.
func BuildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Deps, error) {
	deps := Deps{Fetcher: manifest.NewHTTPFetcher(nil)}

	var awsCfg aws.Config
	needAWS := !cfg.Dispatch.Local || cfg.AWS.Bucket != ""
	if needAWS {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return Deps{}, fmt.Errorf("batch: load aws config: %w", err)
		}
	}

	if cfg.Dispatch.Local {
		deps.Dispatcher = &dispatch.Local{Logger: logger}
	} else {
		deps.Dispatcher = dispatch.NewBatch(awsCfg, dispatch.BatchOpts{
			Stack:         cfg.Stack,
			JobQueue:      cfg.AWS.JobQueue,
			CIJobQueue:    cfg.AWS.CIJobQueue,
			JobDefinition: cfg.AWS.JobDefinition,
			Timeout:       cfg.Dispatch.Timeout,
		})
		deps.Logs = logs.NewCloudWatch(awsCfg, cfg.AWS.LogGroup)
	}
	if cfg.AWS.Bucket != "" {
		deps.Store = objectstore.New(awsCfg, cfg.Stack, cfg.AWS.Bucket)
	}

	if cfg.GitHub.Token != "" {
		gh, err := checks.NewGitHub(ctx, checks.GitHubOpts{
			Token:      cfg.GitHub.Token,
			Name:       cfg.GitHub.CheckName,
			BaseURL:    cfg.GitHub.BaseURL,
			DetailsURL: cfg.GitHub.DetailsURL,
		})
		if err != nil {
			return Deps{}, err
		}
		deps.Checks = gh
	}

	var notifiers notify.Multi
	if c := cfg.Notify.Slack; c.Token != "" {
		n, err := slack.New(slack.Opts{BotToken: c.Token, ChannelID: c.Channel})
		if err != nil {
			return Deps{}, err
		}
		notifiers = append(notifiers, n)
	}
	if c := cfg.Notify.Discord; c.Token != "" {
		n, err := discord.New(discord.Opts{BotToken: c.Token, ChannelID: c.Channel})
		if err != nil {
			return Deps{}, err
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) > 0 {
		deps.Notifier = notifiers
	}
	return deps, nil
}
