// Package batch wires the stores, engines and collaborators into the
// operations exposed over HTTP and the CLI.
package batch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/cache"
	"github.com/openaddresses/batch-sub000/internal/checks"
	"github.com/openaddresses/batch-sub000/internal/config"
	"github.com/openaddresses/batch-sub000/internal/coverage"
	"github.com/openaddresses/batch-sub000/internal/delta"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/export"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/logs"
	"github.com/openaddresses/batch-sub000/internal/manifest"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/moderation"
	"github.com/openaddresses/batch-sub000/internal/notify"
	"github.com/openaddresses/batch-sub000/internal/objectstore"
	"github.com/openaddresses/batch-sub000/internal/run"
	"github.com/openaddresses/batch-sub000/internal/scan"
	"gorm.io/gorm"
)

// Deps are the external collaborators a Service talks to. Nil Checks,
// Store and Notifier disable those features; Logs defaults to no logs.
type Deps struct {
	Dispatcher dispatch.Dispatcher
	Fetcher    manifest.Fetcher
	Checks     checks.Checks
	Logs       logs.Retriever
	Store      *objectstore.Store
	Notifier   notify.Notifier
}

// Service is the control plane.
type Service struct {
	Config   *config.Config
	DB       *gorm.DB
	Runs     *run.Engine
	Matcher  *coverage.Matcher
	Exporter *export.Exporter
	Scanner  *scan.Scanner
	Cache    *cache.Cache
	Logger   *slog.Logger

	checks   checks.Checks
	logs     logs.Retriever
	store    *objectstore.Store
	notifier notify.Notifier
}

// noLogs is the Retriever used when none is configured.
type noLogs struct{}

func (noLogs) Events(context.Context, string) ([]logs.Event, error) { return nil, nil }

// New assembles a Service from an open database and its collaborators.
func New(cfg *config.Config, gormDB *gorm.DB, deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logs == nil {
		deps.Logs = noLogs{}
	}

	s := &Service{
		Config:   cfg,
		DB:       gormDB,
		Cache:    cache.New(cfg.Cache.Size, cfg.Cache.TTL),
		Logger:   logger,
		checks:   deps.Checks,
		logs:     deps.Logs,
		store:    deps.Store,
		notifier: deps.Notifier,
	}
	s.Matcher = &coverage.Matcher{
		DB:           gormDB,
		Fetcher:      deps.Fetcher,
		Logger:       logger.With("component", "coverage"),
		OnUnresolved: s.reportUnresolved,
	}
	s.Runs = &run.Engine{
		DB:         gormDB,
		Dispatcher: deps.Dispatcher,
		Fetcher:    deps.Fetcher,
		Checks:     deps.Checks,
		Matcher:    s.Matcher,
		Logger:     logger.With("component", "run"),
	}
	s.Exporter = &export.Exporter{
		DB:           gormDB,
		Dispatcher:   deps.Dispatcher,
		MonthlyLimit: cfg.Exports.MonthlyLimit,
		Logger:       logger.With("component", "export"),
	}
	s.Scanner = &scan.Scanner{
		DB:         gormDB,
		Dispatcher: deps.Dispatcher,
		Logger:     logger.With("component", "scan"),
	}
	return s
}

func (s *Service) reportUnresolved(ctx context.Context, j *models.Job, u coverage.Unresolved) {
	if !s.Config.Coverage.ReportUnresolved {
		return
	}
	if err := s.notifier.Notify(ctx, notify.Unresolved(j, u.Keys)); err != nil {
		s.Logger.Warn("unresolved coverage notification failed", "job", j.ID, "error", err)
	}
}

// CreateRun creates a run. A CI run with a commit gets an in-progress
// GitHub check when checks are configured; failing to create the check is
// logged and the run is still returned.
func (s *Service) CreateRun(ctx context.Context, opts run.CreateOpts) (*models.Run, error) {
	r, err := s.Runs.Create(opts)
	if err != nil {
		return nil, err
	}
	if r.Live || s.checks == nil || r.GitHub.URL == "" || r.GitHub.SHA == "" || r.HasCheck() {
		return r, nil
	}

	checkID, err := s.checks.Create(ctx, r.GitHub.URL, r.GitHub.SHA, r.ID)
	if err != nil {
		s.Logger.Error("create check failed", "run", r.ID, "error", err)
		return r, nil
	}
	if err := s.Runs.SetCheck(r.ID, checkID); err != nil {
		return nil, err
	}
	r.GitHub.CheckID = checkID
	return r, nil
}

// UpdateJob applies a task's report to a job. A job reaching Success from
// Pending or Running is compared with the live job for its source;
// regressions demote it to Warn and, on live runs, land in the error ledger.
// An operator moving a reviewed job to Success is not reviewed again. The
// run is pinged last.
func (s *Service) UpdateJob(ctx context.Context, id int64, patch job.Patch) (*models.Job, error) {
	prev, err := job.Get(s.DB, id)
	if err != nil {
		return nil, err
	}
	update := job.Update
	if s.Config.Jobs.StrictTransitions {
		update = job.UpdateChecked
	}
	j, err := update(s.DB, id, patch)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil && j.Status == models.StatusSuccess && !reviewed(prev.Status) {
		s.review(ctx, j)
	}
	s.Runs.Ping(ctx, j)
	if patch.Status != nil {
		s.Cache.Purge()
	}
	return j, nil
}

// reviewed reports whether a job in status has already been through the
// regression review.
func reviewed(status models.Status) bool {
	return status == models.StatusSuccess || status == models.StatusWarn
}

// review applies the regression policy to a freshly successful job.
func (s *Service) review(ctx context.Context, j *models.Job) {
	log := s.Logger.With("job", j.ID)

	master, err := delta.Master(s.DB, j)
	if errors.Is(err, apperr.ErrNoLiveMatch) {
		log.Debug("no live job to compare against")
		return
	}
	if err != nil {
		log.Error("load live job", "error", err)
		return
	}
	if master.ID == j.ID {
		return
	}

	msgs := delta.Regressions(j, master)
	if len(msgs) == 0 {
		return
	}
	if err := job.SetStatus(s.DB, j.ID, models.StatusWarn); err != nil {
		log.Error("mark regression", "error", err)
		return
	}
	j.Status = models.StatusWarn
	log.Info("job regressed", "master", master.ID, "findings", len(msgs))

	r, err := run.Get(s.DB, j.RunID)
	if err != nil {
		log.Error("load run", "error", err)
		return
	}
	if !r.Live {
		return
	}
	for _, msg := range msgs {
		if err := moderation.Record(ctx, s.DB, s.notifier, s.Logger, j, msg); err != nil {
			log.Error("record job error", "error", err)
		}
	}
}

// Moderate resolves a ledger entry.
func (s *Service) Moderate(ctx context.Context, jobID int64, action string) (*moderation.Outcome, error) {
	out, err := moderation.Moderate(ctx, s.DB, jobID, action, s.Runs.PingJob)
	if err != nil {
		return nil, err
	}
	s.Cache.Purge()
	return out, nil
}

// Delta compares a job with the live job for its source.
func (s *Service) Delta(jobID int64) (*delta.Comparison, error) {
	return delta.Compute(s.DB, jobID)
}

// JobLog returns a job's numbered, redacted log lines.
func (s *Service) JobLog(ctx context.Context, jobID int64) ([]job.LogLine, error) {
	return job.Log(ctx, s.DB, s.logs, jobID)
}

// OutputURL returns a signed download URL for one of a job's artifacts,
// refusing artifacts the job has not produced.
func (s *Service) OutputURL(ctx context.Context, jobID int64, asset string) (string, error) {
	if s.store == nil {
		return "", apperr.Validation("object store is not configured")
	}
	j, err := job.Get(s.DB, jobID)
	if err != nil {
		return "", err
	}
	if !HasAsset(j.Output, asset) {
		return "", apperr.NotFound("job %d has no %s", j.ID, asset)
	}
	return s.store.JobURL(ctx, j.ID, asset)
}

// HasAsset reports whether output records asset as produced.
func HasAsset(out models.JobOutput, asset string) bool {
	switch asset {
	case objectstore.AssetSource:
		return out.Output
	case objectstore.AssetValidated:
		return out.Validated
	case objectstore.AssetPreview:
		return out.Preview
	case objectstore.AssetCache:
		return out.Cache
	}
	return false
}

// ExportURL returns a signed download URL for a finished export.
func (s *Service) ExportURL(ctx context.Context, exportID int64) (string, error) {
	if s.store == nil {
		return "", apperr.Validation("object store is not configured")
	}
	exp, err := export.Get(s.DB, exportID)
	if err != nil {
		return "", err
	}
	if exp.Status != models.StatusSuccess {
		return "", apperr.NotReady("export %d is %s", exp.ID, exp.Status)
	}
	return s.store.ExportURL(ctx, exp.ID)
}

// CollectionURL returns a signed download URL for a collection archive.
func (s *Service) CollectionURL(ctx context.Context, name string) (string, error) {
	if s.store == nil {
		return "", apperr.Validation("object store is not configured")
	}
	return s.store.CollectionURL(ctx, name)
}
