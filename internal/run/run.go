// Package run manages runs: batches of jobs that are populated once,
// dispatched to the compute backend, and re-evaluated as their jobs finish.
package run

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/checks"
	"github.com/openaddresses/batch-sub000/internal/coverage"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/manifest"
	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/gorm"
)

// Engine runs the run lifecycle against the store and its collaborators.
type Engine struct {
	DB         *gorm.DB
	Dispatcher dispatch.Dispatcher
	Fetcher    manifest.Fetcher
	Checks     checks.Checks     // nil disables CI checks
	Matcher    *coverage.Matcher // nil skips coverage matching on result update
	Logger     *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// CreateOpts holds parameters for creating a run.
type CreateOpts struct {
	Live   bool
	GitHub *models.GitHubMeta
}

// Create inserts an open run.
func (e *Engine) Create(opts CreateOpts) (*models.Run, error) {
	r := models.Run{Live: opts.Live}
	if opts.GitHub != nil {
		r.GitHub = *opts.GitHub
	}
	if err := e.DB.Create(&r).Error; err != nil {
		return nil, apperr.Internal(err, "run: create")
	}
	return &r, nil
}

// Get retrieves a run by ID.
func (e *Engine) Get(id int64) (*models.Run, error) {
	return Get(e.DB, id)
}

// Get retrieves a run by ID.
func Get(db *gorm.DB, id int64) (*models.Run, error) {
	var r models.Run
	if err := db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("run %d not found", id)
		}
		return nil, apperr.Internal(err, "run: get %d", id)
	}
	return &r, nil
}

// SetCheck records the GitHub check a run reports to.
func (e *Engine) SetCheck(id, checkID int64) error {
	res := e.DB.Model(&models.Run{}).Where("id = ?", id).Update("github_check_id", checkID)
	if res.Error != nil {
		return apperr.Internal(res.Error, "run: set check %d", id)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("run %d not found", id)
	}
	return nil
}

// ListFilters holds optional filters for listing runs.
type ListFilters struct {
	Live  *bool
	Limit int
	Page  int
	Order string // asc or desc by id
}

// ListResult is a page of runs and the total number matching the filters.
type ListResult struct {
	Total int64        `json:"total"`
	Runs  []models.Run `json:"runs"`
}

type listRow struct {
	models.Run
	Total int64
}

// List returns a page of runs, newest first by default.
func (e *Engine) List(filters ListFilters) (*ListResult, error) {
	if filters.Limit <= 0 || filters.Limit > 1000 {
		filters.Limit = 100
	}
	if filters.Page < 0 {
		filters.Page = 0
	}
	order := "id DESC"
	if strings.EqualFold(filters.Order, "asc") {
		order = "id ASC"
	}

	q := e.DB.Table("runs").Select("runs.*, COUNT(*) OVER() AS total")
	if filters.Live != nil {
		q = q.Where("live = ?", *filters.Live)
	}

	var rows []listRow
	if err := q.Order(order).Limit(filters.Limit).Offset(filters.Page * filters.Limit).Scan(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "run: list")
	}
	res := &ListResult{Runs: make([]models.Run, 0, len(rows))}
	for _, r := range rows {
		res.Total = r.Total
		res.Runs = append(res.Runs, r.Run)
	}
	return res, nil
}

// Stats returns a histogram of job statuses for a run. Every known status is
// present, zero when no job has it.
func (e *Engine) Stats(id int64) (map[models.Status]int64, error) {
	if _, err := e.Get(id); err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.Status
		N      int64
	}
	err := e.DB.Model(&models.Job{}).
		Select("status, COUNT(*) AS n").
		Where("run_id = ?", id).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "run: stats %d", id)
	}

	out := make(map[models.Status]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out[s] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
