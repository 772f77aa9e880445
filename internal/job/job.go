// Package job provides the job store: generation, patching, listing and log
// retrieval for individual units of work.
package job

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenerateOpts holds parameters for generating a new job.
type GenerateOpts struct {
	RunID  int64
	Source string
	Layer  string
	Name   string
	Output *models.JobOutput // nil means all-false
}

// Patch holds the fields an update may set. Nil fields are left untouched.
type Patch struct {
	Status  *models.Status    `json:"status,omitempty"`
	Output  *models.JobOutput `json:"output,omitempty"`
	Count   *int64            `json:"count,omitempty"`
	Bounds  models.GeoJSON    `json:"bounds,omitempty"`
	Stats   map[string]any    `json:"stats,omitempty"`
	Size    *int64            `json:"size,omitempty"`
	Loglink *string           `json:"loglink,omitempty"`
	Version *string           `json:"version,omitempty"`
	MapID   *int64            `json:"map,omitempty"`
}

// ValidTransitions maps each status to the statuses a checked update may move
// it to. Staying in the same status is always allowed.
var ValidTransitions = map[models.Status][]models.Status{
	models.StatusPending: {models.StatusRunning, models.StatusFail},
	models.StatusRunning: {models.StatusSuccess, models.StatusWarn, models.StatusFail},
	models.StatusWarn:    {models.StatusSuccess, models.StatusFail},
	models.StatusSuccess: {models.StatusWarn, models.StatusFail},
	models.StatusFail:    {models.StatusPending},
}

// SourceName derives the short source name from a manifest URL by stripping
// everything up to a sources/ prefix and the .json suffix.
//
//	https://raw.githubusercontent.com/o/r/sha/sources/us/pa/bucks.json -> us/pa/bucks
func SourceName(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	if i := strings.Index(p, "sources/"); i >= 0 {
		p = p[i+len("sources/"):]
	}
	p = strings.TrimSuffix(p, ".json")
	return strings.TrimPrefix(p, "/")
}

// Generate creates a Pending job.
func Generate(db *gorm.DB, opts GenerateOpts) (*models.Job, error) {
	switch {
	case opts.RunID == 0:
		return nil, apperr.Validation("run is required")
	case opts.Source == "":
		return nil, apperr.Validation("source is required")
	case opts.Layer == "":
		return nil, apperr.Validation("layer is required")
	case opts.Name == "":
		return nil, apperr.Validation("name is required")
	}

	j := models.Job{
		RunID:      opts.RunID,
		Source:     opts.Source,
		SourceName: SourceName(opts.Source),
		Layer:      opts.Layer,
		Name:       opts.Name,
		Status:     models.StatusPending,
	}
	if opts.Output != nil {
		j.Output = *opts.Output
	}
	if err := db.Create(&j).Error; err != nil {
		return nil, apperr.Internal(err, "job: create")
	}
	return &j, nil
}

// Get retrieves a job by ID.
func Get(db *gorm.DB, id int64) (*models.Job, error) {
	var j models.Job
	if err := db.Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("job %d not found", id)
		}
		return nil, apperr.Internal(err, "job: get %d", id)
	}
	return &j, nil
}

// ListByRun returns every job of a run in ID order.
func ListByRun(db *gorm.DB, runID int64) ([]models.Job, error) {
	var jobs []models.Job
	if err := db.Where("run_id = ?", runID).Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, apperr.Internal(err, "job: list run %d", runID)
	}
	return jobs, nil
}

// Update merges patch into the job without checking the status transition.
func Update(db *gorm.DB, id int64, patch Patch) (*models.Job, error) {
	return update(db, id, patch, false)
}

// UpdateChecked is Update with the status transition checked against
// ValidTransitions.
func UpdateChecked(db *gorm.DB, id int64, patch Patch) (*models.Job, error) {
	return update(db, id, patch, true)
}

func update(db *gorm.DB, id int64, patch Patch, strict bool) (*models.Job, error) {
	current, err := Get(db, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Validation("status %q is not valid", *patch.Status)
		}
		if strict && !IsValidTransition(current.Status, *patch.Status) {
			return nil, apperr.Validation("invalid status transition from %s to %s; valid transitions: %v",
				current.Status, *patch.Status, ValidTransitions[current.Status])
		}
	}

	updates := patch.updates()
	if len(updates) == 0 {
		return current, nil
	}
	if err := db.Model(&models.Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, apperr.Internal(err, "job: update %d", id)
	}
	return Get(db, id)
}

func (p Patch) updates() map[string]interface{} {
	u := map[string]interface{}{}
	if p.Status != nil {
		u["status"] = *p.Status
	}
	if p.Output != nil {
		u["output"] = *p.Output
	}
	if p.Count != nil {
		u["count"] = *p.Count
	}
	if len(p.Bounds) > 0 {
		u["bounds"] = p.Bounds
	}
	if p.Stats != nil {
		u["stats"] = datatypes.JSONMap(p.Stats)
	}
	if p.Size != nil {
		u["size"] = *p.Size
	}
	if p.Loglink != nil {
		u["loglink"] = *p.Loglink
	}
	if p.Version != nil {
		u["version"] = *p.Version
	}
	if p.MapID != nil {
		u["map_id"] = *p.MapID
	}
	return u
}

// IsValidTransition checks whether a status transition is allowed.
func IsValidTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// SetStatus forces a job's status. Used by moderation and re-dispatch, which
// are allowed to move a job anywhere.
func SetStatus(db *gorm.DB, id int64, status models.Status) error {
	res := db.Model(&models.Job{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return apperr.Internal(res.Error, "job: set status %d", id)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("job %d not found", id)
	}
	return nil
}

// SetMap points a job at a coverage region.
func SetMap(db *gorm.DB, id, mapID int64) error {
	if err := db.Model(&models.Job{}).Where("id = ?", id).Update("map_id", mapID).Error; err != nil {
		return apperr.Internal(err, "job: set map %d", id)
	}
	return nil
}

// ListFilters holds optional filters for listing jobs.
type ListFilters struct {
	Status []models.Status
	Source string // case-insensitive substring of the source name
	Layer  string // case-insensitive prefix
	RunID  int64
	Live   *bool
	After  time.Time
	Before time.Time
	Limit  int
	Page   int
	Order  string // asc or desc by id
}

// ListResult is a page of jobs and the total number matching the filters.
type ListResult struct {
	Total int64        `json:"total"`
	Jobs  []models.Job `json:"jobs"`
}

type listRow struct {
	models.Job
	Total int64
}

// List returns a page of jobs matching filters, newest first by default.
func List(db *gorm.DB, filters ListFilters) (*ListResult, error) {
	if filters.Limit <= 0 || filters.Limit > 1000 {
		filters.Limit = 100
	}
	if filters.Page < 0 {
		filters.Page = 0
	}
	order := "job.id DESC"
	if strings.EqualFold(filters.Order, "asc") {
		order = "job.id ASC"
	}

	q := db.Table("job").Select("job.*, COUNT(*) OVER() AS total")
	if len(filters.Status) > 0 {
		q = q.Where("job.status IN ?", filters.Status)
	}
	if filters.Source != "" {
		q = q.Where("LOWER(job.source_name) LIKE ?", "%"+strings.ToLower(filters.Source)+"%")
	}
	if filters.Layer != "" {
		q = q.Where("LOWER(job.layer) LIKE ?", strings.ToLower(filters.Layer)+"%")
	}
	if filters.RunID != 0 {
		q = q.Where("job.run_id = ?", filters.RunID)
	}
	if filters.Live != nil {
		q = q.Joins("JOIN runs ON runs.id = job.run_id").Where("runs.live = ?", *filters.Live)
	}
	if !filters.After.IsZero() {
		q = q.Where("job.created_at >= ?", filters.After)
	}
	if !filters.Before.IsZero() {
		q = q.Where("job.created_at < ?", filters.Before)
	}

	var rows []listRow
	if err := q.Order(order).Limit(filters.Limit).Offset(filters.Page * filters.Limit).Scan(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "job: list")
	}

	res := &ListResult{Jobs: make([]models.Job, 0, len(rows))}
	for _, r := range rows {
		res.Total = r.Total
		res.Jobs = append(res.Jobs, r.Job)
	}
	return res, nil
}

// String renders a job for log lines.
func String(j *models.Job) string {
	return fmt.Sprintf("job %d (%s %s/%s)", j.ID, j.SourceName, j.Layer, j.Name)
}
