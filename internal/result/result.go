// Package result keeps the authoritative job for every (source, layer, name)
// triple: the most recent successful job of a live run.
package result

import (
	"time"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Update points the result row for the job's triple at the job, inserting
// the row if none exists. The upsert relies on the unique identity index, so
// concurrent completions for the same triple never create a second row.
func Update(db *gorm.DB, j *models.Job) (*models.Result, error) {
	if j.SourceName == "" || j.Layer == "" || j.Name == "" {
		return nil, apperr.Validation("job %d has no source, layer or name", j.ID)
	}
	row := models.Result{
		Source:    j.SourceName,
		Layer:     j.Layer,
		Name:      j.Name,
		JobID:     j.ID,
		UpdatedAt: time.Now(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "layer"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"job_id", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, apperr.Internal(err, "result: upsert %s/%s/%s", j.SourceName, j.Layer, j.Name)
	}
	return Find(db, j.SourceName, j.Layer, j.Name)
}

// Find returns the single result row for a triple. No row is NoLiveMatch;
// more than one breaks the identity invariant and is an internal error.
func Find(db *gorm.DB, source, layer, name string) (*models.Result, error) {
	var rows []models.Result
	if err := db.Where("source = ? AND layer = ? AND name = ?", source, layer, name).Limit(2).Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "result: find %s/%s/%s", source, layer, name)
	}
	switch len(rows) {
	case 0:
		return nil, apperr.NoLiveMatch("no live job for %s %s/%s", source, layer, name)
	case 1:
		return &rows[0], nil
	}
	return nil, apperr.Internal(nil, "result: %d rows for %s/%s/%s", len(rows), source, layer, name)
}

// ListFilters holds optional filters for listing results.
type ListFilters struct {
	Source string
	Layer  string
	Fabric *bool
}

// Entry is a result row joined with its job.
type Entry struct {
	models.Result
	Status models.Status    `json:"status"`
	Count  int64            `json:"count"`
	Output models.JobOutput `json:"output"`
	MapID  *int64           `json:"map"`
}

// List returns results with their job's status, count and outputs.
func List(db *gorm.DB, filters ListFilters) ([]Entry, error) {
	q := db.Table("results").
		Select("results.*, job.status AS status, job.count AS count, job.output AS output, job.map_id AS map_id").
		Joins("JOIN job ON job.id = results.job_id")
	if filters.Source != "" {
		q = q.Where("results.source LIKE ?", filters.Source+"%")
	}
	if filters.Layer != "" {
		q = q.Where("results.layer = ?", filters.Layer)
	}
	if filters.Fabric != nil {
		q = q.Where("results.fabric = ?", *filters.Fabric)
	}
	out := []Entry{}
	if err := q.Order("results.source ASC, results.layer ASC, results.name ASC").Scan(&out).Error; err != nil {
		return nil, apperr.Internal(err, "result: list")
	}
	return out, nil
}

// SetFabric flags whether a result is part of the fabric collection.
func SetFabric(db *gorm.DB, id int64, fabric bool) error {
	res := db.Model(&models.Result{}).Where("id = ?", id).Update("fabric", fabric)
	if res.Error != nil {
		return apperr.Internal(res.Error, "result: set fabric %d", id)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("result %d not found", id)
	}
	return nil
}
