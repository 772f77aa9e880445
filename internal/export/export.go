// Package export manages user-requested conversions of job output into
// downloadable formats.
package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/gorm"
)

// Formats lists the supported export formats.
var Formats = []string{"csv", "geojson", "geojsonld", "shapefile"}

// ValidFormat reports whether f is a supported format.
func ValidFormat(f string) bool {
	for _, v := range Formats {
		if v == f {
			return true
		}
	}
	return false
}

// Exporter creates exports and hands them to the compute backend.
type Exporter struct {
	DB         *gorm.DB
	Dispatcher dispatch.Dispatcher
	// MonthlyLimit caps the exports one user may create per calendar month.
	// Zero means unlimited.
	MonthlyLimit int
	Now          func() time.Time
	Logger       *slog.Logger
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// MonthStart returns midnight on the first day of t's month, in t's zone.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Create records an export of a job's output for uid and dispatches it.
func (e *Exporter) Create(ctx context.Context, uid, jobID int64, format string) (*models.Export, error) {
	if uid == 0 {
		return nil, apperr.Validation("uid is required")
	}
	if !ValidFormat(format) {
		return nil, apperr.Validation("format must be one of %v, got %q", Formats, format)
	}
	j, err := job.Get(e.DB, jobID)
	if err != nil {
		return nil, err
	}
	if !j.Output.Output {
		return nil, apperr.NotReady("job %d has no output to export", j.ID)
	}

	if e.MonthlyLimit > 0 {
		used, err := e.CountSince(uid, MonthStart(e.now()))
		if err != nil {
			return nil, err
		}
		if used >= int64(e.MonthlyLimit) {
			return nil, apperr.QuotaExceeded("monthly export limit of %d reached", e.MonthlyLimit)
		}
	}

	exp := models.Export{JobID: j.ID, UID: uid, Format: format, Status: models.StatusPending}
	if err := e.DB.Create(&exp).Error; err != nil {
		return nil, apperr.Internal(err, "export: create")
	}

	_, err = e.Dispatcher.Submit(ctx, dispatch.KindExport, dispatch.Payload{JobID: j.ID, ExportID: exp.ID, Format: format})
	if err != nil {
		if perr := e.DB.Model(&exp).Update("status", models.StatusFail).Error; perr != nil && e.Logger != nil {
			e.Logger.Error("marking undispatched export failed", "export", exp.ID, "error", perr)
		}
		return nil, err
	}
	return &exp, nil
}

// CountSince counts the exports uid created at or after since.
func (e *Exporter) CountSince(uid int64, since time.Time) (int64, error) {
	var n int64
	err := e.DB.Model(&models.Export{}).Where("uid = ? AND created_at >= ?", uid, since).Count(&n).Error
	if err != nil {
		return 0, apperr.Internal(err, "export: count for %d", uid)
	}
	return n, nil
}

// Get retrieves an export by ID.
func Get(db *gorm.DB, id int64) (*models.Export, error) {
	var exp models.Export
	if err := db.First(&exp, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("export %d not found", id)
		}
		return nil, apperr.Internal(err, "export: get %d", id)
	}
	return &exp, nil
}

// List returns uid's exports, newest first. uid 0 lists every export.
func List(db *gorm.DB, uid int64) ([]models.Export, error) {
	q := db.Order("id DESC")
	if uid != 0 {
		q = q.Where("uid = ?", uid)
	}
	exports := []models.Export{}
	if err := q.Find(&exports).Error; err != nil {
		return nil, apperr.Internal(err, "export: list")
	}
	return exports, nil
}

// Patch holds the fields the export task reports back.
type Patch struct {
	Status  *models.Status `json:"status,omitempty"`
	Size    *int64         `json:"size,omitempty"`
	Loglink *string        `json:"loglink,omitempty"`
	Expiry  *time.Time     `json:"expiry,omitempty"`
}

// Update applies patch to an export.
func Update(db *gorm.DB, id int64, patch Patch) (*models.Export, error) {
	updates := map[string]interface{}{}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Validation("invalid status %q", *patch.Status)
		}
		updates["status"] = *patch.Status
	}
	if patch.Size != nil {
		updates["size"] = *patch.Size
	}
	if patch.Loglink != nil {
		updates["loglink"] = *patch.Loglink
	}
	if patch.Expiry != nil {
		updates["expiry"] = *patch.Expiry
	}
	if _, err := Get(db, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := db.Model(&models.Export{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, apperr.Internal(err, "export: update %d", id)
		}
	}
	return Get(db, id)
}
