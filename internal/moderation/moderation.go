// Package moderation is the inbox of job failures awaiting a human decision.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/notify"
	"gorm.io/gorm"
)

// Moderation actions.
const (
	ActionConfirm = "confirm"
	ActionReject  = "reject"
)

// Outcome is the result of Moderate.
type Outcome struct {
	JobID  int64  `json:"job"`
	Action string `json:"moderate"`
}

// Entry is one job's ledger messages together with job context.
type Entry struct {
	JobID      int64         `json:"job"`
	RunID      int64         `json:"run"`
	SourceName string        `json:"source_name"`
	Layer      string        `json:"layer"`
	Name       string        `json:"name"`
	Status     models.Status `json:"status"`
	Messages   []string      `json:"messages"`
	Created    time.Time     `json:"created"`
}

// Pinger runs the downstream run-completion effects for a job.
type Pinger func(ctx context.Context, jobID int64)

// Record appends message to the ledger for j and sends an alert. Delivery
// failures are logged, not returned.
func Record(ctx context.Context, db *gorm.DB, n notify.Notifier, logger *slog.Logger, j *models.Job, message string) error {
	row := models.JobError{JobID: j.ID, Message: message}
	if err := db.Create(&row).Error; err != nil {
		return apperr.Internal(err, "moderation: record job %d", j.ID)
	}
	if n == nil {
		return nil
	}
	if err := n.Notify(ctx, notify.JobError(j, message)); err != nil && logger != nil {
		logger.Warn("job error notification failed", "job", j.ID, "error", err)
	}
	return nil
}

type listRow struct {
	JobID      int64
	RunID      int64
	SourceName string
	Layer      string
	Name       string
	Status     models.Status
	Message    string
	CreatedAt  time.Time
}

// List returns ledger entries grouped by job, oldest message first, jobs in
// descending id order.
func List(db *gorm.DB) ([]Entry, error) {
	var rows []listRow
	err := db.Table("job_errors").
		Select("job_errors.job_id, job.run_id, job.source_name, job.layer, job.name, job.status, job_errors.message, job_errors.created_at").
		Joins("JOIN job ON job.id = job_errors.job_id").
		Order("job_errors.job_id DESC, job_errors.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "moderation: list")
	}

	entries := []Entry{}
	for _, r := range rows {
		if n := len(entries); n > 0 && entries[n-1].JobID == r.JobID {
			entries[n-1].Messages = append(entries[n-1].Messages, r.Message)
			continue
		}
		entries = append(entries, Entry{
			JobID:      r.JobID,
			RunID:      r.RunID,
			SourceName: r.SourceName,
			Layer:      r.Layer,
			Name:       r.Name,
			Status:     r.Status,
			Messages:   []string{r.Message},
			Created:    r.CreatedAt,
		})
	}
	return entries, nil
}

// Count returns the number of jobs with outstanding ledger messages.
func Count(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&models.JobError{}).Distinct("job_id").Count(&n).Error; err != nil {
		return 0, apperr.Internal(err, "moderation: count")
	}
	return n, nil
}

// Clear empties the ledger.
func Clear(db *gorm.DB) error {
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.JobError{}).Error; err != nil {
		return apperr.Internal(err, "moderation: clear")
	}
	return nil
}

// Moderate applies a human decision to a job. confirm accepts the job as
// Success unless it hard-failed; reject marks it Fail. Either way the job's
// ledger messages are removed and ping runs.
func Moderate(ctx context.Context, db *gorm.DB, jobID int64, action string, ping Pinger) (*Outcome, error) {
	j, err := job.Get(db, jobID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionConfirm:
		if j.Status == models.StatusFail {
			return nil, apperr.InvalidModeration("failed jobs can only be suppressed")
		}
		if err := job.SetStatus(db, j.ID, models.StatusSuccess); err != nil {
			return nil, err
		}
	case ActionReject:
		if j.Status != models.StatusFail {
			if err := job.SetStatus(db, j.ID, models.StatusFail); err != nil {
				return nil, err
			}
		}
	default:
		return nil, apperr.Validation("moderate must be %q or %q, got %q", ActionConfirm, ActionReject, action)
	}

	if err := db.Where("job_id = ?", j.ID).Delete(&models.JobError{}).Error; err != nil {
		return nil, apperr.Internal(err, "moderation: delete errors for job %d", j.ID)
	}

	if ping != nil {
		ping(ctx, j.ID)
	}
	return &Outcome{JobID: j.ID, Action: action}, nil
}

// String renders an entry for terminal output.
func (e Entry) String() string {
	return fmt.Sprintf("job %d (%s/%s/%s, %s): %d message(s)", e.JobID, e.SourceName, e.Layer, e.Name, e.Status, len(e.Messages))
}
