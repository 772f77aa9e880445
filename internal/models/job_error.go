package models

import "time"

// JobError is one moderation message attached to a job.
type JobError struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     int64     `gorm:"not null;index" json:"job"`
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `json:"created"`
}
