package models

import "time"

// Export is a user-requested conversion of a job's output.
type Export struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     int64     `gorm:"not null;index" json:"job"`
	UID       int64     `gorm:"not null;index:idx_exports_uid_created" json:"uid"`
	Status    Status    `gorm:"size:16;default:Pending" json:"status"`
	Format    string    `gorm:"size:32;not null" json:"format"`
	Size      int64     `json:"size"`
	Loglink   string    `gorm:"size:512" json:"loglink"`
	Expiry    time.Time `json:"expiry"`
	CreatedAt time.Time `gorm:"index:idx_exports_uid_created" json:"created"`
}
