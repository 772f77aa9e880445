package models

import "time"

// Result points at the most recent successful job for a (source, layer, name)
// triple. Source holds the job's source name.
type Result struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Source    string    `gorm:"size:255;not null;uniqueIndex:idx_results_identity" json:"source"`
	Layer     string    `gorm:"size:64;not null;uniqueIndex:idx_results_identity" json:"layer"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:idx_results_identity" json:"name"`
	JobID     int64     `gorm:"not null;index" json:"job"`
	Fabric    bool      `gorm:"default:false" json:"fabric"`
	UpdatedAt time.Time `json:"updated"`
}
