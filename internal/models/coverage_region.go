package models

import "time"

// CoverageRegion is a named geographic area that jobs are bucketed into.
// Code is derived from the coverage and unique across regions.
type CoverageRegion struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	Code      string    `gorm:"size:128;not null;uniqueIndex" json:"code"`
	Geom      GeoJSON   `json:"geom"`
	CreatedAt time.Time `json:"created"`
}

// TableName keeps the historical table name.
func (CoverageRegion) TableName() string { return "map" }
