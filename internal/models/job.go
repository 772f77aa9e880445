package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Job is one unit of processing work for a (source, layer, name) triple.
type Job struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID      int64             `gorm:"not null;index" json:"run"`
	Source     string            `gorm:"size:1024;not null" json:"source"`
	SourceName string            `gorm:"size:255;index" json:"source_name"`
	Layer      string            `gorm:"size:64;not null;index" json:"layer"`
	Name       string            `gorm:"size:255;not null" json:"name"`
	Status     Status            `gorm:"size:16;default:Pending;index" json:"status"`
	Output     JobOutput         `gorm:"type:json" json:"output"`
	Count      int64             `json:"count"`
	Bounds     GeoJSON           `json:"bounds"`
	Stats      datatypes.JSONMap `gorm:"type:json" json:"stats"`
	MapID      *int64            `gorm:"index" json:"map"`
	Size       int64             `json:"size"`
	Loglink    string            `gorm:"size:512" json:"loglink"`
	Version    string            `gorm:"size:64" json:"version"`
	CreatedAt  time.Time         `json:"created"`
	UpdatedAt  time.Time         `json:"updated"`
}

// JobOutput flags which assets a finished job uploaded.
type JobOutput struct {
	Cache     bool `json:"cache"`
	Output    bool `json:"output"`
	Preview   bool `json:"preview"`
	Validated bool `json:"validated"`
}

// Value implements driver.Valuer.
func (o JobOutput) Value() (driver.Value, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. NULL scans to all-false.
func (o *JobOutput) Scan(src any) error {
	*o = JobOutput{}
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return fmt.Errorf("models: scan job output from %T", src)
	}
}

// TableName keeps the historical table name.
func (Job) TableName() string { return "job" }
