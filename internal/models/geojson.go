package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// GeoJSON is a raw GeoJSON document stored in a JSON column. An empty value is NULL.
type GeoJSON json.RawMessage

// Value implements driver.Valuer.
func (g GeoJSON) Value() (driver.Value, error) {
	if len(g) == 0 {
		return nil, nil
	}
	return string(g), nil
}

// Scan implements sql.Scanner. NULL scans to an empty value.
func (g *GeoJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*g = nil
	case []byte:
		*g = append((*g)[:0], v...)
	case string:
		*g = GeoJSON(v)
	default:
		return fmt.Errorf("models: scan geojson from %T", src)
	}
	return nil
}

// GormDataType sets the column type used by migrations.
func (GeoJSON) GormDataType() string { return "json" }

// MarshalJSON embeds the document as-is; empty marshals to null.
func (g GeoJSON) MarshalJSON() ([]byte, error) {
	if len(g) == 0 {
		return []byte("null"), nil
	}
	return []byte(g), nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (g *GeoJSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = nil
		return nil
	}
	*g = append((*g)[:0], data...)
	return nil
}
