package delta

import (
	"fmt"

	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/peterstace/simplefeatures/geom"
)

// Area returns the spherical area in square meters of a GeoJSON geometry in
// WGS84. Empty input has zero area.
func Area(g models.GeoJSON) (float64, error) {
	if len(g) == 0 {
		return 0, nil
	}
	parsed, err := geojson.UnmarshalGeometry(g)
	if err != nil {
		return 0, fmt.Errorf("parse geometry: %w", err)
	}
	return geo.Area(parsed.Geometry()), nil
}

// Difference returns the part of master not covered by compare. A missing
// master yields no geometry; a missing compare yields master.
func Difference(master, compare models.GeoJSON) (models.GeoJSON, error) {
	if len(master) == 0 {
		return nil, nil
	}
	if len(compare) == 0 {
		return master, nil
	}
	m, err := geom.UnmarshalGeoJSON(master)
	if err != nil {
		return nil, fmt.Errorf("parse master: %w", err)
	}
	c, err := geom.UnmarshalGeoJSON(compare)
	if err != nil {
		return nil, fmt.Errorf("parse compare: %w", err)
	}
	diff, err := geom.Difference(m, c)
	if err != nil {
		return nil, err
	}
	if diff.IsEmpty() {
		return nil, nil
	}
	out, err := diff.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return models.GeoJSON(out), nil
}
