// Package delta compares a candidate job against the live job for the same
// source, layer and name, and applies the regression policy to the result.
package delta

import (
	"encoding/json"
	"strconv"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/result"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Bounds is a geometry with its area in square meters.
type Bounds struct {
	Area float64        `json:"area"`
	Geom models.GeoJSON `json:"geom"`
}

// Side is one of the two compared jobs.
type Side struct {
	ID     int64          `json:"id"`
	Count  int64          `json:"count"`
	Stats  map[string]any `json:"stats"`
	Bounds Bounds         `json:"bounds"`
}

// Diff is the difference between the two sides. Count and area are
// master minus compare; stats are compare minus master.
type Diff struct {
	Count  int64          `json:"count"`
	Stats  map[string]any `json:"stats"`
	Bounds Bounds         `json:"bounds"`
}

// Comparison is the full output of a delta.
type Comparison struct {
	Compare Side `json:"compare"`
	Master  Side `json:"master"`
	Delta   Diff `json:"delta"`
}

// Compute compares the job compareID with the live job for its triple.
func Compute(db *gorm.DB, compareID int64) (*Comparison, error) {
	compare, err := job.Get(db, compareID)
	if err != nil {
		return nil, err
	}
	if compare.Status != models.StatusSuccess {
		return nil, apperr.NotReady("job %d is %s, delta requires Success", compare.ID, compare.Status)
	}
	master, err := Master(db, compare)
	if err != nil {
		return nil, err
	}
	return Compare(compare, master)
}

// Master returns the live job for j's (source name, layer, name).
func Master(db *gorm.DB, j *models.Job) (*models.Job, error) {
	live, err := result.Find(db, j.SourceName, j.Layer, j.Name)
	if err != nil {
		return nil, err
	}
	return job.Get(db, live.JobID)
}

// Compare diffs two loaded jobs.
func Compare(compare, master *models.Job) (*Comparison, error) {
	cArea, err := Area(compare.Bounds)
	if err != nil {
		return nil, apperr.Validation("job %d bounds: %v", compare.ID, err)
	}
	mArea, err := Area(master.Bounds)
	if err != nil {
		return nil, apperr.Validation("job %d bounds: %v", master.ID, err)
	}
	diffGeom, err := Difference(master.Bounds, compare.Bounds)
	if err != nil {
		return nil, apperr.Validation("bounds difference of %d and %d: %v", master.ID, compare.ID, err)
	}

	cStats := plain(compare.Stats)
	mStats := plain(master.Stats)
	return &Comparison{
		Compare: Side{ID: compare.ID, Count: compare.Count, Stats: cStats, Bounds: Bounds{Area: cArea, Geom: compare.Bounds}},
		Master:  Side{ID: master.ID, Count: master.Count, Stats: mStats, Bounds: Bounds{Area: mArea, Geom: master.Bounds}},
		Delta: Diff{
			Count:  master.Count - compare.Count,
			Stats:  DiffStats(cStats, mStats),
			Bounds: Bounds{Area: mArea - cArea, Geom: diffGeom},
		},
	}, nil
}

// DiffStats subtracts master from compare key by key. The result has exactly
// compare's shape: nested maps are diffed element-wise, keys missing from
// master count as 0, and non-numeric leaves diff to 0.
func DiffStats(compare, master map[string]any) map[string]any {
	out := make(map[string]any, len(compare))
	for k, cv := range compare {
		if cm, ok := asMap(cv); ok {
			mm, _ := asMap(master[k])
			out[k] = DiffStats(cm, mm)
			continue
		}
		cf, ok := toFloat(cv)
		if !ok {
			out[k] = float64(0)
			continue
		}
		mf, _ := toFloat(master[k])
		out[k] = cf - mf
	}
	return out
}

func plain(m datatypes.JSONMap) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any(m)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case datatypes.JSONMap:
		return map[string]any(m), true
	}
	return nil, false
}

// toFloat converts the numeric forms a stats map can hold after JSON decoding.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// lookupFloat reads stats[outer][inner] as a number.
func lookupFloat(stats map[string]any, outer, inner string) (float64, bool) {
	m, ok := asMap(stats[outer])
	if !ok {
		return 0, false
	}
	return toFloat(m[inner])
}
