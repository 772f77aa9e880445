package coverage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/manifest"
	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Feature is a region together with the layers its jobs provide.
type Feature struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Code   string         `json:"code"`
	Geom   models.GeoJSON `json:"geom"`
	Layers []string       `json:"layers"`
}

// Matcher matches jobs against the coverage index.
type Matcher struct {
	DB      *gorm.DB
	Fetcher manifest.Fetcher
	Logger  *slog.Logger

	// OnUnresolved, when set, is told about coverage the classifier cannot
	// resolve. It must not block.
	OnUnresolved func(ctx context.Context, j *models.Job, u Unresolved)
}

func (m *Matcher) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Match fetches the job's manifest, classifies its coverage and points the
// job at the matching region, creating the region when the coverage carries
// a geometry. It reports whether the job was matched.
func (m *Matcher) Match(ctx context.Context, j *models.Job) (bool, error) {
	ref := j.Source
	if raw, err := manifest.CheckReference(j.Source); err == nil {
		ref = raw
	}
	src, err := manifest.Fetch(ctx, m.Fetcher, ref)
	if err != nil {
		return false, err
	}

	cov := Classify(src.Coverage)
	if cov == nil {
		return false, nil
	}
	if u, ok := cov.(Unresolved); ok {
		m.logger().Warn("coverage: unresolved key combination", "job", j.ID, "source", j.SourceName, "keys", u.Keys)
		if m.OnUnresolved != nil {
			m.OnUnresolved(ctx, j, u)
		}
		return false, nil
	}
	return Assign(m.DB, j, cov)
}

// Assign resolves cov to a region and sets the job's map id.
func Assign(db *gorm.DB, j *models.Job, cov Coverage) (bool, error) {
	var geom models.GeoJSON
	if cg, ok := cov.(CustomGeometry); ok {
		geom = cg.Geometry
	}
	region, err := Resolve(db, cov.Code(), j.SourceName, geom)
	if err != nil {
		return false, err
	}
	if region == nil {
		return false, nil
	}
	if err := job.SetMap(db, j.ID, region.ID); err != nil {
		return false, err
	}
	j.MapID = &region.ID
	return true, nil
}

// Resolve returns the region for code. An absent region is inserted when a
// geometry is given; concurrent inserts of the same code converge on one row
// through the unique code index. Without a geometry an absent region yields nil.
func Resolve(db *gorm.DB, code, name string, geom models.GeoJSON) (*models.CoverageRegion, error) {
	if code == "" {
		return nil, apperr.Validation("coverage code is required")
	}
	region, err := findByCode(db, code)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return region, err
	}
	if len(geom) == 0 {
		return nil, nil
	}

	insert := models.CoverageRegion{Name: name, Code: code, Geom: geom}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&insert).Error; err != nil {
		return nil, apperr.Internal(err, "coverage: insert region %s", code)
	}
	// Read back by code: on conflict the row is the other writer's.
	return findByCode(db, code)
}

func findByCode(db *gorm.DB, code string) (*models.CoverageRegion, error) {
	var region models.CoverageRegion
	if err := db.Where("code = ?", code).First(&region).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no coverage region with code %s", code)
		}
		return nil, apperr.Internal(err, "coverage: find %s", code)
	}
	return &region, nil
}

// GetFeature returns the region with code and the distinct layers of the
// jobs pointing at it. A region without jobs has no layers.
func GetFeature(db *gorm.DB, code string) (*Feature, error) {
	region, err := findByCode(db, code)
	if err != nil {
		return nil, err
	}
	var layers []string
	if err := db.Model(&models.Job{}).
		Where("map_id = ? AND layer IS NOT NULL AND layer <> ''", region.ID).
		Distinct("layer").
		Order("layer ASC").
		Pluck("layer", &layers).Error; err != nil {
		return nil, apperr.Internal(err, "coverage: layers of %s", code)
	}
	if layers == nil {
		layers = []string{}
	}
	return &Feature{ID: region.ID, Name: region.Name, Code: region.Code, Geom: region.Geom, Layers: layers}, nil
}

type regionLayer struct {
	MapID int64
	Layer string
}

// List returns every region with its layers, ordered by code.
func List(db *gorm.DB) ([]Feature, error) {
	var regions []models.CoverageRegion
	if err := db.Order("code ASC").Find(&regions).Error; err != nil {
		return nil, apperr.Internal(err, "coverage: list regions")
	}

	var pairs []regionLayer
	if err := db.Model(&models.Job{}).
		Select("DISTINCT map_id, layer").
		Where("map_id IS NOT NULL AND layer <> ''").
		Order("layer ASC").
		Scan(&pairs).Error; err != nil {
		return nil, apperr.Internal(err, "coverage: list layers")
	}
	byRegion := map[int64][]string{}
	for _, p := range pairs {
		byRegion[p.MapID] = append(byRegion[p.MapID], p.Layer)
	}

	out := make([]Feature, 0, len(regions))
	for _, r := range regions {
		layers := byRegion[r.ID]
		if layers == nil {
			layers = []string{}
		}
		out = append(out, Feature{ID: r.ID, Name: r.Name, Code: r.Code, Geom: r.Geom, Layers: layers})
	}
	return out, nil
}
