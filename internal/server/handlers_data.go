package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/batch"
	"github.com/openaddresses/batch-sub000/internal/coverage"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/result"
)

// geoFeature is a GeoJSON Feature wrapping a coverage region.
type geoFeature struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Properties geoProperties  `json:"properties"`
	Geometry   models.GeoJSON `json:"geometry"`
}

type geoProperties struct {
	Name   string   `json:"name"`
	Code   string   `json:"code"`
	Layers []string `json:"layers"`
}

type featureCollection struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

func toGeoFeature(f coverage.Feature) geoFeature {
	return geoFeature{
		ID:         f.ID,
		Type:       "Feature",
		Properties: geoProperties{Name: f.Name, Code: f.Code, Layers: f.Layers},
		Geometry:   f.Geom,
	}
}

// forceRefresh reports whether a request asks to bypass the cache. Any
// query parameter does.
func forceRefresh(c *gin.Context) bool {
	return len(c.Request.URL.RawQuery) > 0
}

func handleMap(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := svc.Cache.Get("map", forceRefresh(c), func() (any, error) {
			features, err := coverage.List(svc.DB)
			if err != nil {
				return nil, err
			}
			fc := featureCollection{Type: "FeatureCollection", Features: make([]geoFeature, 0, len(features))}
			for _, f := range features {
				fc.Features = append(fc.Features, toGeoFeature(f))
			}
			return fc, nil
		})
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

func handleMapFeature(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := coverage.GetFeature(svc.DB, c.Param("code"))
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, toGeoFeature(*f))
	}
}

func handleData(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fabric, err := queryBool(c, "fabric")
		if err != nil {
			abort(c, svc, err)
			return
		}
		filters := result.ListFilters{Source: c.Query("source"), Layer: c.Query("layer"), Fabric: fabric}
		// Filtered listings are never cached under the shared key.
		key := "data"
		if forceRefresh(c) {
			key = "data?" + c.Request.URL.RawQuery
		}
		body, err := svc.Cache.Get(key, forceRefresh(c), func() (any, error) {
			return result.List(svc.DB, filters)
		})
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

type fabricRequest struct {
	Fabric *bool `json:"fabric"`
}

func handleDataPatch(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "id")
		if err != nil {
			abort(c, svc, err)
			return
		}
		var req fabricRequest
		if err := bindJSON(c, &req); err != nil {
			abort(c, svc, err)
			return
		}
		if req.Fabric == nil {
			abort(c, svc, apperr.Validation("fabric is required"))
			return
		}
		if err := result.SetFabric(svc.DB, id, *req.Fabric); err != nil {
			abort(c, svc, err)
			return
		}
		svc.Cache.Del("data")
		c.JSON(http.StatusOK, gin.H{"id": id, "fabric": *req.Fabric})
	}
}
