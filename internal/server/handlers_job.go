package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openaddresses/batch-sub000/internal/batch"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/objectstore"
)

func handleJobList(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, err := jobFilters(c)
		if err != nil {
			abort(c, svc, err)
			return
		}
		res, err := job.List(svc.DB, filters)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func jobFilters(c *gin.Context) (job.ListFilters, error) {
	var f job.ListFilters
	var err error
	if f.Status, err = queryStatuses(c); err != nil {
		return f, err
	}
	if f.Live, err = queryBool(c, "live"); err != nil {
		return f, err
	}
	if f.RunID, err = queryInt64(c, "run"); err != nil {
		return f, err
	}
	if f.After, err = queryTime(c, "after"); err != nil {
		return f, err
	}
	if f.Before, err = queryTime(c, "before"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	f.Source = c.Query("source")
	f.Layer = c.Query("layer")
	f.Order = c.Query("order")
	return f, nil
}

func handleJobGet(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		j, err := job.Get(svc.DB, id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, j)
	}
}

func handleJobPatch(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		var patch job.Patch
		if err := bindJSON(c, &patch); err != nil {
			abort(c, svc, err)
			return
		}
		j, err := svc.UpdateJob(c.Request.Context(), id, patch)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, j)
	}
}

func handleJobLog(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		lines, err := svc.JobLog(c.Request.Context(), id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		if c.Query("format") == "csv" {
			body, err := job.FormatCSV(lines)
			if err != nil {
				abort(c, svc, err)
				return
			}
			c.Data(http.StatusOK, "text/csv", body)
			return
		}
		c.JSON(http.StatusOK, lines)
	}
}

func handleJobDelta(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		cmp, err := svc.Delta(id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, cmp)
	}
}

func handleJobOutput(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		asset := c.Param("asset")
		if !objectstore.ValidAsset(asset) {
			abort(c, svc, errUnknownAsset(asset))
			return
		}
		url, err := svc.OutputURL(c.Request.Context(), id, asset)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.Redirect(http.StatusFound, url)
	}
}

func handleJobRerun(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		j, err := svc.Runs.Redispatch(c.Request.Context(), id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, j)
	}
}
