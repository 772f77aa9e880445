package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openaddresses/batch-sub000/internal/batch"
	"github.com/openaddresses/batch-sub000/internal/export"
	"github.com/openaddresses/batch-sub000/internal/moderation"
)

func handleErrorList(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := moderation.List(svc.DB)
		if err != nil {
			abort(c, svc, err)
			return
		}
		if entries == nil {
			entries = []moderation.Entry{}
		}
		c.JSON(http.StatusOK, entries)
	}
}

func handleErrorCount(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := moderation.Count(svc.DB)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}

type moderateRequest struct {
	Moderate string `json:"moderate"`
}

func handleErrorModerate(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "job")
		if err != nil {
			abort(c, svc, err)
			return
		}
		var req moderateRequest
		if err := bindJSON(c, &req); err != nil {
			abort(c, svc, err)
			return
		}
		out, err := svc.Moderate(c.Request.Context(), id, req.Moderate)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

type createExportRequest struct {
	UID    int64  `json:"uid"`
	JobID  int64  `json:"job"`
	Format string `json:"format"`
}

func handleExportCreate(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createExportRequest
		if err := bindJSON(c, &req); err != nil {
			abort(c, svc, err)
			return
		}
		exp, err := svc.Exporter.Create(c.Request.Context(), req.UID, req.JobID, req.Format)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

func handleExportList(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := queryInt64(c, "uid")
		if err != nil {
			abort(c, svc, err)
			return
		}
		exports, err := export.List(svc.DB, uid)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, exports)
	}
}

func handleExportGet(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "export")
		if err != nil {
			abort(c, svc, err)
			return
		}
		exp, err := export.Get(svc.DB, id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

func handleExportPatch(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "export")
		if err != nil {
			abort(c, svc, err)
			return
		}
		var patch export.Patch
		if err := bindJSON(c, &patch); err != nil {
			abort(c, svc, err)
			return
		}
		exp, err := export.Update(svc.DB, id, patch)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

func handleExportOutput(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "export")
		if err != nil {
			abort(c, svc, err)
			return
		}
		url, err := svc.ExportURL(c.Request.Context(), id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.Redirect(http.StatusFound, url)
	}
}

func handleScan(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle, err := svc.Scanner.Trigger(c.Request.Context())
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"handle": handle})
	}
}

func handleCollection(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		url, err := svc.CollectionURL(c.Request.Context(), c.Param("name"))
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.Redirect(http.StatusFound, url)
	}
}
