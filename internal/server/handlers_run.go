package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openaddresses/batch-sub000/internal/batch"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/run"
)

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"healthy": true})
	}
}

type createRunRequest struct {
	Live   bool               `json:"live"`
	GitHub *models.GitHubMeta `json:"github"`
}

func handleRunCreate(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRunRequest
		if err := bindJSON(c, &req); err != nil {
			abort(c, svc, err)
			return
		}
		r, err := svc.CreateRun(c.Request.Context(), run.CreateOpts{Live: req.Live, GitHub: req.GitHub})
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

func handleRunList(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, err := queryBool(c, "live")
		if err != nil {
			abort(c, svc, err)
			return
		}
		limit, err := queryInt(c, "limit")
		if err != nil {
			abort(c, svc, err)
			return
		}
		page, err := queryInt(c, "page")
		if err != nil {
			abort(c, svc, err)
			return
		}
		res, err := svc.Runs.List(run.ListFilters{Live: live, Limit: limit, Page: page, Order: c.Query("order")})
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func handleRunGet(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "run")
		if err != nil {
			abort(c, svc, err)
			return
		}
		r, err := svc.Runs.Get(id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

type populateRequest struct {
	Jobs []run.JobSpec `json:"jobs"`
}

func handleRunPopulate(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "run")
		if err != nil {
			abort(c, svc, err)
			return
		}
		var req populateRequest
		if err := bindJSON(c, &req); err != nil {
			abort(c, svc, err)
			return
		}
		res, err := svc.Runs.Populate(c.Request.Context(), id, req.Jobs)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func handleRunJobs(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "run")
		if err != nil {
			abort(c, svc, err)
			return
		}
		if _, err := svc.Runs.Get(id); err != nil {
			abort(c, svc, err)
			return
		}
		jobs, err := job.ListByRun(svc.DB, id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		if jobs == nil {
			jobs = []models.Job{}
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func handleRunStats(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "run")
		if err != nil {
			abort(c, svc, err)
			return
		}
		stats, err := svc.Runs.Stats(id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"run": id, "status": stats})
	}
}

func handleRunPromote(svc *batch.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "run")
		if err != nil {
			abort(c, svc, err)
			return
		}
		res, err := svc.Runs.Promote(c.Request.Context(), id)
		if err != nil {
			abort(c, svc, err)
			return
		}
		svc.Cache.Purge()
		c.JSON(http.StatusOK, res)
	}
}
