package server

import (
	"github.com/gin-gonic/gin"
	"github.com/openaddresses/batch-sub000/internal/batch"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, svc *batch.Service) {
	api := router.Group("/api")

	api.GET("/health", handleHealth())

	// Runs.
	api.POST("/run", handleRunCreate(svc))
	api.GET("/run", handleRunList(svc))
	api.GET("/run/:run", handleRunGet(svc))
	api.POST("/run/:run/jobs", handleRunPopulate(svc))
	api.GET("/run/:run/jobs", handleRunJobs(svc))
	api.GET("/run/:run/stats", handleRunStats(svc))
	api.POST("/run/:run/promote", handleRunPromote(svc))

	// Jobs.
	api.GET("/job", handleJobList(svc))
	api.GET("/job/:job", handleJobGet(svc))
	api.PATCH("/job/:job", handleJobPatch(svc))
	api.GET("/job/:job/log", handleJobLog(svc))
	api.GET("/job/:job/delta", handleJobDelta(svc))
	api.GET("/job/:job/output/:asset", handleJobOutput(svc))
	api.POST("/job/:job/rerun", handleJobRerun(svc))

	// Coverage and live results.
	api.GET("/map", handleMap(svc))
	api.GET("/map/:code", handleMapFeature(svc))
	api.GET("/data", handleData(svc))
	api.PATCH("/data/:id", handleDataPatch(svc))

	// Moderation ledger.
	api.GET("/error", handleErrorList(svc))
	api.GET("/error/count", handleErrorCount(svc))
	api.POST("/error/:job", handleErrorModerate(svc))

	// Exports.
	api.POST("/export", handleExportCreate(svc))
	api.GET("/export", handleExportList(svc))
	api.GET("/export/:export", handleExportGet(svc))
	api.PATCH("/export/:export", handleExportPatch(svc))
	api.GET("/export/:export/output", handleExportOutput(svc))

	api.POST("/scan", handleScan(svc))
	api.GET("/collection/:name", handleCollection(svc))
}
