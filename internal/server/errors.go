package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/batch"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidJobReference, apperr.KindInvalidModeration:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindNoLiveMatch:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindAlreadyClosed, apperr.KindNotReady:
		return http.StatusConflict
	case apperr.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abort renders err as {kind, message}. Internal errors are logged in full
// and never shown to the caller.
func abort(c *gin.Context, svc *batch.Service, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindUpstream {
		svc.Logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(statusFor(kind), apperr.Safe(err))
}
