package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meetsync/internal/availability"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/store"
)

func (h *Handler) fail(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()
	resp := ErrorResponse{CaseID: logging.CaseIDFromContext(ctx)}
	status := http.StatusInternalServerError

	var verr *availability.ValidationError
	switch {
	case errors.As(err, &verr):
		status, resp.Error, resp.Fields = http.StatusBadRequest, ErrValidationFailed, verr.FieldErrors
	case errors.Is(err, store.ErrNotFound):
		status, resp.Error = http.StatusNotFound, ErrNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		status, resp.Error = http.StatusConflict, ErrAlreadyExists
	case errors.Is(err, store.ErrStoreUnavailable):
		status, resp.Error = http.StatusServiceUnavailable, ErrStoreUnavailable
	case errors.Is(err, queue.ErrQueueUnavailable):
		status, resp.Error = http.StatusServiceUnavailable, ErrQueueUnavailable
	default:
		resp.Error = ErrInternal
	}

	log := logging.FromContext(ctx, h.logger).With(zap.String("op", op), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		log.Error(op+"_FAILED", zap.Error(err))
	} else {
		log.Info(op+"_REJECTED", zap.Error(err))
	}
	c.JSON(status, resp)
}
