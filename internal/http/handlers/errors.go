package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/sciencelab-batchserver/internal/http/response"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/apierr"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/services"
)

var (
	errInternal         = errors.New("internal error")
	errInputIDsRequired = errors.New("Parameter inputIds is required")
)

// toAPIError maps a service failure onto its HTTP status. Ownership failures
// are 400 rather than 403 so callers cannot probe which inputs exist.
func toAPIError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, services.ErrValidation):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, services.ErrQuotaExceeded):
		return apierr.New(http.StatusBadRequest, "quota_exceeded", errors.New("Maximum inputs per user exceeded"))
	case errors.Is(err, services.ErrNoInputsAvailable):
		return apierr.New(http.StatusBadRequest, "no_inputs_available", errors.New("There are no more available inputs to process on this location"))
	case errors.Is(err, services.ErrOwnershipMismatch):
		return apierr.New(http.StatusBadRequest, "ownership_mismatch", err)
	case errors.Is(err, services.ErrInputNotLeased):
		return apierr.New(http.StatusBadRequest, "input_not_leased", err)
	case errors.Is(err, services.ErrMalformedOutput):
		return apierr.New(http.StatusBadRequest, "malformed_output", err)
	case errors.Is(err, services.ErrInputNotFound):
		return apierr.New(http.StatusNotFound, "input_not_found", err)
	case errors.Is(err, services.ErrClientNotFound):
		return apierr.New(http.StatusNotFound, "client_not_found", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", errInternal)
	}
}

func respondServiceError(c *gin.Context, log *logger.Logger, op string, err error) {
	ae := toAPIError(err)
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
		log.Error(op+" failed", "error", err)
	}
	response.RespondError(c, ae.Status, ae.Code, ae.Err)
}
