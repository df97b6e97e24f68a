package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/http/response"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/services"
)

type BatchHandler struct {
	log     *logger.Logger
	batches services.BatchService
}

func NewBatchHandler(log *logger.Logger, batches services.BatchService) *BatchHandler {
	registerValidators()
	return &BatchHandler{
		log:     log.With("handler", "BatchHandler"),
		batches: batches,
	}
}

type newBatchQuery struct {
	BatchSize   int    `form:"batchSize" binding:"required,min=1"`
	Email       string `form:"email" binding:"required,max=100"`
	FullName    string `form:"fullName" binding:"required,max=50"`
	TeamName    string `form:"teamName" binding:"required,max=50"`
	CompanyName string `form:"companyName" binding:"required,max=50"`
	Location    string `form:"location" binding:"required,max=50"`
	CountryCode string `form:"countryCode" binding:"required,len=2,iso3166"`
}

// GET /batch/new
func (h *BatchHandler) NewBatch(c *gin.Context) {
	var q newBatchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
		return
	}
	h.log.Info("Getting new batch", "batch_size", q.BatchSize, "email", q.Email)

	out, err := h.batches.NewBatch(c.Request.Context(), services.NewBatchRequest{
		BatchSize: q.BatchSize,
		Email:     q.Email,
		Profile: types.Profile{
			FullName:    q.FullName,
			TeamName:    q.TeamName,
			CompanyName: q.CompanyName,
			Location:    q.Location,
			CountryCode: q.CountryCode,
		},
	})
	if err != nil {
		respondServiceError(c, h.log, "NewBatch", err)
		return
	}
	response.RespondOK(c, out)
}

type uploadOutputQuery struct {
	InputID int64  `form:"inputId" binding:"required"`
	Email   string `form:"email" binding:"required"`
}

// POST /batch/output
func (h *BatchHandler) UploadOutput(c *gin.Context) {
	var q uploadOutputQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
		return
	}
	h.log.Info("Uploading result", "input_id", q.InputID, "email", q.Email)

	out, err := h.batches.UploadOutput(c.Request.Context(), q.InputID, q.Email, c.Request.Body)
	if err != nil {
		respondServiceError(c, h.log, "UploadOutput", err)
		return
	}
	response.RespondOK(c, out)
}

type cancelQuery struct {
	Email string `form:"email" binding:"required"`
}

// POST /batch/cancel
func (h *BatchHandler) Cancel(c *gin.Context) {
	var q cancelQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
		return
	}
	var ids []int64
	if err := c.ShouldBindJSON(&ids); err != nil || len(ids) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errInputIDsRequired)
		return
	}
	h.log.Info("Cancelling inputs", "email", q.Email, "count", len(ids))

	if _, err := h.batches.Cancel(c.Request.Context(), q.Email, ids); err != nil {
		respondServiceError(c, h.log, "Cancel", err)
		return
	}
	c.Status(http.StatusOK)
}
