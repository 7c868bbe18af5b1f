package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/requestdata"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
)

type CountHandler struct {
	log      *logger.Logger
	countSvc services.CountService
}

func NewCountHandler(log *logger.Logger, countSvc services.CountService) *CountHandler {
	return &CountHandler{
		log:      log.With("handler", "CountHandler"),
		countSvc: countSvc,
	}
}

type recordCountRequest struct {
	Increment *int `json:"increment"`
	Decrement *int `json:"decrement"`
}

type recordCountResponse struct {
	Success      bool                `json:"success"`
	CurrentTotal int                 `json:"currentTotal"`
	UserStats    services.UserStats  `json:"userStats"`
	TodayStats   services.TodayStats `json:"todayStats"`
}

// POST /safety/count
// { increment?, decrement? } — cumulative totals reported by the device.
func (h *CountHandler) RecordCount(c *gin.Context) {
	principal := requestdata.GetPrincipal(c.Request.Context())
	if principal == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing principal"))
		return
	}

	var req recordCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.countSvc.RecordCount(c.Request.Context(), principal.UserID, req.Increment, req.Decrement)
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("RecordCount failed", "user_id", principal.UserID, "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to record count"))
		return
	}

	RespondOK(c, recordCountResponse{
		Success:      true,
		CurrentTotal: result.CurrentTotal,
		UserStats:    result.UserStats,
		TodayStats:   result.TodayStats,
	})
}
