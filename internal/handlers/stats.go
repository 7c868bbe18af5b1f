package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/requestdata"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

type StatsHandler struct {
	log      *logger.Logger
	statsSvc services.StatsService
}

func NewStatsHandler(log *logger.Logger, statsSvc services.StatsService) *StatsHandler {
	return &StatsHandler{
		log:      log.With("handler", "StatsHandler"),
		statsSvc: statsSvc,
	}
}

// GET /safety/stats?date=YYYY-MM-DD&userId=
func (h *StatsHandler) GetStats(c *gin.Context) {
	principal := requestdata.GetPrincipal(c.Request.Context())
	if principal == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing principal"))
		return
	}

	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := utils.ParseDay(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	userID := principal.UserID
	if raw := c.Query("userId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("userId must be a uuid"))
			return
		}
		userID = parsed
	}

	result, err := h.statsSvc.GetStats(c.Request.Context(), day, userID)
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("GetStats failed", "date", day, "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to fetch stats"))
		return
	}
	RespondOK(c, result)
}

// GET /safety/history?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD&userId=
func (h *StatsHandler) GetHistory(c *gin.Context) {
	start, err := utils.ParseDay(c.Query("startDate"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("startDate must be YYYY-MM-DD"))
		return
	}
	end, err := utils.ParseDay(c.Query("endDate"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("endDate must be YYYY-MM-DD"))
		return
	}

	var userID *uuid.UUID
	if raw := c.Query("userId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("userId must be a uuid"))
			return
		}
		userID = &parsed
	}

	result, err := h.statsSvc.GetHistory(c.Request.Context(), start, end, userID)
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("GetHistory failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to fetch history"))
		return
	}
	RespondOK(c, result)
}

// GET /safety/health
func (h *StatsHandler) Health(c *gin.Context) {
	result, err := h.statsSvc.Health(c.Request.Context())
	if err != nil {
		h.log.Error("Health failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to fetch health"))
		return
	}
	RespondOK(c, result)
}
