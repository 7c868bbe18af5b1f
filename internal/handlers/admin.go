package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ovationlabs/venuepulse-backend/internal/jobs"
	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/requestdata"
	"github.com/ovationlabs/venuepulse-backend/internal/services"
	"github.com/ovationlabs/venuepulse-backend/internal/utils"
)

// RangeBackfiller is the operator-triggered recovery entry point.
type RangeBackfiller interface {
	BackfillDateRange(ctx context.Context, start, end time.Time) (*jobs.BackfillSummary, error)
}

type AdminHandler struct {
	log        *logger.Logger
	adminSvc   services.AdminService
	backfiller RangeBackfiller
}

func NewAdminHandler(log *logger.Logger, adminSvc services.AdminService, backfiller RangeBackfiller) *AdminHandler {
	return &AdminHandler{
		log:        log.With("handler", "AdminHandler"),
		adminSvc:   adminSvc,
		backfiller: backfiller,
	}
}

type resetUserRequest struct {
	UserID string `json:"userId"`
}

// POST /safety/admin/reset-user
func (h *AdminHandler) ResetUser(c *gin.Context) {
	principal := requestdata.GetPrincipal(c.Request.Context())
	if principal == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing principal"))
		return
	}

	var req resetUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("userId must be a uuid"))
		return
	}

	result, err := h.adminSvc.ResetUser(c.Request.Context(), principal.UserID, userID)
	if err != nil {
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("ResetUser failed", "user_id", userID, "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to reset user data"))
		return
	}
	RespondOK(c, gin.H{"success": true, "result": result})
}

type resetDateRequest struct {
	Date string `json:"date"`
}

// POST /safety/admin/reset-date
func (h *AdminHandler) ResetDate(c *gin.Context) {
	principal := requestdata.GetPrincipal(c.Request.Context())
	if principal == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing principal"))
		return
	}

	var req resetDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	day, err := utils.ParseDay(req.Date)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("date must be YYYY-MM-DD"))
		return
	}

	result, err := h.adminSvc.ResetDate(c.Request.Context(), principal.UserID, day)
	if err != nil {
		h.log.Error("ResetDate failed", "date", req.Date, "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to reset date data"))
		return
	}
	RespondOK(c, gin.H{"success": true, "result": result})
}

// GET /safety/admin/reset-logs?limit=
func (h *AdminHandler) ResetLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.adminSvc.RecentResets(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("ResetLogs failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to fetch reset logs"))
		return
	}
	RespondOK(c, gin.H{"success": true, "logs": entries})
}

type backfillRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// POST /safety/admin/backfill
func (h *AdminHandler) Backfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	start, err := utils.ParseDay(req.StartDate)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("startDate must be YYYY-MM-DD"))
		return
	}
	end, err := utils.ParseDay(req.EndDate)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("endDate must be YYYY-MM-DD"))
		return
	}

	summary, err := h.backfiller.BackfillDateRange(c.Request.Context(), start, end)
	if err != nil {
		if errors.Is(err, jobs.ErrBackfillRunning) {
			RespondError(c, http.StatusConflict, "backfill_running", err)
			return
		}
		if services.IsValidationError(err) {
			RespondError(c, http.StatusBadRequest, "validation_failed", err)
			return
		}
		h.log.Error("Backfill failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("failed to backfill range"))
		return
	}
	RespondOK(c, gin.H{"success": true, "summary": summary})
}
