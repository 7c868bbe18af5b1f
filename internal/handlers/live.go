package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/requestdata"
	"github.com/ovationlabs/venuepulse-backend/internal/sse"
)

type LiveHandler struct {
	log *logger.Logger
	hub *sse.OccupancyHub
}

func NewLiveHandler(log *logger.Logger, hub *sse.OccupancyHub) *LiveHandler {
	return &LiveHandler{
		log: log.With("handler", "LiveHandler"),
		hub: hub,
	}
}

// GET /safety/live
//
// Holds the connection open and streams occupancy updates as SSE frames
// until the client disconnects.
func (h *LiveHandler) Stream(c *gin.Context) {
	principal := requestdata.GetPrincipal(c.Request.Context())
	if principal == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing principal"))
		return
	}

	client := h.hub.NewClient(principal.UserID)
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
