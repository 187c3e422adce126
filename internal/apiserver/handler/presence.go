package handler

import (
	"net/http"
	"time"

	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/amoylab/liveadmin/internal/realtime"
	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	registry *realtime.Registry
}

func NewPresenceHandler(registry *realtime.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

// Get reports the admins joined on this instance
func (h *PresenceHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PresenceResponse{
		OnlineCount: h.registry.Len(),
		Timestamp:   time.Now().UTC(),
	})
}
