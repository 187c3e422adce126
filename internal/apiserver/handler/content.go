package handler

import (
	"fmt"
	"net/http"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/apiserver/middleware"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UpsertContent creates or replaces the content block named by :key
func (h *ResourceHandler) UpsertContent(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content key required"})
		return
	}

	var req dto.ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content := &database.Content{
		Key:       key,
		Title:     req.Title,
		Body:      req.Body,
		UpdatedBy: identity.UserID,
	}
	existed, err := h.db.UpsertContent(c.Request.Context(), content)
	if err != nil {
		h.logger.Error("failed to save content", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save content"})
		return
	}

	verb, status := "created", http.StatusCreated
	if existed {
		verb, status = "updated", http.StatusOK
	}
	h.announce(c.Request.Context(), dto.EventKindContent,
		"Content "+verb,
		fmt.Sprintf("%s %s %q", identity.Username, verb, key))
	c.JSON(status, content)
}
