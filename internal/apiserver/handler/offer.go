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

// CreateOffer stores a new offer
func (h *ResourceHandler) CreateOffer(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req dto.OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer := &database.Offer{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		CreatedBy:   identity.UserID,
	}
	if err := h.db.CreateOffer(c.Request.Context(), offer); err != nil {
		h.logger.Error("failed to create offer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save offer"})
		return
	}

	h.announce(c.Request.Context(), dto.EventKindOffer,
		"New offer",
		fmt.Sprintf("%s created %q (%.2f)", identity.Username, offer.Title, offer.Price))
	c.JSON(http.StatusCreated, offer)
}
