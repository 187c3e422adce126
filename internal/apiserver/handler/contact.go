package handler

import (
	"fmt"
	"net/http"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateContact stores a public contact form submission
func (h *ResourceHandler) CreateContact(c *gin.Context) {
	var req dto.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact := &database.Contact{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}
	if err := h.db.CreateContact(c.Request.Context(), contact); err != nil {
		h.logger.Error("failed to create contact", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contact"})
		return
	}

	h.announce(c.Request.Context(), dto.EventKindContact,
		"New contact message",
		fmt.Sprintf("%s <%s>: %s", contact.Name, contact.Email, summary(contact.Subject, contact.Message)))
	c.JSON(http.StatusCreated, contact)
}

const summaryLen = 80

func summary(subject, body string) string {
	if subject != "" {
		return subject
	}
	r := []rune(body)
	if len(r) <= summaryLen {
		return body
	}
	return string(r[:summaryLen]) + "…"
}
