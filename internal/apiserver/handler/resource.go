package handler

import (
	"context"

	"github.com/amoylab/liveadmin/internal/apiserver/database"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/amoylab/liveadmin/internal/realtime"
	"go.uber.org/zap"
)

// Publisher announces business events to connected admins
type Publisher interface {
	Publish(ctx context.Context, kind dto.EventKind, title, message string) (realtime.DomainEvent, error)
}

// ResourceHandler serves the back-office resources that produce events.
// A resource change is stored first and announced after.
type ResourceHandler struct {
	db        database.Database
	publisher Publisher
	logger    *zap.Logger
}

func NewResourceHandler(db database.Database, publisher Publisher, logger *zap.Logger) *ResourceHandler {
	return &ResourceHandler{
		db:        db,
		publisher: publisher,
		logger:    logger.Named("handler.resource"),
	}
}

// announce publishes an event; producers never fail because of delivery
func (h *ResourceHandler) announce(ctx context.Context, kind dto.EventKind, title, message string) {
	if _, err := h.publisher.Publish(ctx, kind, title, message); err != nil {
		h.logger.Error("failed to publish event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
