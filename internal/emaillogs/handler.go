package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/response"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store is the read side of the email log repository.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.EmailLog, error)
	ListByRecipient(ctx context.Context, email string, limit int) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// ListByRecipient handles GET /email-logs?email=&limit=. Admin only.
func (h *Handler) ListByRecipient(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email query parameter required")
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	logs, err := h.store.ListByRecipient(c.Request.Context(), email, limit)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	if logs == nil {
		logs = []*models.EmailLog{}
	}
	response.OK(c, logs)
}

// Get handles GET /email-logs/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid email log id")
		return
	}
	el, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get email log failed", zap.Error(err), zap.Stringer("email_log_id", id))
		response.Internal(c, "failed to load email log")
		return
	}
	if el == nil {
		response.NotFound(c, "email log not found")
		return
	}
	response.OK(c, el)
}
