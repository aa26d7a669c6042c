package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// AuditReader lists recorded lifecycle operations.
type AuditReader interface {
	List(ctx context.Context, keyringID string, before time.Time, limit int) ([]models.AuditEvent, error)
}

const maxAuditLimit = 500

// AuditHandler serves the audit trail of a keyring.
type AuditHandler struct {
	reader AuditReader
	logger logger.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(reader AuditReader, log logger.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: log.WithComponent("AuditHandler")}
}

// ListEvents GET /api/v1/keyrings/:keyring_id/audit?limit=50&before=RFC3339
func (h *AuditHandler) ListEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			sendError(c, errors.ErrInvalidRequest("limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	var before time.Time
	if t, err := utils.ParseOptionalTime(c.Query("before")); err != nil {
		sendError(c, errors.ErrInvalidRequest("before must be an RFC3339 timestamp").WithCause(err))
		return
	} else if t != nil {
		before = *t
	}

	events, err := h.reader.List(c.Request.Context(), c.Param("keyring_id"), before, limit)
	if err != nil {
		handleError(c, h.logger, err, "list_audit_events")
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	c.JSON(http.StatusOK, events)
}
