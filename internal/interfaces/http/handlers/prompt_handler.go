package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyvault/internal/application/dto"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/infrastructure/notify"
	"github.com/turtacn/keyvault/pkg/logger"
)

// PromptService exposes open password prompts to the client that answers them.
type PromptService interface {
	Pending() []models.PromptRequest
	Answer(id string, password []byte) error
	Cancel(id string) error
}

// EventSource hands out keys-changed subscriptions.
type EventSource interface {
	Subscribe(keyringID string, buffer int) *notify.Subscription
}

// PromptHandler serves the password dialog and the keys-changed stream.
type PromptHandler struct {
	prompts   PromptService
	events    EventSource
	keepAlive time.Duration
	logger    logger.Logger
}

// NewPromptHandler 创建提示处理器
func NewPromptHandler(prompts PromptService, events EventSource, log logger.Logger) *PromptHandler {
	return &PromptHandler{
		prompts:   prompts,
		events:    events,
		keepAlive: 30 * time.Second,
		logger:    log.WithComponent("PromptHandler"),
	}
}

// ListPrompts GET /api/v1/prompts
func (h *PromptHandler) ListPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, h.prompts.Pending())
}

// AnswerPrompt POST /api/v1/prompts/:prompt_id/answer
func (h *PromptHandler) AnswerPrompt(c *gin.Context) {
	var req dto.AnswerPromptRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, "answer_prompt")
		return
	}
	password := []byte(req.Password)
	defer wipe(password)

	if err := h.prompts.Answer(c.Param("prompt_id"), password); err != nil {
		handleError(c, h.logger, err, "answer_prompt")
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelPrompt POST /api/v1/prompts/:prompt_id/cancel
func (h *PromptHandler) CancelPrompt(c *gin.Context) {
	if err := h.prompts.Cancel(c.Param("prompt_id")); err != nil {
		handleError(c, h.logger, err, "cancel_prompt")
		return
	}
	c.Status(http.StatusNoContent)
}

// Events GET /api/v1/events?keyring_id= streams keys-changed events as SSE.
func (h *PromptHandler) Events(c *gin.Context) {
	sub := h.events.Subscribe(c.Query("keyring_id"), 0)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	h.logger.Debug(c.Request.Context(), "Event stream opened", logger.String("subscription_id", sub.ID))
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent("keys_changed", event)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
