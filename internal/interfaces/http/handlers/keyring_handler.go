package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyvault/internal/application/dto"
	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// KeyringService manages keyrings and the active keyring pointer.
type KeyringService interface {
	ListKeyrings(ctx context.Context) ([]*models.Keyring, error)
	CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error)
	DeleteKeyring(ctx context.Context, keyringID string) error
	SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error
	GetActiveKeyring(ctx context.Context) (string, error)
	SetActiveKeyring(ctx context.Context, keyringID string) error
}

var _ KeyringService = (*lifecycle.Controller)(nil)

// KeyringHandler 密钥环 HTTP 处理器
type KeyringHandler struct {
	keyrings KeyringService
	logger   logger.Logger
}

// NewKeyringHandler 创建密钥环处理器
func NewKeyringHandler(keyrings KeyringService, log logger.Logger) *KeyringHandler {
	return &KeyringHandler{keyrings: keyrings, logger: log.WithComponent("KeyringHandler")}
}

// ListKeyrings GET /api/v1/keyrings
func (h *KeyringHandler) ListKeyrings(c *gin.Context) {
	keyrings, err := h.keyrings.ListKeyrings(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, err, "list_keyrings")
		return
	}
	c.JSON(http.StatusOK, keyrings)
}

// CreateKeyring POST /api/v1/keyrings
func (h *KeyringHandler) CreateKeyring(c *gin.Context) {
	var req dto.CreateKeyringRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpCreateKeyring)
		return
	}
	keyring, err := h.keyrings.CreateKeyring(c.Request.Context(), req.ID)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpCreateKeyring)
		return
	}
	c.JSON(http.StatusCreated, keyring)
}

// DeleteKeyring DELETE /api/v1/keyrings/:keyring_id
func (h *KeyringHandler) DeleteKeyring(c *gin.Context) {
	if err := h.keyrings.DeleteKeyring(c.Request.Context(), c.Param("keyring_id")); err != nil {
		handleError(c, h.logger, err, lifecycle.OpDeleteKeyring)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetDefaultKey PUT /api/v1/keyrings/:keyring_id/default-key
func (h *KeyringHandler) SetDefaultKey(c *gin.Context) {
	var req dto.SetDefaultKeyRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetDefaultKey)
		return
	}
	fpr := models.NormalizeFingerprint(req.Fingerprint)
	if !utils.ValidateFingerprint(string(fpr)) {
		handleError(c, h.logger, errors.ErrInvalidRequest("invalid fingerprint"), lifecycle.OpSetDefaultKey)
		return
	}
	if err := h.keyrings.SetDefaultKey(c.Request.Context(), c.Param("keyring_id"), fpr); err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetDefaultKey)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetActiveKeyring GET /api/v1/active-keyring
func (h *KeyringHandler) GetActiveKeyring(c *gin.Context) {
	id, err := h.keyrings.GetActiveKeyring(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, err, "get_active_keyring")
		return
	}
	c.JSON(http.StatusOK, dto.ActiveKeyringResponse{KeyringID: id})
}

// SetActiveKeyring PUT /api/v1/active-keyring
func (h *KeyringHandler) SetActiveKeyring(c *gin.Context) {
	var req dto.SetActiveKeyringRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, "set_active_keyring")
		return
	}
	if err := h.keyrings.SetActiveKeyring(c.Request.Context(), req.KeyringID); err != nil {
		handleError(c, h.logger, err, "set_active_keyring")
		return
	}
	c.JSON(http.StatusOK, dto.ActiveKeyringResponse{KeyringID: req.KeyringID})
}
