package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyvault/internal/application/dto"
	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

// KeyService is the key lifecycle surface the HTTP layer drives.
// KeyService 是 HTTP 层调用的密钥生命周期接口。
type KeyService interface {
	ListKeys(ctx context.Context, keyringID string) ([]*models.KeyDetails, error)
	GetKeyDetails(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyDetails, error)
	GetArmoredKeys(ctx context.Context, keyringID string, fprs []models.Fingerprint, export models.ArmoredExport) ([]models.ArmoredKey, error)
	GenerateKey(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyDetails, error)
	ImportKeys(ctx context.Context, keyringID string, armored string) ([]*models.KeyDetails, error)

	RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (lifecycle.Outcome, error)
	RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (lifecycle.Outcome, error)
	AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user models.UserID) (lifecycle.Outcome, error)
	RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (lifecycle.Outcome, error)
	SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, expiry *time.Time) (lifecycle.Outcome, error)
	SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, current, next []byte) (lifecycle.Outcome, error)
	ValidatePassword(ctx context.Context, keyringID string, fpr models.Fingerprint, candidate []byte) (bool, error)
	RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) (lifecycle.Outcome, error)

	GetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error)
	SetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint, sync bool) (*models.KeyServerResult, error)
}

var _ KeyService = (*lifecycle.Controller)(nil)

// KeyHandler 密钥 HTTP 处理器
type KeyHandler struct {
	keys   KeyService
	logger logger.Logger
}

// NewKeyHandler 创建密钥处理器
func NewKeyHandler(keys KeyService, log logger.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, logger: log.WithComponent("KeyHandler")}
}

// ListKeys GET /api/v1/keyrings/:keyring_id/keys
func (h *KeyHandler) ListKeys(c *gin.Context) {
	keys, err := h.keys.ListKeys(c.Request.Context(), c.Param("keyring_id"))
	if err != nil {
		handleError(c, h.logger, err, "list_keys")
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GetKey GET /api/v1/keyrings/:keyring_id/keys/:fpr
func (h *KeyHandler) GetKey(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, "get_key")
		return
	}
	details, err := h.keys.GetKeyDetails(c.Request.Context(), c.Param("keyring_id"), fpr)
	if err != nil {
		handleError(c, h.logger, err, "get_key")
		return
	}
	c.JSON(http.StatusOK, details)
}

// ExportKey GET /api/v1/keyrings/:keyring_id/keys/:fpr/armored?type=pub|priv|all
func (h *KeyHandler) ExportKey(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, "export_key")
		return
	}
	export := models.ArmoredExport(c.DefaultQuery("type", string(models.ExportPublic)))
	switch export {
	case models.ExportPublic, models.ExportPrivate, models.ExportAll:
	default:
		handleError(c, h.logger, errors.ErrInvalidRequest("type must be pub, priv or all"), "export_key")
		return
	}
	armored, err := h.keys.GetArmoredKeys(c.Request.Context(), c.Param("keyring_id"), []models.Fingerprint{fpr}, export)
	if err != nil {
		handleError(c, h.logger, err, "export_key")
		return
	}
	if len(armored) == 0 {
		handleError(c, h.logger, errors.ErrKeyNotFound(string(fpr)), "export_key")
		return
	}
	c.JSON(http.StatusOK, armored[0])
}

// GenerateKey POST /api/v1/keyrings/:keyring_id/keys/generate
func (h *KeyHandler) GenerateKey(c *gin.Context) {
	var req dto.GenerateKeyRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpGenerateKey)
		return
	}
	params := req.Params()
	defer wipe(params.Password)

	details, err := h.keys.GenerateKey(c.Request.Context(), c.Param("keyring_id"), params)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpGenerateKey)
		return
	}
	c.JSON(http.StatusCreated, details)
}

// ImportKeys POST /api/v1/keyrings/:keyring_id/keys/import
func (h *KeyHandler) ImportKeys(c *gin.Context) {
	var req dto.ImportKeysRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpImportKeys)
		return
	}
	imported, err := h.keys.ImportKeys(c.Request.Context(), c.Param("keyring_id"), req.Armored)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpImportKeys)
		return
	}
	c.JSON(http.StatusCreated, imported)
}

// RemoveKey DELETE /api/v1/keyrings/:keyring_id/keys/:fpr?type=public|private
func (h *KeyHandler) RemoveKey(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpRemoveKey)
		return
	}
	keyType := models.KeyType(c.Query("type"))
	if keyType != models.KeyTypePublic && keyType != models.KeyTypePrivate {
		handleError(c, h.logger, errors.ErrInvalidRequest("type must be public or private"), lifecycle.OpRemoveKey)
		return
	}
	outcome, err := h.keys.RemoveKey(c.Request.Context(), c.Param("keyring_id"), fpr, keyType)
	sendOutcome(c, h.logger, lifecycle.OpRemoveKey, outcome, err)
}

// RevokeKey POST /api/v1/keyrings/:keyring_id/keys/:fpr/revoke
func (h *KeyHandler) RevokeKey(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpRevokeKey)
		return
	}
	outcome, err := h.keys.RevokeKey(c.Request.Context(), c.Param("keyring_id"), fpr)
	sendOutcome(c, h.logger, lifecycle.OpRevokeKey, outcome, err)
}

// AddUser POST /api/v1/keyrings/:keyring_id/keys/:fpr/users
func (h *KeyHandler) AddUser(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpAddUser)
		return
	}
	var req dto.AddUserRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpAddUser)
		return
	}
	outcome, err := h.keys.AddUser(c.Request.Context(), c.Param("keyring_id"), fpr, req.User)
	sendOutcome(c, h.logger, lifecycle.OpAddUser, outcome, err)
}

// RemoveUser DELETE /api/v1/keyrings/:keyring_id/keys/:fpr/users/:user_id
func (h *KeyHandler) RemoveUser(c *gin.Context) {
	fpr, userID, err := h.userParams(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpRemoveUser)
		return
	}
	outcome, err := h.keys.RemoveUser(c.Request.Context(), c.Param("keyring_id"), fpr, userID)
	sendOutcome(c, h.logger, lifecycle.OpRemoveUser, outcome, err)
}

// RevokeUser POST /api/v1/keyrings/:keyring_id/keys/:fpr/users/:user_id/revoke
func (h *KeyHandler) RevokeUser(c *gin.Context) {
	fpr, userID, err := h.userParams(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpRevokeUser)
		return
	}
	outcome, err := h.keys.RevokeUser(c.Request.Context(), c.Param("keyring_id"), fpr, userID)
	sendOutcome(c, h.logger, lifecycle.OpRevokeUser, outcome, err)
}

// SetExpiry PUT /api/v1/keyrings/:keyring_id/keys/:fpr/expiry
func (h *KeyHandler) SetExpiry(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetExpiry)
		return
	}
	var req dto.SetExpiryRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetExpiry)
		return
	}
	outcome, err := h.keys.SetExpiry(c.Request.Context(), c.Param("keyring_id"), fpr, req.ExpiresAt)
	sendOutcome(c, h.logger, lifecycle.OpSetExpiry, outcome, err)
}

// SetPassword PUT /api/v1/keyrings/:keyring_id/keys/:fpr/password
func (h *KeyHandler) SetPassword(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetPassword)
		return
	}
	var req dto.SetPasswordRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetPassword)
		return
	}
	current, next := []byte(req.CurrentPassword), []byte(req.NewPassword)
	defer wipe(current)
	defer wipe(next)

	outcome, err := h.keys.SetPassword(c.Request.Context(), c.Param("keyring_id"), fpr, current, next)
	sendOutcome(c, h.logger, lifecycle.OpSetPassword, outcome, err)
}

// ValidatePassword POST /api/v1/keyrings/:keyring_id/keys/:fpr/password/validate
func (h *KeyHandler) ValidatePassword(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, "validate_password")
		return
	}
	var req dto.ValidatePasswordRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, "validate_password")
		return
	}
	candidate := []byte(req.Password)
	defer wipe(candidate)

	ok, err := h.keys.ValidatePassword(c.Request.Context(), c.Param("keyring_id"), fpr, candidate)
	if err != nil {
		handleError(c, h.logger, err, "validate_password")
		return
	}
	c.JSON(http.StatusOK, dto.ValidatePasswordResponse{Valid: ok})
}

// GetSyncStatus GET /api/v1/keyrings/:keyring_id/keys/:fpr/keyserver
func (h *KeyHandler) GetSyncStatus(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, "get_keyserver_sync")
		return
	}
	status, err := h.keys.GetSyncStatus(c.Request.Context(), c.Param("keyring_id"), fpr)
	if err != nil {
		handleError(c, h.logger, err, "get_keyserver_sync")
		return
	}
	c.JSON(http.StatusOK, status)
}

// SetSyncStatus PUT /api/v1/keyrings/:keyring_id/keys/:fpr/keyserver
func (h *KeyHandler) SetSyncStatus(c *gin.Context) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetSyncStatus)
		return
	}
	var req dto.SetSyncStatusRequest
	if err := bind(c, &req); err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetSyncStatus)
		return
	}
	result, err := h.keys.SetSyncStatus(c.Request.Context(), c.Param("keyring_id"), fpr, *req.Sync)
	if err != nil {
		handleError(c, h.logger, err, lifecycle.OpSetSyncStatus)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *KeyHandler) userParams(c *gin.Context) (models.Fingerprint, string, error) {
	fpr, err := fingerprintParam(c)
	if err != nil {
		return "", "", err
	}
	// User ids contain spaces and angle brackets; gin hands them over unescaped.
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		return "", "", errors.ErrInvalidRequest("user_id is required")
	}
	return fpr, userID, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
