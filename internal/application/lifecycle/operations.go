package lifecycle

import (
	"context"
	"time"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// Operation names used in logs, spans, metrics and events.
const (
	OpRevokeKey     = "revoke_key"
	OpRevokeUser    = "revoke_user"
	OpAddUser       = "add_user"
	OpRemoveUser    = "remove_user"
	OpSetExpiry     = "set_expiry"
	OpSetPassword   = "set_password"
	OpRemoveKey     = "remove_key"
	OpDeleteKeyring = "delete_keyring"
	OpGenerateKey   = "generate_key"
	OpImportKeys    = "import_keys"
	OpSetSyncStatus = "set_keyserver_sync"
	OpSetDefaultKey = "set_default_key"
	OpCreateKeyring = "create_keyring"
)

// RevokeKey signs a key revocation after the user unlocks it and stores the
// revoked material.
// RevokeKey 在用户解锁后签署密钥吊销并保存吊销后的密钥材料。
func (c *Controller) RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (Outcome, error) {
	return c.withUnlockedKey(ctx, OpRevokeKey, keyringID, fpr, constants.ReasonRevoke,
		func(key *models.KeyRecord) error {
			if key.Revoked {
				return errors.ErrInvalidRequest("key is already revoked")
			}
			return nil
		},
		func(ctx context.Context, key *models.KeyRecord, unlocked models.UnlockedKey) error {
			material, err := c.crypto.RevokeKey(ctx, unlocked)
			if err != nil {
				return err
			}
			if material.RevokedAt == nil {
				now := c.now()
				material.RevokedAt = &now
			}
			return c.keys.RevokeKey(ctx, keyringID, fpr, material)
		})
}

// RevokeUser signs a certification revocation for one user id of the key
// after the user unlocks it.
// RevokeUser 在用户解锁后吊销密钥的某个用户 ID。
func (c *Controller) RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (Outcome, error) {
	return c.withUnlockedKey(ctx, OpRevokeUser, keyringID, fpr, constants.ReasonRevokeUser,
		func(key *models.KeyRecord) error {
			if err := requireUser(key, userID); err != nil {
				return err
			}
			if key.FindUser(userID).Revoked {
				return errors.ErrInvalidRequest("user id is already revoked")
			}
			return nil
		},
		func(ctx context.Context, key *models.KeyRecord, unlocked models.UnlockedKey) error {
			material, err := c.crypto.RevokeUser(ctx, unlocked, userID)
			if err != nil {
				return err
			}
			return c.keys.RevokeUser(ctx, keyringID, fpr, userID, material)
		})
}

// AddUser binds a new user id to the key.
// AddUser 为密钥绑定新的用户 ID。
func (c *Controller) AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user models.UserID) (Outcome, error) {
	if err := utils.ValidateStruct(user); err != nil {
		return Outcome{}, err
	}
	return c.withUnlockedKey(ctx, OpAddUser, keyringID, fpr, constants.ReasonAddUser,
		func(key *models.KeyRecord) error {
			if key.FindUser(user.String()) != nil {
				return errors.ErrInvalidRequest("user id already present on key")
			}
			return nil
		},
		func(ctx context.Context, key *models.KeyRecord, unlocked models.UnlockedKey) error {
			material, err := c.crypto.AddUser(ctx, unlocked, user)
			if err != nil {
				return err
			}
			return c.keys.AddUser(ctx, keyringID, fpr, &models.KeyUser{
				KeyringID:   keyringID,
				Fingerprint: fpr,
				UserID:      user.String(),
				Name:        user.Name,
				Email:       user.Email,
			}, material)
		})
}

// SetExpiry changes the key expiration. A nil expiry means the key never expires.
// SetExpiry 修改密钥过期时间，nil 表示永不过期。
func (c *Controller) SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, expiry *time.Time) (Outcome, error) {
	if expiry != nil && !expiry.After(c.now()) {
		return Outcome{}, errors.ErrInvalidRequest("expiry must be in the future")
	}
	return c.withUnlockedKey(ctx, OpSetExpiry, keyringID, fpr, constants.ReasonSetExpiry, nil,
		func(ctx context.Context, key *models.KeyRecord, unlocked models.UnlockedKey) error {
			material, err := c.crypto.SetExpiry(ctx, unlocked, expiry)
			if err != nil {
				return err
			}
			return c.keys.SetExpiry(ctx, keyringID, fpr, material)
		})
}

// SetPassword re-protects the key with next. The key is unlocked with current
// directly; no prompt is shown. The cached secret is dropped even when
// storing the new material fails, since the old password may no longer apply.
// SetPassword 使用当前密码直接解锁并设置新密码，不弹出提示。
func (c *Controller) SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, current, next []byte) (Outcome, error) {
	if len(next) == 0 {
		return Outcome{}, errors.ErrInvalidRequest("new password must not be empty")
	}
	ctx, r := c.begin(ctx, OpSetPassword, keyringID, fpr)

	r.enter(ctx, PhaseAcquiringKey)
	key, err := c.privateKey(ctx, keyringID, fpr)
	if err != nil {
		return r.fail(ctx, err)
	}

	r.enter(ctx, PhaseAwaitingUnlock)
	unlocked, err := c.crypto.AttemptUnlock(ctx, key, current)
	if err != nil {
		return r.fail(ctx, err)
	}
	defer unlocked.Wipe()

	r.enter(ctx, PhaseMutating)
	material, err := c.crypto.ChangePassword(ctx, unlocked, next)
	if err != nil {
		return r.fail(ctx, err)
	}
	err = c.keys.SetPassword(ctx, keyringID, fpr, material)
	c.cache.Invalidate(fpr)
	if err != nil {
		return r.fail(ctx, err)
	}

	c.broadcast(ctx, keyringID, fpr, OpSetPassword)
	return r.end(ctx, PhaseSucceeded, nil)
}

// RemoveUser removes a user id from the key. No password is needed.
// RemoveUser 从密钥中移除用户 ID，无需密码。
func (c *Controller) RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (Outcome, error) {
	return c.withoutUnlock(ctx, OpRemoveUser, keyringID, fpr,
		func(ctx context.Context) (*models.KeyRecord, error) {
			key, err := c.privateKey(ctx, keyringID, fpr)
			if err != nil {
				return nil, err
			}
			if err := requireUser(key, userID); err != nil {
				return nil, err
			}
			if len(key.Users) == 1 {
				return nil, errors.ErrInvariantViolation("cannot remove the only user id of a key")
			}
			return key, nil
		},
		func(ctx context.Context, key *models.KeyRecord) error {
			stripped, err := c.crypto.StripUser(key.ArmoredPublic, userID)
			if err != nil {
				return err
			}
			return c.keys.RemoveUser(ctx, keyringID, fpr, userID, stripped)
		})
}

// RemoveKey removes the public or private part of a key. keyType must match
// the stored key: a key pair is removed as private, a public key as public.
// RemoveKey 删除密钥，keyType 必须与存储的密钥类型一致。
func (c *Controller) RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) (Outcome, error) {
	if keyType != models.KeyTypePublic && keyType != models.KeyTypePrivate {
		return Outcome{}, errors.ErrInvalidRequest("type must be public or private")
	}
	return c.withoutUnlock(ctx, OpRemoveKey, keyringID, fpr,
		func(ctx context.Context) (*models.KeyRecord, error) {
			key, err := c.keys.GetKey(ctx, keyringID, fpr)
			if err != nil {
				return nil, err
			}
			if key.Type() != keyType {
				return nil, errors.ErrInvalidRequest("key " + string(fpr) + " is a " + string(key.Type()) + " key")
			}
			return key, nil
		},
		func(ctx context.Context, key *models.KeyRecord) error {
			return c.keys.RemoveKey(ctx, keyringID, fpr, keyType)
		})
}

// DeleteKeyring deletes a keyring and makes the main keyring active. The main
// keyring itself can never be deleted.
// DeleteKeyring 删除密钥环并将主密钥环设为活动密钥环；主密钥环不可删除。
func (c *Controller) DeleteKeyring(ctx context.Context, keyringID string) error {
	if keyringID == constants.MainKeyringID {
		return errors.ErrInvariantViolation("cannot delete main keyring")
	}
	ctx, r := c.begin(ctx, OpDeleteKeyring, keyringID, "")

	r.enter(ctx, PhaseMutating)
	keys, err := c.keys.ListKeys(ctx, keyringID)
	if err != nil {
		_, err = r.fail(ctx, err)
		return err
	}
	if err := c.keys.DeleteKeyring(ctx, keyringID); err != nil {
		_, err = r.fail(ctx, err)
		return err
	}
	for _, k := range keys {
		c.cache.Invalidate(k.Fingerprint)
	}
	if err := c.active.SetActive(ctx, constants.MainKeyringID); err != nil {
		_, err = r.fail(ctx, err)
		return err
	}

	c.broadcast(ctx, keyringID, "", OpDeleteKeyring)
	_, err = r.end(ctx, PhaseSucceeded, nil)
	return err
}

// ValidatePassword reports whether candidate unlocks the key. Nothing is cached.
// ValidatePassword 校验密码是否能解锁密钥，结果不会被缓存。
func (c *Controller) ValidatePassword(ctx context.Context, keyringID string, fpr models.Fingerprint, candidate []byte) (bool, error) {
	key, err := c.privateKey(ctx, keyringID, fpr)
	if err != nil {
		return false, err
	}
	ok, err := c.cache.ValidatePassword(ctx, key, candidate, c.crypto)
	if err != nil {
		c.logger.Error(ctx, "password validation failed", err, logger.String("fingerprint", utils.MaskFingerprint(string(fpr))))
		return false, err
	}
	return ok, nil
}

func requireUser(key *models.KeyRecord, userID string) error {
	if key.FindUser(userID) == nil {
		return errors.ErrUserNotFound(string(key.Fingerprint), userID)
	}
	return nil
}
