package sqlstore

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/repository"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

var _ repository.KeyringStore = (*KeyringStore)(nil)

// keyColumns are rewritten when a key is saved over an existing record.
var keyColumns = []string{
	"key_id", "algorithm", "bit_length", "armored_public", "armored_private",
	"revoked", "revoked_at", "expires_at", "key_created_at", "updated_at",
}

// KeyringStore is the gorm implementation of repository.KeyringStore.
type KeyringStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewKeyringStore creates a KeyringStore.
func NewKeyringStore(db *gorm.DB, log logger.Logger) *KeyringStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &KeyringStore{db: db, logger: log.WithComponent("KeyringStore")}
}

func (s *KeyringStore) keyScope(tx *gorm.DB, keyringID string, fpr models.Fingerprint) *gorm.DB {
	return tx.Where("keyring_id = ? AND fingerprint = ?", keyringID, fpr)
}

// GetKey loads a key with its users ordered by insertion.
func (s *KeyringStore) GetKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyRecord, error) {
	var key models.KeyRecord
	err := s.keyScope(s.db.WithContext(ctx), keyringID, fpr).
		Preload("Users", orderUsers).
		First(&key).Error
	if err != nil {
		return nil, s.mapError(ctx, "get key", err, errors.ErrKeyNotFound(string(fpr)))
	}
	return &key, nil
}

// ListKeys returns the keys of keyringID ordered by fingerprint.
func (s *KeyringStore) ListKeys(ctx context.Context, keyringID string) ([]*models.KeyRecord, error) {
	var keys []*models.KeyRecord
	err := s.db.WithContext(ctx).
		Where("keyring_id = ?", keyringID).
		Preload("Users", orderUsers).
		Order("fingerprint").
		Find(&keys).Error
	if err != nil {
		return nil, s.mapError(ctx, "list keys", err, nil)
	}
	return keys, nil
}

// SaveKey inserts the key or merges it into the stored record. A save without
// private material keeps the stored private material, a stored revocation
// survives, and stored users the incoming key does not list are kept. On
// success key reflects the stored state.
func (s *KeyringStore) SaveKey(ctx context.Context, key *models.KeyRecord) error {
	var saved models.KeyRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireKeyring(tx, key.KeyringID); err != nil {
			return err
		}
		var existing models.KeyRecord
		err := s.keyScope(tx, key.KeyringID, key.Fingerprint).Preload("Users", orderUsers).First(&existing).Error
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row := *key
		row.Users = nil
		if row.ArmoredPrivate == "" {
			row.ArmoredPrivate = existing.ArmoredPrivate
		}
		if existing.Revoked && !row.Revoked {
			row.Revoked = true
			row.RevokedAt = existing.RevokedAt
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "keyring_id"}, {Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns(keyColumns),
		}).Omit(clause.Associations).Create(&row).Error
		if err != nil {
			return err
		}
		if err := mergeUsers(tx, key, existing.Users); err != nil {
			return err
		}
		return s.keyScope(tx, key.KeyringID, key.Fingerprint).Preload("Users", orderUsers).First(&saved).Error
	})
	if err != nil {
		return s.mapError(ctx, "save key", err, nil)
	}
	*key = saved
	s.logger.Debug(ctx, "key saved",
		logger.String("keyring_id", key.KeyringID),
		logger.String("fingerprint", utils.MaskFingerprint(string(key.Fingerprint))),
		logger.Int("users", len(key.Users)))
	return nil
}

// mergeUsers writes the users of key over stored. A stored user listed again
// is replaced but stays revoked; the others are kept and lose the primary flag
// when key names a primary user.
func mergeUsers(tx *gorm.DB, key *models.KeyRecord, stored []models.KeyUser) error {
	previous := make(map[string]models.KeyUser, len(stored))
	for _, u := range stored {
		previous[u.UserID] = u
	}
	incoming := make(map[string]bool, len(key.Users))
	primary := false
	for _, u := range key.Users {
		incoming[u.UserID] = true
		primary = primary || u.Primary
	}
	for _, u := range stored {
		switch {
		case incoming[u.UserID]:
			if err := tx.Delete(&models.KeyUser{}, u.ID).Error; err != nil {
				return err
			}
		case primary && u.Primary:
			if err := tx.Model(&models.KeyUser{}).Where("id = ?", u.ID).Update("primary", false).Error; err != nil {
				return err
			}
		}
	}
	users := make([]models.KeyUser, 0, len(key.Users))
	for _, u := range key.Users {
		u.ID = 0
		u.KeyringID = key.KeyringID
		u.Fingerprint = key.Fingerprint
		u.Revoked = u.Revoked || previous[u.UserID].Revoked
		users = append(users, u)
	}
	if len(users) == 0 {
		return nil
	}
	return tx.Create(&users).Error
}

// RemoveKey deletes the key and its users. The keyring's default key is
// cleared when it pointed at the removed key.
func (s *KeyringStore) RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var key models.KeyRecord
		if err := s.keyScope(tx, keyringID, fpr).First(&key).Error; err != nil {
			return notFound(err, errors.ErrKeyNotFound(string(fpr)))
		}
		if key.Type() != keyType {
			return errors.ErrInvalidRequest("key " + string(fpr) + " is a " + string(key.Type()) + " key")
		}
		if err := s.keyScope(tx, keyringID, fpr).Delete(&models.KeyUser{}).Error; err != nil {
			return err
		}
		if err := s.keyScope(tx, keyringID, fpr).Delete(&models.KeyRecord{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Keyring{}).
			Where("id = ? AND default_key = ?", keyringID, string(fpr)).
			Update("default_key", "").Error
	})
	if err != nil {
		return s.mapError(ctx, "remove key", err, nil)
	}
	return nil
}

// AddUser stores the user id and the material re-signed for it.
func (s *KeyringStore) AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user *models.KeyUser, material *models.KeyMaterial) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.updateKey(tx, keyringID, fpr, map[string]interface{}{
			"armored_public":  material.ArmoredPublic,
			"armored_private": material.ArmoredPrivate,
		}); err != nil {
			return err
		}
		row := *user
		row.ID = 0
		row.KeyringID = keyringID
		row.Fingerprint = fpr
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		*user = row
		return nil
	})
	if err != nil {
		return s.mapError(ctx, "add user", err, nil)
	}
	return nil
}

// RemoveUser deletes the user id and stores the stripped public material.
func (s *KeyringStore) RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string, armoredPublic string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := s.keyScope(tx, keyringID, fpr).Where("user_id = ?", userID).Delete(&models.KeyUser{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrUserNotFound(string(fpr), userID)
		}
		return s.updateKey(tx, keyringID, fpr, map[string]interface{}{"armored_public": armoredPublic})
	})
	if err != nil {
		return s.mapError(ctx, "remove user", err, nil)
	}
	return nil
}

// RevokeUser flags the user id as revoked and stores the re-signed material.
func (s *KeyringStore) RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string, material *models.KeyMaterial) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := s.keyScope(tx.Model(&models.KeyUser{}), keyringID, fpr).
			Where("user_id = ?", userID).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrUserNotFound(string(fpr), userID)
		}
		return s.updateKey(tx, keyringID, fpr, map[string]interface{}{
			"armored_public":  material.ArmoredPublic,
			"armored_private": material.ArmoredPrivate,
		})
	})
	if err != nil {
		return s.mapError(ctx, "revoke user", err, nil)
	}
	return nil
}

// RevokeKey flags the key as revoked at material.RevokedAt and stores the
// re-signed material.
func (s *KeyringStore) RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error {
	revokedAt := material.RevokedAt
	if revokedAt == nil {
		now := time.Now().UTC()
		revokedAt = &now
	}
	err := s.updateKey(s.db.WithContext(ctx), keyringID, fpr, map[string]interface{}{
		"armored_public":  material.ArmoredPublic,
		"armored_private": material.ArmoredPrivate,
		"revoked":         true,
		"revoked_at":      revokedAt,
	})
	if err != nil {
		return s.mapError(ctx, "revoke key", err, nil)
	}
	return nil
}

// SetExpiry stores the re-signed material and the new expiry.
func (s *KeyringStore) SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error {
	err := s.updateKey(s.db.WithContext(ctx), keyringID, fpr, map[string]interface{}{
		"armored_public":  material.ArmoredPublic,
		"armored_private": material.ArmoredPrivate,
		"expires_at":      material.ExpiresAt,
	})
	if err != nil {
		return s.mapError(ctx, "set expiry", err, nil)
	}
	return nil
}

// SetPassword stores material protected by the new password.
func (s *KeyringStore) SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error {
	err := s.updateKey(s.db.WithContext(ctx), keyringID, fpr, map[string]interface{}{
		"armored_public":  material.ArmoredPublic,
		"armored_private": material.ArmoredPrivate,
	})
	if err != nil {
		return s.mapError(ctx, "set password", err, nil)
	}
	return nil
}

func (s *KeyringStore) updateKey(tx *gorm.DB, keyringID string, fpr models.Fingerprint, values map[string]interface{}) error {
	res := s.keyScope(tx.Model(&models.KeyRecord{}), keyringID, fpr).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrKeyNotFound(string(fpr))
	}
	return nil
}

// CreateKeyring creates an empty keyring.
func (s *KeyringStore) CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error) {
	keyring := &models.Keyring{ID: keyringID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Keyring{}).Where("id = ?", keyringID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.ErrInvalidRequest("keyring " + keyringID + " already exists")
		}
		return tx.Create(keyring).Error
	})
	if err != nil {
		return nil, s.mapError(ctx, "create keyring", err, nil)
	}
	return keyring, nil
}

// EnsureKeyring creates keyringID when it does not exist yet.
func (s *KeyringStore) EnsureKeyring(ctx context.Context, keyringID string) error {
	var keyring models.Keyring
	if err := s.db.WithContext(ctx).FirstOrCreate(&keyring, models.Keyring{ID: keyringID}).Error; err != nil {
		return s.mapError(ctx, "ensure keyring", err, nil)
	}
	return nil
}

// GetKeyring loads one keyring.
func (s *KeyringStore) GetKeyring(ctx context.Context, keyringID string) (*models.Keyring, error) {
	var keyring models.Keyring
	if err := s.db.WithContext(ctx).Where("id = ?", keyringID).First(&keyring).Error; err != nil {
		return nil, s.mapError(ctx, "get keyring", err, errors.ErrKeyringNotFound(keyringID))
	}
	return &keyring, nil
}

// ListKeyrings returns every keyring ordered by id.
func (s *KeyringStore) ListKeyrings(ctx context.Context) ([]*models.Keyring, error) {
	var keyrings []*models.Keyring
	if err := s.db.WithContext(ctx).Order("id").Find(&keyrings).Error; err != nil {
		return nil, s.mapError(ctx, "list keyrings", err, nil)
	}
	return keyrings, nil
}

// SetDefaultKey stores fpr as the keyring's default key.
func (s *KeyringStore) SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error {
	res := s.db.WithContext(ctx).Model(&models.Keyring{}).
		Where("id = ?", keyringID).
		Update("default_key", string(fpr))
	if res.Error != nil {
		return s.mapError(ctx, "set default key", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return errors.ErrKeyringNotFound(keyringID)
	}
	return nil
}

// DeleteKeyring removes the keyring with all of its keys and users.
func (s *KeyringStore) DeleteKeyring(ctx context.Context, keyringID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("keyring_id = ?", keyringID).Delete(&models.KeyUser{}).Error; err != nil {
			return err
		}
		if err := tx.Where("keyring_id = ?", keyringID).Delete(&models.KeyRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", keyringID).Delete(&models.Keyring{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrKeyringNotFound(keyringID)
		}
		return nil
	})
	if err != nil {
		return s.mapError(ctx, "delete keyring", err, nil)
	}
	s.logger.Info(ctx, "keyring deleted", logger.String("keyring_id", keyringID))
	return nil
}

func requireKeyring(tx *gorm.DB, keyringID string) error {
	var keyring models.Keyring
	if err := tx.Where("id = ?", keyringID).First(&keyring).Error; err != nil {
		return notFound(err, errors.ErrKeyringNotFound(keyringID))
	}
	return nil
}

func orderUsers(tx *gorm.DB) *gorm.DB {
	return tx.Order("id")
}

// notFound swaps gorm.ErrRecordNotFound for missing.
func notFound(err error, missing error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return missing
	}
	return err
}

// mapError passes structured errors through and turns driver errors into storage failures.
func (s *KeyringStore) mapError(ctx context.Context, op string, err error, missing error) error {
	if missing != nil {
		err = notFound(err, missing)
	}
	if errors.IsKVError(err) {
		return err
	}
	s.logger.Error(ctx, "keyring store operation failed", err, logger.String("operation", op))
	return errors.ErrStorageFailure(op, err)
}
