package lifecycle

import (
	"context"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// GenerateKey creates a key pair in the keyring. The first private key of a
// keyring becomes its default key.
// GenerateKey 在密钥环中生成新的密钥对。
func (c *Controller) GenerateKey(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyDetails, error) {
	if err := utils.ValidateStruct(params); err != nil {
		return nil, err
	}
	if len(params.Password) == 0 {
		return nil, errors.ErrInvalidRequest("password is required")
	}
	ctx, r := c.begin(ctx, OpGenerateKey, keyringID, "")

	r.enter(ctx, PhaseMutating)
	keyring, err := c.keys.GetKeyring(ctx, keyringID)
	if err != nil {
		_, err = r.fail(ctx, err)
		return nil, err
	}
	key, err := c.crypto.Generate(ctx, keyringID, params)
	if err != nil {
		_, err = r.fail(ctx, err)
		return nil, err
	}
	r.fpr = key.Fingerprint
	if err := c.keys.SaveKey(ctx, key); err != nil {
		_, err = r.fail(ctx, err)
		return nil, err
	}
	if keyring.DefaultKey == "" {
		if err := c.keys.SetDefaultKey(ctx, keyringID, key.Fingerprint); err != nil {
			_, err = r.fail(ctx, err)
			return nil, err
		}
		keyring.DefaultKey = string(key.Fingerprint)
	}

	c.broadcast(ctx, keyringID, key.Fingerprint, OpGenerateKey)
	if _, err := r.end(ctx, PhaseSucceeded, nil); err != nil {
		return nil, err
	}
	return models.NewKeyDetails(key, models.Fingerprint(keyring.DefaultKey), c.now()), nil
}

// ImportKeys adds every key found in armored to the keyring. A key already in
// the keyring is merged with the stored record, whose private material wins.
// ImportKeys 将 ASCII 封装文本中的所有密钥导入密钥环。
func (c *Controller) ImportKeys(ctx context.Context, keyringID string, armored string) ([]*models.KeyDetails, error) {
	if !utils.ValidateNotEmpty(armored) {
		return nil, errors.ErrInvalidRequest("no key data")
	}
	ctx, r := c.begin(ctx, OpImportKeys, keyringID, "")

	r.enter(ctx, PhaseMutating)
	keyring, err := c.keys.GetKeyring(ctx, keyringID)
	if err != nil {
		_, err = r.fail(ctx, err)
		return nil, err
	}
	records, err := c.crypto.Import(ctx, keyringID, armored)
	if err != nil {
		_, err = r.fail(ctx, err)
		return nil, err
	}

	imported := make([]*models.KeyDetails, 0, len(records))
	for _, incoming := range records {
		key, newPrivate, err := c.mergeImported(ctx, incoming)
		if err != nil {
			_, err = r.fail(ctx, err)
			return nil, err
		}
		if err := c.keys.SaveKey(ctx, key); err != nil {
			_, err = r.fail(ctx, err)
			return nil, err
		}
		// Imported private material may carry a different password.
		if newPrivate {
			c.cache.Invalidate(key.Fingerprint)
		}
		imported = append(imported, models.NewKeyDetails(key, models.Fingerprint(keyring.DefaultKey), c.now()))
	}
	if len(records) == 1 {
		r.fpr = records[0].Fingerprint
	}

	c.broadcast(ctx, keyringID, r.fpr, OpImportKeys)
	if _, err := r.end(ctx, PhaseSucceeded, nil); err != nil {
		return nil, err
	}
	return imported, nil
}

// mergeImported folds an imported record into the stored one with the same
// fingerprint. newPrivate reports whether the private material changes.
func (c *Controller) mergeImported(ctx context.Context, incoming *models.KeyRecord) (*models.KeyRecord, bool, error) {
	existing, err := c.keys.GetKey(ctx, incoming.KeyringID, incoming.Fingerprint)
	if errors.HasCode(err, constants.ErrCodeNotFound) {
		return incoming, incoming.HasPrivateKey(), nil
	}
	if err != nil {
		return nil, false, err
	}
	merged, err := c.crypto.MergeKeys(existing, incoming)
	if err != nil {
		return nil, false, err
	}
	if merged.HasPrivateKey() != existing.HasPrivateKey() || merged.ArmoredPrivate != existing.ArmoredPrivate {
		c.logger.Info(ctx, "imported private material for stored key",
			logger.String("fingerprint", utils.MaskFingerprint(string(merged.Fingerprint))))
		return merged, true, nil
	}
	return merged, false, nil
}

// GetKeyDetails returns one key of the keyring.
func (c *Controller) GetKeyDetails(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyDetails, error) {
	keyring, err := c.keys.GetKeyring(ctx, keyringID)
	if err != nil {
		return nil, err
	}
	key, err := c.keys.GetKey(ctx, keyringID, fpr)
	if err != nil {
		return nil, err
	}
	return models.NewKeyDetails(key, models.Fingerprint(keyring.DefaultKey), c.now()), nil
}

// ListKeys returns every key of the keyring.
func (c *Controller) ListKeys(ctx context.Context, keyringID string) ([]*models.KeyDetails, error) {
	keyring, err := c.keys.GetKeyring(ctx, keyringID)
	if err != nil {
		return nil, err
	}
	keys, err := c.keys.ListKeys(ctx, keyringID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.KeyDetails, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.NewKeyDetails(k, models.Fingerprint(keyring.DefaultKey), c.now()))
	}
	return out, nil
}

// GetArmoredKeys exports the requested keys. Private material is exported in
// its stored, password-protected form and only for key pairs.
// GetArmoredKeys 导出指定密钥；私钥以受密码保护的存储形式导出。
func (c *Controller) GetArmoredKeys(ctx context.Context, keyringID string, fprs []models.Fingerprint, export models.ArmoredExport) ([]models.ArmoredKey, error) {
	switch export {
	case models.ExportPublic, models.ExportPrivate, models.ExportAll:
	case "":
		export = models.ExportPublic
	default:
		return nil, errors.ErrInvalidRequest("export must be pub, priv or all")
	}

	out := make([]models.ArmoredKey, 0, len(fprs))
	for _, fpr := range fprs {
		key, err := c.keys.GetKey(ctx, keyringID, fpr)
		if err != nil {
			return nil, err
		}
		item := models.ArmoredKey{Fingerprint: key.Fingerprint}
		if export == models.ExportPublic || export == models.ExportAll {
			item.ArmoredPub = key.ArmoredPublic
		}
		if (export == models.ExportPrivate || export == models.ExportAll) && key.HasPrivateKey() {
			item.ArmoredPriv = key.ArmoredPrivate
		}
		out = append(out, item)
	}
	return out, nil
}

// GetSyncStatus returns the key server sync state of the key.
func (c *Controller) GetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error) {
	return c.sync.GetStatus(ctx, keyringID, fpr)
}

// SetSyncStatus publishes or withdraws the key on the key server and
// notifies observers on success.
// SetSyncStatus 在密钥服务器上发布或撤回密钥，成功后通知观察者。
func (c *Controller) SetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint, sync bool) (*models.KeyServerResult, error) {
	ctx, r := c.begin(ctx, OpSetSyncStatus, keyringID, fpr)

	r.enter(ctx, PhaseMutating)
	res, err := c.sync.SetStatus(ctx, keyringID, fpr, sync)
	if err != nil {
		_, err = r.fail(ctx, err)
		return nil, err
	}

	c.broadcast(ctx, keyringID, fpr, OpSetSyncStatus)
	if _, err := r.end(ctx, PhaseSucceeded, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// ListKeyrings returns every keyring.
func (c *Controller) ListKeyrings(ctx context.Context) ([]*models.Keyring, error) {
	return c.keys.ListKeyrings(ctx)
}

// CreateKeyring creates an empty keyring.
func (c *Controller) CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error) {
	if !utils.ValidateNotEmpty(keyringID) {
		return nil, errors.ErrInvalidRequest("keyring id is required")
	}
	keyring, err := c.keys.CreateKeyring(ctx, keyringID)
	if err != nil {
		c.logger.Error(ctx, "Failed to create keyring", err, logger.String("keyring_id", keyringID))
		return nil, err
	}
	c.logger.Info(ctx, "Keyring created", logger.String("keyring_id", keyringID))
	return keyring, nil
}

// SetDefaultKey makes fpr the keyring's default key. Only key pairs qualify.
func (c *Controller) SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error {
	if _, err := c.privateKey(ctx, keyringID, fpr); err != nil {
		return err
	}
	if err := c.keys.SetDefaultKey(ctx, keyringID, fpr); err != nil {
		return err
	}
	c.broadcast(ctx, keyringID, fpr, OpSetDefaultKey)
	return nil
}

// GetActiveKeyring returns the active keyring, the main keyring when none was chosen.
func (c *Controller) GetActiveKeyring(ctx context.Context) (string, error) {
	id, err := c.active.GetActive(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return constants.MainKeyringID, nil
	}
	return id, nil
}

// SetActiveKeyring switches the active keyring. The keyring must exist.
func (c *Controller) SetActiveKeyring(ctx context.Context, keyringID string) error {
	if _, err := c.keys.GetKeyring(ctx, keyringID); err != nil {
		return err
	}
	return c.active.SetActive(ctx, keyringID)
}
