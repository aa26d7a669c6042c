package pgp

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// edit applies fn to a private copy of the unlocked key and re-protects the
// result with password, or with the password that unlocked the key when nil.
func (e *Engine) edit(ctx context.Context, key models.UnlockedKey, password []byte, fn func(*openpgp.Entity, *packet.Config) error) (*models.KeyMaterial, error) {
	handle, ok := key.(*unlockedKey)
	if !ok {
		return nil, errors.ErrInternal("unlocked key was not produced by this engine")
	}
	entity, current, err := handle.snapshot()
	if err != nil {
		return nil, err
	}
	defer wipeBytes(current)
	defer wipeEntity(entity)

	cfg := e.config(0)
	if err := fn(entity, cfg); err != nil {
		return nil, err
	}
	if password == nil {
		password = current
	}
	armoredPrivate, err := e.protect(entity, password, cfg)
	if err != nil {
		return nil, err
	}
	armoredPublic, err := armorPublic(entity)
	if err != nil {
		return nil, err
	}
	e.logger.Debug(ctx, "key material re-serialized", logger.String("fingerprint", utils.MaskFingerprint(string(handle.fpr))))
	return &models.KeyMaterial{
		ArmoredPublic:  armoredPublic,
		ArmoredPrivate: armoredPrivate,
		ExpiresAt:      expiryOf(entity),
		RevokedAt:      revokedAt(entity),
	}, nil
}

// AddUser binds a new self-signed user id to the key.
func (e *Engine) AddUser(ctx context.Context, key models.UnlockedKey, user models.UserID) (*models.KeyMaterial, error) {
	return e.edit(ctx, key, nil, func(entity *openpgp.Entity, cfg *packet.Config) error {
		return addIdentity(entity, user, cfg)
	})
}

// SetExpiry rewrites every self signature with the new key lifetime. A nil
// expiry removes the lifetime.
func (e *Engine) SetExpiry(ctx context.Context, key models.UnlockedKey, expiry *time.Time) (*models.KeyMaterial, error) {
	return e.edit(ctx, key, nil, func(entity *openpgp.Entity, cfg *packet.Config) error {
		return applyExpiry(entity, expiry, cfg)
	})
}

// RevokeKey adds a key revocation signature. The revoked material is what
// gets exported and uploaded afterwards.
// RevokeKey 为密钥添加吊销签名。
func (e *Engine) RevokeKey(ctx context.Context, key models.UnlockedKey) (*models.KeyMaterial, error) {
	return e.edit(ctx, key, nil, func(entity *openpgp.Entity, cfg *packet.Config) error {
		if len(entity.Revocations) > 0 {
			return errors.ErrInvalidRequest("key " + string(fingerprintOf(entity)) + " is already revoked")
		}
		if err := entity.RevokeKey(packet.NoReason, "", cfg); err != nil {
			return errors.ErrInternal("failed to sign key revocation").WithCause(err)
		}
		return nil
	})
}

// RevokeUser adds a certification revocation signature to userID.
// RevokeUser 为用户 ID 添加认证吊销签名。
func (e *Engine) RevokeUser(ctx context.Context, key models.UnlockedKey, userID string) (*models.KeyMaterial, error) {
	return e.edit(ctx, key, nil, func(entity *openpgp.Entity, cfg *packet.Config) error {
		return revokeIdentity(entity, userID, cfg)
	})
}

// ChangePassword re-protects the key with newPassword.
func (e *Engine) ChangePassword(ctx context.Context, key models.UnlockedKey, newPassword []byte) (*models.KeyMaterial, error) {
	if len(newPassword) == 0 {
		return nil, errors.ErrInvalidRequest("new password must not be empty")
	}
	return e.edit(ctx, key, newPassword, func(*openpgp.Entity, *packet.Config) error { return nil })
}

// StripUser removes userID from the public material.
func (e *Engine) StripUser(armoredPublic string, userID string) (string, error) {
	entity, err := readPublic(armoredPublic)
	if err != nil {
		return "", err
	}
	if _, ok := entity.Identities[userID]; !ok {
		return "", errors.ErrUserNotFound(string(fingerprintOf(entity)), userID)
	}
	if len(entity.Identities) == 1 {
		return "", errors.ErrInvariantViolation("cannot remove the only user id of a key")
	}
	delete(entity.Identities, userID)
	return armorPublic(entity)
}

// Generate creates an RSA key pair with an encryption subkey. The first user
// becomes the primary user id.
func (e *Engine) Generate(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyRecord, error) {
	if len(params.Users) == 0 {
		return nil, errors.ErrInvalidRequest("at least one user id is required")
	}
	if len(params.Password) == 0 {
		return nil, errors.ErrInvalidRequest("password is required")
	}
	cfg := e.config(params.BitLength)

	first := params.Users[0]
	entity, err := openpgp.NewEntity(first.Name, first.Comment, first.Email, cfg)
	if err != nil {
		return nil, errors.ErrInvalidRequest("invalid user id").WithCause(err)
	}
	defer wipeEntity(entity)
	for _, u := range params.Users[1:] {
		if err := addIdentity(entity, u, cfg); err != nil {
			return nil, err
		}
	}
	if params.ExpiresAt != nil {
		if err := applyExpiry(entity, params.ExpiresAt, cfg); err != nil {
			return nil, err
		}
	}

	armoredPrivate, err := e.protect(entity, params.Password, cfg)
	if err != nil {
		return nil, err
	}
	armoredPublic, err := armorPublic(entity)
	if err != nil {
		return nil, err
	}
	rec := e.record(keyringID, entity, armoredPublic, armoredPrivate)
	e.logger.Info(ctx, "key pair generated",
		logger.String("keyring_id", keyringID),
		logger.String("fingerprint", utils.MaskFingerprint(string(rec.Fingerprint))),
		logger.Int("bits", rec.BitLength))
	return rec, nil
}

// Import parses one armored block of public or private keys. Private keys
// must be passphrase protected; they are stored in their native form.
func (e *Engine) Import(ctx context.Context, keyringID string, armored string) ([]*models.KeyRecord, error) {
	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return nil, errors.ErrInvalidRequest("no armored key data found").WithCause(err)
	}
	if block.Type != openpgp.PublicKeyType && block.Type != openpgp.PrivateKeyType {
		return nil, errors.ErrInvalidRequest("expected a public or private key block, got " + block.Type)
	}
	groups, err := splitTransferable(block.Body)
	if err != nil {
		return nil, errors.ErrInvalidRequest("malformed key data").WithCause(err)
	}

	var records []*models.KeyRecord
	for _, raw := range groups {
		list, err := openpgp.ReadKeyRing(bytes.NewReader(raw))
		if err != nil || len(list) == 0 {
			e.logger.Warn(ctx, "skipping unreadable key in import", logger.String("keyring_id", keyringID))
			continue
		}
		entity := list[0]
		armoredPublic, err := armorPublic(entity)
		if err != nil {
			return nil, err
		}
		armoredPrivate := ""
		if entity.PrivateKey != nil {
			if !entity.PrivateKey.Encrypted {
				return nil, errors.ErrInvalidRequest("private key " + string(fingerprintOf(entity)) + " is not password protected")
			}
			if armoredPrivate, err = armorBlock(openpgp.PrivateKeyType, raw); err != nil {
				return nil, errors.ErrInternal("failed to armor private key").WithCause(err)
			}
		}
		records = append(records, e.record(keyringID, entity, armoredPublic, armoredPrivate))
	}
	if len(records) == 0 {
		return nil, errors.ErrInvalidRequest("no usable keys found")
	}
	e.logger.Info(ctx, "keys parsed for import",
		logger.String("keyring_id", keyringID),
		logger.Int("count", len(records)))
	return records, nil
}

// splitTransferable cuts a packet stream into one byte slice per transferable
// key, keeping every packet verbatim so protected secret keys survive.
func splitTransferable(r io.Reader) ([][]byte, error) {
	const (
		tagSecretKey = 5
		tagPublicKey = 6
	)
	var (
		groups  [][]byte
		current *bytes.Buffer
	)
	reader := packet.NewOpaqueReader(r)
	for {
		p, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if p.Tag == tagSecretKey || p.Tag == tagPublicKey {
			if current != nil {
				groups = append(groups, current.Bytes())
			}
			current = new(bytes.Buffer)
		}
		if current == nil {
			continue
		}
		if err := p.Serialize(current); err != nil {
			return nil, err
		}
	}
	if current != nil {
		groups = append(groups, current.Bytes())
	}
	return groups, nil
}

func addIdentity(entity *openpgp.Entity, user models.UserID, cfg *packet.Config) error {
	uid := packet.NewUserId(user.Name, user.Comment, user.Email)
	if uid == nil {
		return errors.ErrInvalidRequest("user id contains invalid characters")
	}
	if _, ok := entity.Identities[uid.Id]; ok {
		return errors.ErrInvalidRequest("user id already present on key")
	}

	isPrimary := false
	sig := &packet.Signature{
		Version:      entity.PrimaryKey.Version,
		CreationTime: cfg.Now(),
		SigType:      packet.SigTypePositiveCert,
		PubKeyAlgo:   entity.PrimaryKey.PubKeyAlgo,
		Hash:         cfg.Hash(),
		IsPrimaryId:  &isPrimary,
		FlagsValid:   true,
		FlagSign:     true,
		FlagCertify:  true,
		IssuerKeyId:  &entity.PrimaryKey.KeyId,
	}
	if primary := primaryIdentity(entity); primary != nil && primary.SelfSignature.KeyLifetimeSecs != nil {
		secs := *primary.SelfSignature.KeyLifetimeSecs
		sig.KeyLifetimeSecs = &secs
	}
	if err := sig.SignUserId(uid.Id, entity.PrimaryKey, entity.PrivateKey, cfg); err != nil {
		return errors.ErrInternal("failed to sign user id").WithCause(err)
	}
	entity.Identities[uid.Id] = &openpgp.Identity{
		Name:          uid.Id,
		UserId:        uid,
		SelfSignature: sig,
		Signatures:    []*packet.Signature{sig},
	}
	return nil
}

func revokeIdentity(entity *openpgp.Entity, userID string, cfg *packet.Config) error {
	ident, ok := entity.Identities[userID]
	if !ok {
		return errors.ErrUserNotFound(string(fingerprintOf(entity)), userID)
	}
	if len(ident.Revocations) > 0 {
		return errors.ErrInvalidRequest("user id " + userID + " is already revoked")
	}
	reason := packet.NoReason
	sig := &packet.Signature{
		Version:          entity.PrimaryKey.Version,
		CreationTime:     cfg.Now(),
		SigType:          packet.SigTypeCertificationRevocation,
		PubKeyAlgo:       entity.PrimaryKey.PubKeyAlgo,
		Hash:             cfg.Hash(),
		IssuerKeyId:      &entity.PrimaryKey.KeyId,
		RevocationReason: &reason,
	}
	if err := sig.SignUserId(ident.UserId.Id, entity.PrimaryKey, entity.PrivateKey, cfg); err != nil {
		return errors.ErrInternal("failed to sign user id revocation").WithCause(err)
	}
	ident.Revocations = append(ident.Revocations, sig)
	ident.Signatures = append(ident.Signatures, sig)
	return nil
}

// applyExpiry sets the key lifetime on every self signature and signs them again.
func applyExpiry(entity *openpgp.Entity, expiry *time.Time, cfg *packet.Config) error {
	var lifetime *uint32
	if expiry != nil {
		d := expiry.Sub(entity.PrimaryKey.CreationTime)
		if d <= 0 {
			return errors.ErrInvalidRequest("expiry must be after the key creation time")
		}
		secs := uint32(d / time.Second)
		lifetime = &secs
	}
	now := cfg.Now()
	for _, id := range sortedIdentities(entity) {
		ident := entity.Identities[id]
		sig := ident.SelfSignature
		if sig == nil {
			continue
		}
		sig.KeyLifetimeSecs = lifetime
		if now.After(sig.CreationTime) {
			sig.CreationTime = now
		}
		if err := sig.SignUserId(ident.UserId.Id, entity.PrimaryKey, entity.PrivateKey, cfg); err != nil {
			return errors.ErrInternal("failed to sign user id").WithCause(err)
		}
	}
	return nil
}
