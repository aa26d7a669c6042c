// Package pgp implements key unlocking, inspection and editing on top of
// github.com/ProtonMail/go-crypto/openpgp.
//
// Private material is stored in one of two forms. Keys generated or edited
// here are stored as a password-encrypted OpenPGP message wrapping the
// transferable secret key. Imported keys keep their native, passphrase
// protected "PGP PRIVATE KEY BLOCK" until their first edit.
//
// Packets are written by this package rather than by Entity.Serialize so the
// stored form keeps every revocation and never re-signs behind the caller.
// Package pgp 基于 go-crypto/openpgp 实现密钥的解锁、检查与编辑。
package pgp

import (
	"bytes"
	"context"
	"crypto"
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
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

// wrapBlockType is the armor type of the password-encrypted wrapper.
const wrapBlockType = "PGP MESSAGE"

const defaultBits = 2048

// Engine implements service.KeyCrypto.
type Engine struct {
	bits   int
	now    func() time.Time
	logger logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultBits sets the RSA size used when a generate request names none.
func WithDefaultBits(bits int) Option {
	return func(e *Engine) {
		if bits > 0 {
			e.bits = bits
		}
	}
}

// WithClock replaces time.Now for key and signature creation times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	e := &Engine{
		bits:   defaultBits,
		now:    time.Now,
		logger: log.WithComponent("PGPEngine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) config(bits int) *packet.Config {
	if bits == 0 {
		bits = e.bits
	}
	return &packet.Config{
		DefaultHash:   crypto.SHA256,
		DefaultCipher: packet.CipherAES256,
		Time:          e.now,
		RSABits:       bits,
	}
}

// AttemptUnlock decrypts the stored private material of key with password.
func (e *Engine) AttemptUnlock(ctx context.Context, key *models.KeyRecord, password []byte) (models.UnlockedKey, error) {
	if !key.HasPrivateKey() {
		return nil, errors.ErrInvalidRequest("key " + string(key.Fingerprint) + " has no private key")
	}
	block, err := armor.Decode(strings.NewReader(key.ArmoredPrivate))
	if err != nil {
		return nil, errors.ErrInternal("stored private key is not armored").WithCause(err)
	}

	var entity *openpgp.Entity
	switch block.Type {
	case wrapBlockType:
		entity, err = unwrap(block.Body, password)
	case openpgp.PrivateKeyType:
		entity, err = decryptNative(block.Body, password)
	default:
		return nil, errors.ErrInternal("unexpected private key block " + block.Type)
	}
	if err != nil {
		if errors.IsKVError(err) {
			return nil, err
		}
		e.logger.Debug(ctx, "unlock attempt rejected", logger.String("fingerprint", utils.MaskFingerprint(string(key.Fingerprint))))
		return nil, errors.ErrInvalidCredential(string(key.Fingerprint))
	}
	if fingerprintOf(entity) != key.Fingerprint {
		wipeEntity(entity)
		return nil, errors.ErrInternal("stored private key does not match fingerprint " + string(key.Fingerprint))
	}
	return newUnlockedKey(entity, password), nil
}

// unwrap decrypts the password-encrypted wrapper. A wrong password surfaces
// as a plain error from ReadMessage.
func unwrap(body io.Reader, password []byte) (*openpgp.Entity, error) {
	tried := false
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if tried || !symmetric {
			return nil, errWrongPassword
		}
		tried = true
		return password, nil
	}
	md, err := openpgp.ReadMessage(body, openpgp.EntityList(nil), prompt, nil)
	if err != nil {
		return nil, err
	}
	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(plain)
	return readSecretEntity(bytes.NewReader(plain))
}

func decryptNative(body io.Reader, password []byte) (*openpgp.Entity, error) {
	entity, err := readSecretEntity(body)
	if err != nil {
		return nil, errors.ErrInternal("stored private key is unreadable").WithCause(err)
	}
	if err := entity.PrivateKey.Decrypt(password); err != nil {
		return nil, err
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey == nil {
			continue
		}
		if err := sub.PrivateKey.Decrypt(password); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func readSecretEntity(r io.Reader) (*openpgp.Entity, error) {
	list, err := openpgp.ReadKeyRing(r)
	if err != nil {
		return nil, err
	}
	if len(list) != 1 || list[0].PrivateKey == nil {
		return nil, fmt.Errorf("expected exactly one secret key, got %d entities", len(list))
	}
	return list[0], nil
}

var errWrongPassword = fmt.Errorf("wrong password")

// ArmorPublic returns the stored transferable public key after checking it parses.
func (e *Engine) ArmorPublic(key *models.KeyRecord) (string, error) {
	if _, err := readPublic(key.ArmoredPublic); err != nil {
		return "", err
	}
	return key.ArmoredPublic, nil
}

// PrimaryUserEmail returns the email of the key's primary user id.
func (e *Engine) PrimaryUserEmail(key *models.KeyRecord) (string, error) {
	entity, err := readPublic(key.ArmoredPublic)
	if err != nil {
		return "", err
	}
	ident := primaryIdentity(entity)
	if ident == nil || ident.UserId.Email == "" {
		return "", errors.ErrInvalidRequest("key " + string(key.Fingerprint) + " has no primary email")
	}
	return ident.UserId.Email, nil
}

func readPublic(armored string) (*openpgp.Entity, error) {
	if armored == "" {
		return nil, errors.ErrInvalidRequest("key has no public material")
	}
	list, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, errors.ErrInvalidRequest("public key is unreadable").WithCause(err)
	}
	if len(list) != 1 {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("expected one public key, got %d", len(list)))
	}
	return list[0], nil
}

// protect serializes the decrypted entity and encrypts it with password.
func (e *Engine) protect(entity *openpgp.Entity, password []byte, cfg *packet.Config) (string, error) {
	var plain bytes.Buffer
	if err := writeEntity(&plain, entity, true); err != nil {
		return "", errors.ErrInternal("failed to serialize private key").WithCause(err)
	}
	defer wipeBytes(plain.Bytes())

	var out bytes.Buffer
	aw, err := armor.Encode(&out, wrapBlockType, nil)
	if err != nil {
		return "", errors.ErrInternal("failed to armor private key").WithCause(err)
	}
	w, err := openpgp.SymmetricallyEncrypt(aw, password, nil, cfg)
	if err != nil {
		return "", errors.ErrInternal("failed to encrypt private key").WithCause(err)
	}
	if _, err := w.Write(plain.Bytes()); err != nil {
		return "", errors.ErrInternal("failed to encrypt private key").WithCause(err)
	}
	if err := w.Close(); err != nil {
		return "", errors.ErrInternal("failed to encrypt private key").WithCause(err)
	}
	if err := aw.Close(); err != nil {
		return "", errors.ErrInternal("failed to armor private key").WithCause(err)
	}
	return out.String(), nil
}

func armorPublic(entity *openpgp.Entity) (string, error) {
	var out bytes.Buffer
	aw, err := armor.Encode(&out, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", errors.ErrInternal("failed to armor public key").WithCause(err)
	}
	if err := writeEntity(aw, entity, false); err != nil {
		return "", errors.ErrInternal("failed to serialize public key").WithCause(err)
	}
	if err := aw.Close(); err != nil {
		return "", errors.ErrInternal("failed to armor public key").WithCause(err)
	}
	return out.String(), nil
}

func armorBlock(blockType string, data []byte) (string, error) {
	var out bytes.Buffer
	aw, err := armor.Encode(&out, blockType, nil)
	if err != nil {
		return "", err
	}
	if _, err := aw.Write(data); err != nil {
		return "", err
	}
	if err := aw.Close(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// record builds the persisted form of entity.
func (e *Engine) record(keyringID string, entity *openpgp.Entity, armoredPublic, armoredPrivate string) *models.KeyRecord {
	pk := entity.PrimaryKey
	bits, _ := pk.BitLength()
	rec := &models.KeyRecord{
		KeyringID:      keyringID,
		Fingerprint:    fingerprintOf(entity),
		KeyID:          fmt.Sprintf("%016X", pk.KeyId),
		Algorithm:      algorithmName(pk.PubKeyAlgo),
		BitLength:      int(bits),
		ArmoredPublic:  armoredPublic,
		ArmoredPrivate: armoredPrivate,
		KeyCreatedAt:   pk.CreationTime,
		ExpiresAt:      expiryOf(entity),
	}
	rec.RevokedAt = revokedAt(entity)
	rec.Revoked = rec.RevokedAt != nil

	primary := primaryIdentity(entity)
	for _, id := range sortedIdentities(entity) {
		ident := entity.Identities[id]
		rec.Users = append(rec.Users, models.KeyUser{
			KeyringID:   keyringID,
			Fingerprint: rec.Fingerprint,
			UserID:      ident.Name,
			Name:        ident.UserId.Name,
			Email:       ident.UserId.Email,
			Primary:     ident == primary,
			Revoked:     len(ident.Revocations) > 0,
			CreatedAt:   ident.SelfSignature.CreationTime,
		})
	}
	return rec
}

// revokedAt returns the time of the earliest key revocation, nil when the key is not revoked.
func revokedAt(entity *openpgp.Entity) *time.Time {
	var at *time.Time
	for _, sig := range entity.Revocations {
		t := sig.CreationTime
		if at == nil || t.Before(*at) {
			at = &t
		}
	}
	return at
}

func fingerprintOf(entity *openpgp.Entity) models.Fingerprint {
	return models.Fingerprint(strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])))
}

func sortedIdentities(entity *openpgp.Entity) []string {
	ids := make([]string, 0, len(entity.Identities))
	for id := range entity.Identities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// primaryIdentity returns the identity flagged primary, or the first one by name.
func primaryIdentity(entity *openpgp.Entity) *openpgp.Identity {
	var first *openpgp.Identity
	for _, id := range sortedIdentities(entity) {
		ident := entity.Identities[id]
		if ident.SelfSignature != nil && ident.SelfSignature.IsPrimaryId != nil && *ident.SelfSignature.IsPrimaryId {
			return ident
		}
		if first == nil {
			first = ident
		}
	}
	return first
}

func expiryOf(entity *openpgp.Entity) *time.Time {
	ident := primaryIdentity(entity)
	if ident == nil || ident.SelfSignature == nil || ident.SelfSignature.KeyLifetimeSecs == nil || *ident.SelfSignature.KeyLifetimeSecs == 0 {
		return nil
	}
	t := entity.PrimaryKey.CreationTime.Add(time.Duration(*ident.SelfSignature.KeyLifetimeSecs) * time.Second)
	return &t
}

func algorithmName(algo packet.PublicKeyAlgorithm) string {
	switch algo {
	case packet.PubKeyAlgoRSA, packet.PubKeyAlgoRSASignOnly, packet.PubKeyAlgoRSAEncryptOnly:
		return "rsa"
	case packet.PubKeyAlgoDSA:
		return "dsa"
	case packet.PubKeyAlgoElGamal:
		return "elgamal"
	case packet.PubKeyAlgoECDSA:
		return "ecdsa"
	case packet.PubKeyAlgoECDH:
		return "ecdh"
	case packet.PubKeyAlgoEdDSA:
		return "eddsa"
	default:
		return fmt.Sprintf("algo_%d", algo)
	}
}

//Personal.AI order the ending
