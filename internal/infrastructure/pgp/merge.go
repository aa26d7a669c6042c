package pgp

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
)

// MergeKeys folds incoming into existing, the stored record with the same
// fingerprint. User ids, certifications, revocations and subkeys of both
// survive. Stored private material is never replaced by incoming material.
// MergeKeys 合并同一指纹的两份密钥记录，已存储的私钥优先。
func (e *Engine) MergeKeys(existing, incoming *models.KeyRecord) (*models.KeyRecord, error) {
	if existing.Fingerprint != incoming.Fingerprint {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("cannot merge key %s into %s", incoming.Fingerprint, existing.Fingerprint))
	}
	base, err := readPublic(existing.ArmoredPublic)
	if err != nil {
		return nil, err
	}
	other, err := readPublic(incoming.ArmoredPublic)
	if err != nil {
		return nil, err
	}
	mergeEntity(base, other)

	armored, err := armorPublic(base)
	if err != nil {
		return nil, err
	}
	private := existing.ArmoredPrivate
	if private == "" {
		private = incoming.ArmoredPrivate
	}
	return e.record(existing.KeyringID, base, armored, private), nil
}

func mergeEntity(dst, src *openpgp.Entity) {
	dst.Revocations = appendMissing(dst.Revocations, src.Revocations...)
	dst.Signatures = appendMissing(dst.Signatures, src.Signatures...)

	for name, ident := range src.Identities {
		have, ok := dst.Identities[name]
		if !ok {
			dst.Identities[name] = ident
			continue
		}
		have.Revocations = appendMissing(have.Revocations, ident.Revocations...)
		have.Signatures = appendMissing(have.Signatures, ident.Signatures...)
		if ident.SelfSignature != nil && (have.SelfSignature == nil ||
			ident.SelfSignature.CreationTime.After(have.SelfSignature.CreationTime)) {
			have.SelfSignature = ident.SelfSignature
		}
	}

	for _, sub := range src.Subkeys {
		i := subkeyIndex(dst, sub.PublicKey.KeyId)
		if i < 0 {
			dst.Subkeys = append(dst.Subkeys, sub)
			continue
		}
		dst.Subkeys[i].Revocations = appendMissing(dst.Subkeys[i].Revocations, sub.Revocations...)
	}
}

func subkeyIndex(entity *openpgp.Entity, keyID uint64) int {
	for i, sub := range entity.Subkeys {
		if sub.PublicKey.KeyId == keyID {
			return i
		}
	}
	return -1
}

// appendMissing appends the signatures of src whose packets are not in dst yet.
func appendMissing(dst []*packet.Signature, src ...*packet.Signature) []*packet.Signature {
	seen := make(map[string]bool, len(dst)+len(src))
	for _, sig := range dst {
		seen[signatureKey(sig)] = true
	}
	for _, sig := range src {
		if sig == nil {
			continue
		}
		k := signatureKey(sig)
		if seen[k] {
			continue
		}
		seen[k] = true
		dst = append(dst, sig)
	}
	return dst
}

func signatureKey(sig *packet.Signature) string {
	var buf bytes.Buffer
	if sig == nil || sig.Serialize(&buf) != nil {
		return fmt.Sprintf("%p", sig)
	}
	return buf.String()
}
