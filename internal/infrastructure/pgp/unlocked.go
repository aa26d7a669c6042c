package pgp

import (
	"bytes"
	"crypto/rsa"
	"io"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
)

// unlockedKey holds a decrypted entity and the password that opened it. The
// password is kept so edits can re-protect the key without another prompt.
type unlockedKey struct {
	mu       sync.Mutex
	fpr      models.Fingerprint
	entity   *openpgp.Entity
	password []byte
	wiped    bool
}

func newUnlockedKey(entity *openpgp.Entity, password []byte) *unlockedKey {
	return &unlockedKey{
		fpr:      fingerprintOf(entity),
		entity:   entity,
		password: append([]byte(nil), password...),
	}
}

func (k *unlockedKey) Fingerprint() models.Fingerprint { return k.fpr }

// Clone returns an independent handle with its own copy of the secret material.
func (k *unlockedKey) Clone() (models.UnlockedKey, error) {
	entity, password, err := k.snapshot()
	if err != nil {
		return nil, err
	}
	defer wipeBytes(password)
	return newUnlockedKey(entity, password), nil
}

// snapshot copies the entity and password. The caller owns both.
func (k *unlockedKey) snapshot() (*openpgp.Entity, []byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.wiped {
		return nil, nil, errors.ErrInternal("unlocked key " + string(k.fpr) + " was already wiped")
	}
	entity, err := copyEntity(k.entity)
	if err != nil {
		return nil, nil, err
	}
	return entity, append([]byte(nil), k.password...), nil
}

func (k *unlockedKey) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.wiped {
		return
	}
	k.wiped = true
	wipeBytes(k.password)
	k.password = nil
	wipeEntity(k.entity)
	k.entity = nil
}

// copyEntity round-trips a decrypted entity through its packet encoding
// without re-signing anything.
func copyEntity(entity *openpgp.Entity) (*openpgp.Entity, error) {
	var buf bytes.Buffer
	defer func() { wipeBytes(buf.Bytes()) }()
	if err := writeEntity(&buf, entity, true); err != nil {
		return nil, errors.ErrInternal("failed to copy unlocked key").WithCause(err)
	}
	list, err := openpgp.ReadKeyRing(bytes.NewReader(buf.Bytes()))
	if err != nil || len(list) != 1 {
		return nil, errors.ErrInternal("failed to copy unlocked key").WithCause(err)
	}
	return list[0], nil
}

// writeEntity writes the transferable key packets of e. With private set the
// primary key and subkeys are written in their decrypted secret form. Every
// signature is written once even when the entity lists it in more than one
// place.
func writeEntity(w io.Writer, e *openpgp.Entity, private bool) error {
	var err error
	if private {
		err = e.PrivateKey.Serialize(w)
	} else {
		err = e.PrimaryKey.Serialize(w)
	}
	if err != nil {
		return err
	}
	written := make(map[*packet.Signature]bool)
	if err := writeSignatures(w, written, e.Revocations, []*packet.Signature{e.SelfSignature}, e.Signatures); err != nil {
		return err
	}
	for _, id := range sortedIdentities(e) {
		ident := e.Identities[id]
		if err := ident.UserId.Serialize(w); err != nil {
			return err
		}
		if err := writeSignatures(w, written, []*packet.Signature{ident.SelfSignature}, ident.Revocations, ident.Signatures); err != nil {
			return err
		}
	}
	for _, sub := range e.Subkeys {
		if private && sub.PrivateKey != nil {
			err = sub.PrivateKey.Serialize(w)
		} else {
			err = sub.PublicKey.Serialize(w)
		}
		if err != nil {
			return err
		}
		if err := writeSignatures(w, written, sub.Revocations, []*packet.Signature{sub.Sig}); err != nil {
			return err
		}
	}
	return nil
}

func writeSignatures(w io.Writer, written map[*packet.Signature]bool, lists ...[]*packet.Signature) error {
	for _, list := range lists {
		for _, sig := range list {
			if sig == nil || written[sig] {
				continue
			}
			written[sig] = true
			if err := sig.Serialize(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// wipeEntity zeroes the private exponents the runtime lets us reach.
func wipeEntity(e *openpgp.Entity) {
	if e == nil {
		return
	}
	if e.PrivateKey != nil {
		wipePrivate(e.PrivateKey.PrivateKey)
	}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey != nil {
			wipePrivate(sub.PrivateKey.PrivateKey)
		}
	}
}

func wipePrivate(priv interface{}) {
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok || rsaKey == nil {
		return
	}
	if rsaKey.D != nil {
		rsaKey.D.SetInt64(0)
	}
	for _, p := range rsaKey.Primes {
		if p != nil {
			p.SetInt64(0)
		}
	}
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
