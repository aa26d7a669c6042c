package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keyvault/internal/domain/models"
)

// MockKeyCrypto is a mock of service.KeyCrypto.
type MockKeyCrypto struct {
	mock.Mock
}

func (m *MockKeyCrypto) AttemptUnlock(ctx context.Context, key *models.KeyRecord, password []byte) (models.UnlockedKey, error) {
	args := m.Called(ctx, key, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.UnlockedKey), args.Error(1)
}

func (m *MockKeyCrypto) ArmorPublic(key *models.KeyRecord) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockKeyCrypto) PrimaryUserEmail(key *models.KeyRecord) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockKeyCrypto) AddUser(ctx context.Context, key models.UnlockedKey, user models.UserID) (*models.KeyMaterial, error) {
	args := m.Called(ctx, key, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyMaterial), args.Error(1)
}

func (m *MockKeyCrypto) SetExpiry(ctx context.Context, key models.UnlockedKey, expiry *time.Time) (*models.KeyMaterial, error) {
	args := m.Called(ctx, key, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyMaterial), args.Error(1)
}

func (m *MockKeyCrypto) ChangePassword(ctx context.Context, key models.UnlockedKey, newPassword []byte) (*models.KeyMaterial, error) {
	args := m.Called(ctx, key, newPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyMaterial), args.Error(1)
}

func (m *MockKeyCrypto) RevokeKey(ctx context.Context, key models.UnlockedKey) (*models.KeyMaterial, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyMaterial), args.Error(1)
}

func (m *MockKeyCrypto) RevokeUser(ctx context.Context, key models.UnlockedKey, userID string) (*models.KeyMaterial, error) {
	args := m.Called(ctx, key, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyMaterial), args.Error(1)
}

func (m *MockKeyCrypto) MergeKeys(existing, incoming *models.KeyRecord) (*models.KeyRecord, error) {
	args := m.Called(existing, incoming)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyRecord), args.Error(1)
}

func (m *MockKeyCrypto) StripUser(armoredPublic string, userID string) (string, error) {
	args := m.Called(armoredPublic, userID)
	return args.String(0), args.Error(1)
}

func (m *MockKeyCrypto) Generate(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyRecord, error) {
	args := m.Called(ctx, keyringID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyRecord), args.Error(1)
}

func (m *MockKeyCrypto) Import(ctx context.Context, keyringID string, armored string) ([]*models.KeyRecord, error) {
	args := m.Called(ctx, keyringID, armored)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.KeyRecord), args.Error(1)
}

// FakeUnlockedKey is an UnlockedKey that records wipes and clones.
type FakeUnlockedKey struct {
	Fpr models.Fingerprint

	mu     sync.Mutex
	wiped  bool
	clones []*FakeUnlockedKey
}

func NewFakeUnlockedKey(fpr models.Fingerprint) *FakeUnlockedKey {
	return &FakeUnlockedKey{Fpr: fpr}
}

func (k *FakeUnlockedKey) Fingerprint() models.Fingerprint { return k.Fpr }

func (k *FakeUnlockedKey) Clone() (models.UnlockedKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.wiped {
		return nil, errors.New("key wiped")
	}
	c := &FakeUnlockedKey{Fpr: k.Fpr}
	k.clones = append(k.clones, c)
	return c, nil
}

func (k *FakeUnlockedKey) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.wiped = true
}

func (k *FakeUnlockedKey) Wiped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.wiped
}

// Clones returns the copies handed out so far.
func (k *FakeUnlockedKey) Clones() []*FakeUnlockedKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*FakeUnlockedKey(nil), k.clones...)
}
