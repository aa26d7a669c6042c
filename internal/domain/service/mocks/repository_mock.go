package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keyvault/internal/domain/models"
)

type MockKeyringStore struct {
	mock.Mock
}

func (m *MockKeyringStore) GetKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyRecord, error) {
	args := m.Called(ctx, keyringID, fpr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyRecord), args.Error(1)
}

func (m *MockKeyringStore) ListKeys(ctx context.Context, keyringID string) ([]*models.KeyRecord, error) {
	args := m.Called(ctx, keyringID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.KeyRecord), args.Error(1)
}

func (m *MockKeyringStore) SaveKey(ctx context.Context, key *models.KeyRecord) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyringStore) RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) error {
	args := m.Called(ctx, keyringID, fpr, keyType)
	return args.Error(0)
}

func (m *MockKeyringStore) AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user *models.KeyUser, material *models.KeyMaterial) error {
	args := m.Called(ctx, keyringID, fpr, user, material)
	return args.Error(0)
}

func (m *MockKeyringStore) RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string, armoredPublic string) error {
	args := m.Called(ctx, keyringID, fpr, userID, armoredPublic)
	return args.Error(0)
}

func (m *MockKeyringStore) RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string, material *models.KeyMaterial) error {
	args := m.Called(ctx, keyringID, fpr, userID, material)
	return args.Error(0)
}

func (m *MockKeyringStore) RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error {
	args := m.Called(ctx, keyringID, fpr, material)
	return args.Error(0)
}

func (m *MockKeyringStore) SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error {
	args := m.Called(ctx, keyringID, fpr, material)
	return args.Error(0)
}

func (m *MockKeyringStore) SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error {
	args := m.Called(ctx, keyringID, fpr, material)
	return args.Error(0)
}

func (m *MockKeyringStore) CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error) {
	args := m.Called(ctx, keyringID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Keyring), args.Error(1)
}

func (m *MockKeyringStore) GetKeyring(ctx context.Context, keyringID string) (*models.Keyring, error) {
	args := m.Called(ctx, keyringID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Keyring), args.Error(1)
}

func (m *MockKeyringStore) ListKeyrings(ctx context.Context) ([]*models.Keyring, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Keyring), args.Error(1)
}

func (m *MockKeyringStore) SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error {
	args := m.Called(ctx, keyringID, fpr)
	return args.Error(0)
}

func (m *MockKeyringStore) DeleteKeyring(ctx context.Context, keyringID string) error {
	args := m.Called(ctx, keyringID)
	return args.Error(0)
}

type MockSyncIntentRepository struct {
	mock.Mock
}

func (m *MockSyncIntentRepository) Get(ctx context.Context, fpr models.Fingerprint) (bool, bool, error) {
	args := m.Called(ctx, fpr)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *MockSyncIntentRepository) Set(ctx context.Context, fpr models.Fingerprint, intent bool) error {
	args := m.Called(ctx, fpr, intent)
	return args.Error(0)
}

func (m *MockSyncIntentRepository) Delete(ctx context.Context, fpr models.Fingerprint) error {
	args := m.Called(ctx, fpr)
	return args.Error(0)
}

type MockActiveKeyringStore struct {
	mock.Mock
}

func (m *MockActiveKeyringStore) GetActive(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockActiveKeyringStore) SetActive(ctx context.Context, keyringID string) error {
	args := m.Called(ctx, keyringID)
	return args.Error(0)
}
