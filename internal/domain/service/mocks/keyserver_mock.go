package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keyvault/internal/domain/models"
)

type MockKeyServer struct {
	mock.Mock
}

func (m *MockKeyServer) Upload(ctx context.Context, armoredPublic string) error {
	args := m.Called(ctx, armoredPublic)
	return args.Error(0)
}

func (m *MockKeyServer) Remove(ctx context.Context, identity string) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockKeyServer) Exists(ctx context.Context, fpr models.Fingerprint) (bool, error) {
	args := m.Called(ctx, fpr)
	return args.Bool(0), args.Error(1)
}
