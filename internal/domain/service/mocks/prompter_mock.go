package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keyvault/internal/domain/models"
)

type MockPasswordPrompter struct {
	mock.Mock
}

func (m *MockPasswordPrompter) PromptPassword(ctx context.Context, req models.PromptRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockChangeNotifier struct {
	mock.Mock
}

func (m *MockChangeNotifier) NotifyKeysChanged(ctx context.Context, event models.KeysChangedEvent) {
	m.Called(ctx, event)
}
