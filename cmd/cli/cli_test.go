package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
)

const testFpr = models.Fingerprint("A1B2C3D4E5F60718293A4B5C6D7E8F90D4984F96")

type mockBackend struct {
	Backend
	mock.Mock
}

func (m *mockBackend) GetActiveKeyring(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) ListKeys(ctx context.Context, keyringID string) ([]*models.KeyDetails, error) {
	args := m.Called(ctx, keyringID)
	keys, _ := args.Get(0).([]*models.KeyDetails)
	return keys, args.Error(1)
}

func (m *mockBackend) ListKeyrings(ctx context.Context) ([]*models.Keyring, error) {
	args := m.Called(ctx)
	keyrings, _ := args.Get(0).([]*models.Keyring)
	return keyrings, args.Error(1)
}

func (m *mockBackend) RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *mockBackend) GenerateKey(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyDetails, error) {
	args := m.Called(ctx, keyringID, params)
	key, _ := args.Get(0).(*models.KeyDetails)
	return key, args.Error(1)
}

func (m *mockBackend) SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, expiry *time.Time) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, expiry)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *mockBackend) GetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error) {
	args := m.Called(ctx, keyringID, fpr)
	return args.Get(0).(models.SyncStatus), args.Error(1)
}

// secrets answers ReadSecret from a fixed list.
type secrets struct {
	answers []string
	labels  []string
}

func (s *secrets) ReadSecret(label string) ([]byte, error) {
	s.labels = append(s.labels, label)
	if len(s.answers) == 0 {
		return nil, errors.ErrUserCancelled()
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return []byte(next), nil
}

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(backend *mockBackend, sec *secrets, args ...string) result {
	opened := 0
	root := NewRootCommand(func(*cobra.Command, *Options) (*Session, error) {
		opened++
		return &Session{Backend: backend, Secrets: sec, Close: func() { opened-- }}, nil
	})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	if opened != 0 {
		panic("session left open")
	}
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func sampleKey() *models.KeyDetails {
	return models.NewKeyDetails(&models.KeyRecord{
		KeyringID:      "work",
		Fingerprint:    testFpr,
		KeyID:          testFpr.KeyID(),
		Algorithm:      "RSA",
		BitLength:      3072,
		ArmoredPrivate: "private",
		KeyCreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Users: []models.KeyUser{
			{UserID: "Alice <alice@example.org>", Name: "Alice", Email: "alice@example.org", Primary: true},
		},
	}, testFpr, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestKeysList_UsesActiveKeyring(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)
	backend.On("ListKeys", mock.Anything, "work").Return([]*models.KeyDetails{sampleKey()}, nil)

	res := execute(backend, &secrets{}, "keys", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "FINGERPRINT")
	assert.Contains(t, res.stdout, string(testFpr))
	assert.Contains(t, res.stdout, "Alice <alice@example.org>")
	backend.AssertExpectations(t)
}

func TestKeysList_ExplicitKeyringJSON(t *testing.T) {
	backend := &mockBackend{}
	backend.On("ListKeys", mock.Anything, constants.MainKeyringID).Return([]*models.KeyDetails{sampleKey()}, nil)

	res := execute(backend, &secrets{}, "keys", "list", "-k", constants.MainKeyringID, "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"fingerprint": "`+string(testFpr)+`"`)
	backend.AssertNotCalled(t, "GetActiveKeyring", mock.Anything)
}

func TestRevoke_CancelledPromptIsNotAnError(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)
	backend.On("RevokeKey", mock.Anything, "work", testFpr).Return(lifecycle.Outcome{
		Operation:   lifecycle.OpRevokeKey,
		KeyringID:   "work",
		Fingerprint: testFpr,
		Phase:       lifecycle.PhaseCancelledByUser,
		Status:      lifecycle.PhaseCancelledByUser.String(),
	}, nil)

	res := execute(backend, &secrets{}, "keys", "revoke", "0x"+string(testFpr))
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Cancelled.")
	assert.Empty(t, res.stdout)
}

func TestRevoke_InvalidFingerprint(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)

	res := execute(backend, &secrets{}, "keys", "revoke", "xyz")
	assert.True(t, errors.HasCode(res.err, constants.ErrCodeInvalidRequest))
	backend.AssertNotCalled(t, "RevokeKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_ReadsPasswordTwice(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)
	backend.On("GenerateKey", mock.Anything, "work", mock.MatchedBy(func(p models.GenerateParams) bool {
		return string(p.Password) == "hunter22" &&
			p.BitLength == 4096 &&
			len(p.Users) == 1 && p.Users[0].Email == "alice@example.org"
	})).Return(sampleKey(), nil)

	sec := &secrets{answers: []string{"hunter22", "hunter22"}}
	res := execute(backend, sec, "keys", "generate", "--name", "Alice", "--email", "alice@example.org", "--bits", "4096")
	require.NoError(t, res.err)
	assert.Equal(t, []string{"New password", "Repeat new password"}, sec.labels)
	assert.Contains(t, res.stdout, "Fingerprint: "+string(testFpr))
	backend.AssertExpectations(t)
}

func TestGenerate_Validation(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)

	res := execute(backend, &secrets{}, "keys", "generate", "--name", "Alice", "--email", "not-an-email")
	assert.True(t, errors.HasCode(res.err, constants.ErrCodeInvalidRequest))

	sec := &secrets{answers: []string{"one", "two"}}
	res = execute(backend, sec, "keys", "generate", "--name", "Alice", "--email", "alice@example.org")
	assert.True(t, errors.HasCode(res.err, constants.ErrCodeInvalidRequest))
	backend.AssertNotCalled(t, "GenerateKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetExpiry_Never(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)
	backend.On("SetExpiry", mock.Anything, "work", testFpr, (*time.Time)(nil)).Return(lifecycle.Outcome{
		Operation:   lifecycle.OpSetExpiry,
		Fingerprint: testFpr,
		Phase:       lifecycle.PhaseSucceeded,
		Status:      lifecycle.PhaseSucceeded.String(),
	}, nil)

	res := execute(backend, &secrets{}, "keys", "set-expiry", string(testFpr), "--never")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, lifecycle.OpSetExpiry)

	res = execute(backend, &secrets{}, "keys", "set-expiry", string(testFpr))
	assert.True(t, errors.HasCode(res.err, constants.ErrCodeInvalidRequest))
}

func TestSyncStatus(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)
	backend.On("GetSyncStatus", mock.Anything, "work", testFpr).Return(models.SyncStatusUploadPending, nil)

	res := execute(backend, &secrets{}, "sync", "status", string(testFpr))
	require.NoError(t, res.err)
	assert.Equal(t, "publication pending\n", res.stdout)

	res = execute(backend, &secrets{}, "sync", "status", string(testFpr), "-o", "json")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"confirmed":false,"sync":true}`, res.stdout)
}

func TestKeyringList_MarksActive(t *testing.T) {
	backend := &mockBackend{}
	backend.On("GetActiveKeyring", mock.Anything).Return("work", nil)
	backend.On("ListKeyrings", mock.Anything).Return([]*models.Keyring{
		{ID: constants.MainKeyringID},
		{ID: "work", DefaultKey: string(testFpr)},
	}, nil)

	res := execute(backend, &secrets{}, "keyring", "list")
	require.NoError(t, res.err)
	assert.Regexp(t, `work\s+\*\s+`+string(testFpr), res.stdout)
}

func TestUnsupportedOutput(t *testing.T) {
	res := execute(&mockBackend{}, &secrets{}, "keys", "list", "-o", "yaml")
	assert.True(t, errors.HasCode(res.err, constants.ErrCodeInvalidRequest))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "unlock cancelled by user [user_cancelled]", describe(errors.ErrUserCancelled()))
}
