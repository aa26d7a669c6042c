package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyvault/internal/application/dto"
	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/infrastructure/notify"
	"github.com/turtacn/keyvault/internal/infrastructure/prompt"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

const (
	testKeyring = "work"
	testFpr     = models.Fingerprint("ABCDEF0123456789ABCDEF0123456789D4984F96")
)

// MockKeyService is a mock for KeyService and KeyringService.
type MockKeyService struct {
	mock.Mock
}

func (m *MockKeyService) ListKeys(ctx context.Context, keyringID string) ([]*models.KeyDetails, error) {
	args := m.Called(ctx, keyringID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.KeyDetails), args.Error(1)
}

func (m *MockKeyService) GetKeyDetails(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyDetails, error) {
	args := m.Called(ctx, keyringID, fpr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyDetails), args.Error(1)
}

func (m *MockKeyService) GetArmoredKeys(ctx context.Context, keyringID string, fprs []models.Fingerprint, export models.ArmoredExport) ([]models.ArmoredKey, error) {
	args := m.Called(ctx, keyringID, fprs, export)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ArmoredKey), args.Error(1)
}

func (m *MockKeyService) GenerateKey(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyDetails, error) {
	args := m.Called(ctx, keyringID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyDetails), args.Error(1)
}

func (m *MockKeyService) ImportKeys(ctx context.Context, keyringID string, armored string) ([]*models.KeyDetails, error) {
	args := m.Called(ctx, keyringID, armored)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.KeyDetails), args.Error(1)
}

func (m *MockKeyService) RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, userID)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user models.UserID) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, user)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, userID)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, expiry *time.Time) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, expiry)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, current, next []byte) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, string(current), string(next))
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) ValidatePassword(ctx context.Context, keyringID string, fpr models.Fingerprint, candidate []byte) (bool, error) {
	args := m.Called(ctx, keyringID, fpr, string(candidate))
	return args.Bool(0), args.Error(1)
}

func (m *MockKeyService) RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) (lifecycle.Outcome, error) {
	args := m.Called(ctx, keyringID, fpr, keyType)
	return args.Get(0).(lifecycle.Outcome), args.Error(1)
}

func (m *MockKeyService) GetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error) {
	args := m.Called(ctx, keyringID, fpr)
	return args.Get(0).(models.SyncStatus), args.Error(1)
}

func (m *MockKeyService) SetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint, sync bool) (*models.KeyServerResult, error) {
	args := m.Called(ctx, keyringID, fpr, sync)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyServerResult), args.Error(1)
}

func (m *MockKeyService) ListKeyrings(ctx context.Context) ([]*models.Keyring, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Keyring), args.Error(1)
}

func (m *MockKeyService) CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error) {
	args := m.Called(ctx, keyringID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Keyring), args.Error(1)
}

func (m *MockKeyService) DeleteKeyring(ctx context.Context, keyringID string) error {
	return m.Called(ctx, keyringID).Error(0)
}

func (m *MockKeyService) SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error {
	return m.Called(ctx, keyringID, fpr).Error(0)
}

func (m *MockKeyService) GetActiveKeyring(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockKeyService) SetActiveKeyring(ctx context.Context, keyringID string) error {
	return m.Called(ctx, keyringID).Error(0)
}

type testEnv struct {
	engine *gin.Engine
	svc    *MockKeyService
	broker *prompt.Broker
	hub    *notify.Hub
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNoopLogger()
	env := &testEnv{
		engine: gin.New(),
		svc:    new(MockKeyService),
		broker: prompt.NewBroker(log),
		hub:    notify.NewHub(nil, log),
	}
	keys := NewKeyHandler(env.svc, log)
	keyrings := NewKeyringHandler(env.svc, log)
	prompts := NewPromptHandler(env.broker, env.hub, log)

	env.engine.Use(RequestIDMiddleware(), MetricsMiddleware(NoopHTTPMetrics()))
	v1 := env.engine.Group("/api/v1")
	v1.GET("/keyrings", keyrings.ListKeyrings)
	v1.POST("/keyrings", keyrings.CreateKeyring)
	v1.DELETE("/keyrings/:keyring_id", keyrings.DeleteKeyring)
	v1.GET("/active-keyring", keyrings.GetActiveKeyring)
	v1.PUT("/active-keyring", keyrings.SetActiveKeyring)
	v1.GET("/keyrings/:keyring_id/keys", keys.ListKeys)
	v1.POST("/keyrings/:keyring_id/keys/generate", keys.GenerateKey)
	v1.GET("/keyrings/:keyring_id/keys/:fpr", keys.GetKey)
	v1.DELETE("/keyrings/:keyring_id/keys/:fpr", keys.RemoveKey)
	v1.GET("/keyrings/:keyring_id/keys/:fpr/armored", keys.ExportKey)
	v1.POST("/keyrings/:keyring_id/keys/:fpr/revoke", keys.RevokeKey)
	v1.POST("/keyrings/:keyring_id/keys/:fpr/users", keys.AddUser)
	v1.DELETE("/keyrings/:keyring_id/keys/:fpr/users/:user_id", keys.RemoveUser)
	v1.PUT("/keyrings/:keyring_id/keys/:fpr/password", keys.SetPassword)
	v1.POST("/keyrings/:keyring_id/keys/:fpr/password/validate", keys.ValidatePassword)
	v1.GET("/keyrings/:keyring_id/keys/:fpr/keyserver", keys.GetSyncStatus)
	v1.PUT("/keyrings/:keyring_id/keys/:fpr/keyserver", keys.SetSyncStatus)
	v1.GET("/prompts", prompts.ListPrompts)
	v1.POST("/prompts/:prompt_id/answer", prompts.AnswerPrompt)
	v1.POST("/prompts/:prompt_id/cancel", prompts.CancelPrompt)
	v1.GET("/events", prompts.Events)
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func keyPath(suffix string) string {
	return "/api/v1/keyrings/" + testKeyring + "/keys/" + string(testFpr) + suffix
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorDTO {
	t.Helper()
	var resp dto.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	return resp.Error
}

func TestKeyHandler_ListKeys(t *testing.T) {
	env := setupEngine(t)
	key := &models.KeyRecord{Fingerprint: testFpr, KeyringID: testKeyring}
	env.svc.On("ListKeys", mock.Anything, testKeyring).
		Return([]*models.KeyDetails{models.NewKeyDetails(key, testFpr, time.Now())}, nil)

	w := env.do(http.MethodGet, "/api/v1/keyrings/"+testKeyring+"/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderRequestID))

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, true, got[0]["default"])
	env.svc.AssertExpectations(t)
}

func TestKeyHandler_InvalidFingerprint(t *testing.T) {
	env := setupEngine(t)
	w := env.do(http.MethodGet, "/api/v1/keyrings/"+testKeyring+"/keys/not-a-fingerprint", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(constants.ErrCodeInvalidRequest), decodeError(t, w).Code)
}

func TestKeyHandler_GetKeyNotFound(t *testing.T) {
	env := setupEngine(t)
	env.svc.On("GetKeyDetails", mock.Anything, testKeyring, testFpr).
		Return(nil, errors.ErrKeyNotFound(string(testFpr)))

	// Lower-case input is normalized before lookup.
	w := env.do(http.MethodGet, "/api/v1/keyrings/"+testKeyring+"/keys/"+strings.ToLower(string(testFpr)), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(constants.ErrCodeNotFound), decodeError(t, w).Code)
}

func TestKeyHandler_RevokeCancelledIsOK(t *testing.T) {
	env := setupEngine(t)
	env.svc.On("RevokeKey", mock.Anything, testKeyring, testFpr).Return(lifecycle.Outcome{
		Operation:   lifecycle.OpRevokeKey,
		KeyringID:   testKeyring,
		Fingerprint: testFpr,
		Phase:       lifecycle.PhaseCancelledByUser,
		Status:      lifecycle.PhaseCancelledByUser.String(),
	}, nil)

	w := env.do(http.MethodPost, keyPath("/revoke"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "cancelled", got["status"])
}

func TestKeyHandler_AddUserValidation(t *testing.T) {
	env := setupEngine(t)
	w := env.do(http.MethodPost, keyPath("/users"), dto.AddUserRequest{
		User: models.UserID{Name: "Bob", Email: "not-an-email"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.svc.AssertNotCalled(t, "AddUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestKeyHandler_AddUserWrongPassword(t *testing.T) {
	env := setupEngine(t)
	user := models.UserID{Name: "Bob", Email: "bob@example.org"}
	env.svc.On("AddUser", mock.Anything, testKeyring, testFpr, user).
		Return(lifecycle.Outcome{}, errors.ErrInvalidCredential(string(testFpr)))

	w := env.do(http.MethodPost, keyPath("/users"), dto.AddUserRequest{User: user})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(constants.ErrCodeInvalidCredential), decodeError(t, w).Code)
}

func TestKeyHandler_RemoveUser(t *testing.T) {
	env := setupEngine(t)
	uid := "Bob <bob@example.org>"
	env.svc.On("RemoveUser", mock.Anything, testKeyring, testFpr, uid).
		Return(lifecycle.Outcome{}, errors.ErrInvariantViolation("cannot remove the only user id"))

	w := env.do(http.MethodDelete, keyPath("/users/Bob%20%3Cbob@example.org%3E"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env.svc.AssertExpectations(t)
}

func TestKeyHandler_RemoveKeyRequiresType(t *testing.T) {
	env := setupEngine(t)
	w := env.do(http.MethodDelete, keyPath(""), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.svc.On("RemoveKey", mock.Anything, testKeyring, testFpr, models.KeyTypePrivate).
		Return(lifecycle.Outcome{Status: "succeeded"}, nil)
	w = env.do(http.MethodDelete, keyPath("?type=private"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestKeyHandler_ExportKey(t *testing.T) {
	env := setupEngine(t)
	env.svc.On("GetArmoredKeys", mock.Anything, testKeyring, []models.Fingerprint{testFpr}, models.ExportPublic).
		Return([]models.ArmoredKey{{Fingerprint: testFpr, ArmoredPub: "-----BEGIN PGP PUBLIC KEY BLOCK-----"}}, nil)

	w := env.do(http.MethodGet, keyPath("/armored"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PGP PUBLIC KEY BLOCK")

	w = env.do(http.MethodGet, keyPath("/armored?type=secret"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeyHandler_GenerateKey(t *testing.T) {
	env := setupEngine(t)
	key := &models.KeyRecord{Fingerprint: testFpr, KeyringID: testKeyring}
	env.svc.On("GenerateKey", mock.Anything, testKeyring, mock.MatchedBy(func(p models.GenerateParams) bool {
		return len(p.Users) == 1 && string(p.Password) == "correct horse" && p.BitLength == 3072
	})).Return(models.NewKeyDetails(key, "", time.Now()), nil)

	w := env.do(http.MethodPost, "/api/v1/keyrings/"+testKeyring+"/keys/generate", dto.GenerateKeyRequest{
		Users:     []models.UserID{{Name: "Alice", Email: "alice@example.org"}},
		Password:  "correct horse",
		BitLength: 3072,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	env.svc.AssertExpectations(t)

	w = env.do(http.MethodPost, "/api/v1/keyrings/"+testKeyring+"/keys/generate", dto.GenerateKeyRequest{
		Users: []models.UserID{{Name: "Alice", Email: "alice@example.org"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeyHandler_Passwords(t *testing.T) {
	env := setupEngine(t)
	env.svc.On("ValidatePassword", mock.Anything, testKeyring, testFpr, "guess").Return(false, nil)
	env.svc.On("SetPassword", mock.Anything, testKeyring, testFpr, "old", "new").
		Return(lifecycle.Outcome{Operation: lifecycle.OpSetPassword, Status: "succeeded"}, nil)

	w := env.do(http.MethodPost, keyPath("/password/validate"), dto.ValidatePasswordRequest{Password: "guess"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())

	w = env.do(http.MethodPut, keyPath("/password"), dto.SetPasswordRequest{CurrentPassword: "old", NewPassword: "new"})
	assert.Equal(t, http.StatusOK, w.Code)
	env.svc.AssertExpectations(t)
}

func TestKeyHandler_SyncStatus(t *testing.T) {
	env := setupEngine(t)
	env.svc.On("GetSyncStatus", mock.Anything, testKeyring, testFpr).Return(models.SyncStatusUploadPending, nil)
	env.svc.On("SetSyncStatus", mock.Anything, testKeyring, testFpr, false).
		Return(nil, errors.ErrRemoteUnavailable("remove", assert.AnError))

	w := env.do(http.MethodGet, keyPath("/keyserver"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"confirmed":false,"sync":true}`, w.Body.String())

	off := false
	w = env.do(http.MethodPut, keyPath("/keyserver"), dto.SetSyncStatusRequest{Sync: &off})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(constants.ErrCodeRemoteUnavailable), decodeError(t, w).Code)

	w = env.do(http.MethodPut, keyPath("/keyserver"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeyringHandler(t *testing.T) {
	env := setupEngine(t)
	env.svc.On("DeleteKeyring", mock.Anything, constants.MainKeyringID).
		Return(errors.ErrInvariantViolation("the main keyring cannot be deleted"))
	env.svc.On("DeleteKeyring", mock.Anything, testKeyring).Return(nil)
	env.svc.On("CreateKeyring", mock.Anything, testKeyring).Return(&models.Keyring{ID: testKeyring}, nil)
	env.svc.On("GetActiveKeyring", mock.Anything).Return(constants.MainKeyringID, nil)
	env.svc.On("SetActiveKeyring", mock.Anything, testKeyring).Return(nil)

	w := env.do(http.MethodDelete, "/api/v1/keyrings/localhost%7C%23%7Cmvelo", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(constants.ErrCodeInvariantViolation), decodeError(t, w).Code)

	w = env.do(http.MethodDelete, "/api/v1/keyrings/"+testKeyring, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodPost, "/api/v1/keyrings", dto.CreateKeyringRequest{ID: testKeyring})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodGet, "/api/v1/active-keyring", nil)
	assert.JSONEq(t, `{"keyring_id":"localhost|#|mvelo"}`, w.Body.String())

	w = env.do(http.MethodPut, "/api/v1/active-keyring", dto.SetActiveKeyringRequest{KeyringID: testKeyring})
	assert.Equal(t, http.StatusOK, w.Code)
	env.svc.AssertExpectations(t)
}

func TestPromptHandler_AnswerAndCancel(t *testing.T) {
	env := setupEngine(t)

	w := env.do(http.MethodPost, "/api/v1/prompts/missing/answer", dto.AnswerPromptRequest{Password: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	reply := make(chan []byte, 1)
	go func() {
		pw, _ := env.broker.PromptPassword(context.Background(), models.PromptRequest{ID: "p1", Fingerprint: testFpr, Attempt: 1})
		reply <- pw
	}()
	require.Eventually(t, func() bool { return len(env.broker.Pending()) == 1 }, time.Second, time.Millisecond)

	w = env.do(http.MethodGet, "/api/v1/prompts", nil)
	assert.Contains(t, w.Body.String(), `"id":"p1"`)

	w = env.do(http.MethodPost, "/api/v1/prompts/p1/answer", dto.AnswerPromptRequest{Password: "s3cret"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []byte("s3cret"), <-reply)

	w = env.do(http.MethodPost, "/api/v1/prompts/p1/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPromptHandler_EventStream(t *testing.T) {
	env := setupEngine(t)
	srv := httptest.NewServer(env.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?keyring_id="+testKeyring, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, time.Millisecond)
	env.hub.NotifyKeysChanged(context.Background(), models.KeysChangedEvent{
		EventID:   "evt-1",
		KeyringID: testKeyring,
		Operation: lifecycle.OpImportKeys,
	})

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
			break
		}
	}
	var got models.KeysChangedEvent
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "evt-1", got.EventID)

	cancel()
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
