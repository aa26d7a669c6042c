package service

import (
	"context"
	"time"

	"github.com/turtacn/keyvault/internal/domain/models"
)

//go:generate mockery --name Unlocker --output mocks --outpkg mocks
// Unlocker decrypts a key's private material with a password.
// Unlocker 使用密码解密密钥的私钥材料。
type Unlocker interface {
	// AttemptUnlock returns a decrypted handle, or errors.ErrInvalidCredential when the password is wrong.
	// AttemptUnlock 返回解密后的句柄；密码错误时返回 errors.ErrInvalidCredential。
	AttemptUnlock(ctx context.Context, key *models.KeyRecord, password []byte) (models.UnlockedKey, error)
}

//go:generate mockery --name KeyInspector --output mocks --outpkg mocks
// KeyInspector reads facts out of stored key material without unlocking it.
// KeyInspector 在不解锁的情况下读取已存储密钥材料中的信息。
type KeyInspector interface {
	// ArmorPublic returns the ASCII armored transferable public key.
	// ArmorPublic 返回 ASCII 封装的公钥。
	ArmorPublic(key *models.KeyRecord) (string, error)

	// PrimaryUserEmail returns the email of the primary user id.
	// PrimaryUserEmail 返回主用户 ID 的电子邮件地址。
	PrimaryUserEmail(key *models.KeyRecord) (string, error)
}

//go:generate mockery --name KeyEditor --output mocks --outpkg mocks
// KeyEditor produces new key material from an unlocked key. The handle passed
// in is never modified; edits work on a private copy.
// KeyEditor 基于已解锁的密钥生成新的密钥材料。传入的句柄不会被修改。
type KeyEditor interface {
	AddUser(ctx context.Context, key models.UnlockedKey, user models.UserID) (*models.KeyMaterial, error)
	SetExpiry(ctx context.Context, key models.UnlockedKey, expiry *time.Time) (*models.KeyMaterial, error)
	ChangePassword(ctx context.Context, key models.UnlockedKey, newPassword []byte) (*models.KeyMaterial, error)

	// RevokeKey signs a key revocation into the material.
	// RevokeKey 在密钥材料中签署密钥吊销。
	RevokeKey(ctx context.Context, key models.UnlockedKey) (*models.KeyMaterial, error)

	// RevokeUser signs a certification revocation for userID.
	// RevokeUser 为 userID 签署认证吊销。
	RevokeUser(ctx context.Context, key models.UnlockedKey, userID string) (*models.KeyMaterial, error)

	// MergeKeys folds incoming into the stored record with the same fingerprint.
	// Stored private material is kept.
	// MergeKeys 将导入的记录合并到同指纹的已存记录中，保留已存私钥。
	MergeKeys(existing, incoming *models.KeyRecord) (*models.KeyRecord, error)

	// StripUser removes a user id from public material; no unlock needed.
	// StripUser 从公钥材料中移除用户 ID，无需解锁。
	StripUser(armoredPublic string, userID string) (string, error)

	// Generate creates a new key pair protected by params.Password.
	// Generate 创建一个由 params.Password 保护的新密钥对。
	Generate(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyRecord, error)

	// Import parses armored keys into records for keyringID.
	// Import 将 ASCII 封装的密钥解析为 keyringID 下的记录。
	Import(ctx context.Context, keyringID string, armored string) ([]*models.KeyRecord, error)
}

// KeyCrypto is the full OpenPGP capability set used by the lifecycle controller.
// KeyCrypto 是生命周期控制器使用的完整 OpenPGP 能力集合。
type KeyCrypto interface {
	Unlocker
	KeyInspector
	KeyEditor
}

//go:generate mockery --name KeyServer --output mocks --outpkg mocks
// KeyServer is the remote public key directory.
// KeyServer 是远程公钥目录服务。
type KeyServer interface {
	// Upload publishes an armored public key.
	Upload(ctx context.Context, armoredPublic string) error

	// Remove requests removal of the key identified by identity (email or key id).
	Remove(ctx context.Context, identity string) error

	// Exists reports whether the server currently serves the key.
	Exists(ctx context.Context, fpr models.Fingerprint) (bool, error)
}

//go:generate mockery --name PasswordPrompter --output mocks --outpkg mocks
// PasswordPrompter asks the user for a key password.
// PasswordPrompter 向用户请求密钥密码。
type PasswordPrompter interface {
	// PromptPassword blocks until the user answers. A dismissed prompt returns errors.ErrCancelled.
	// PromptPassword 阻塞直到用户应答；用户取消时返回 errors.ErrCancelled。
	PromptPassword(ctx context.Context, req models.PromptRequest) ([]byte, error)
}

//go:generate mockery --name ChangeNotifier --output mocks --outpkg mocks
// ChangeNotifier tells live observers to re-fetch keyring state.
// ChangeNotifier 通知在线的观察者重新获取密钥环状态。
type ChangeNotifier interface {
	// NotifyKeysChanged is fire-and-forget.
	NotifyKeysChanged(ctx context.Context, event models.KeysChangedEvent)
}

// AuditService stores the audit trail of key lifecycle operations.
// AuditService 保存密钥生命周期操作的审计记录。
type AuditService interface {
	LogEvent(ctx context.Context, event models.AuditEvent) error
}
