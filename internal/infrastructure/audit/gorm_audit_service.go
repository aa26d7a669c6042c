// Package audit keeps the audit trail of key lifecycle operations in the
// keyring database, optionally signing each row with an HMAC.
package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/pkg/errors"
)

// MaxListLimit caps List.
const MaxListLimit = 500

// GormAuditService provides a GORM-backed implementation of the AuditService.
type GormAuditService struct {
	db     *gorm.DB
	secret string
}

var _ service.AuditService = (*GormAuditService)(nil)

// NewGormAuditService creates the service. An empty secret stores unsigned events.
func NewGormAuditService(db *gorm.DB, secret string) *GormAuditService {
	return &GormAuditService{db: db, secret: secret}
}

// LogEvent signs and saves an AuditEvent.
func (s *GormAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	event.OccurredAt = event.OccurredAt.UTC().Round(0)
	if s.secret != "" {
		sig, err := SignAuditEvent(event, s.secret)
		if err != nil {
			return errors.ErrInternal("sign audit event").WithCause(err)
		}
		event.Signature = sig
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return errors.ErrStorageFailure("log audit event", err)
	}
	return nil
}

// List returns the newest events of keyringID first, at most limit, only
// those that occurred before `before` when it is non-zero.
func (s *GormAuditService) List(ctx context.Context, keyringID string, before time.Time, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := s.db.WithContext(ctx).Where("keyring_id = ?", keyringID)
	if !before.IsZero() {
		q = q.Where("occurred_at < ?", before.UTC())
	}
	var events []models.AuditEvent
	if err := q.Order("occurred_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, errors.ErrStorageFailure("list audit events", err)
	}
	return events, nil
}

// Verify reports whether event was signed with this service's secret.
func (s *GormAuditService) Verify(event models.AuditEvent) bool {
	if s.secret == "" {
		return false
	}
	return VerifyAuditEvent(event, s.secret)
}
