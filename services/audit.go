package services

import (
	"context"
	"fmt"
	"time"

	"carbonledger/db"
	"carbonledger/models"

	"go.uber.org/zap"
)

// Audit actions.
const (
	ActionFieldDataVerify = "FIELD_DATA_VERIFY"
	ActionFieldDataUpdate = "FIELD_DATA_UPDATE"
	ActionFieldDataDelete = "FIELD_DATA_DELETE"
	ActionUserRoleUpdate  = "USER_ROLE_UPDATE"
	ActionUserStatusFlip  = "USER_STATUS_UPDATE"
)

// AuditLogger records privileged actions. Write failures are logged and
// never fail the action being audited.
type AuditLogger struct {
	store  db.AuditStore
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditLogger(store db.AuditStore, logger *zap.Logger) *AuditLogger {
	return &AuditLogger{store: store, logger: logger, now: time.Now}
}

func (a *AuditLogger) Record(ctx context.Context, userID, action, details string) {
	now := a.now()
	entry := &models.AuditLog{
		LogID:     fmt.Sprintf("log-%d", now.UnixNano()),
		Timestamp: now.UTC().Format(time.RFC3339),
		UserID:    userID,
		Action:    action,
		Details:   details,
	}
	if err := a.store.CreateAuditLog(ctx, entry); err != nil {
		a.logger.Error("failed to write audit log",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	a.logger.Info("audit",
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.String("details", details),
	)
}
