package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

// auditService implements the AuditService interface.
type auditService struct {
	auditRepo db.AuditRepository
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(auditRepo db.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// CreateAuditLog creates a new audit log entry.
func (s *auditService) CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error {
	if s.auditRepo == nil {
		return fmt.Errorf("AuditRepository not initialized in AuditService")
	}
	if err := s.auditRepo.Create(ctx, logEntry); err != nil {
		return fmt.Errorf("failed to create audit log via repository: %w", err)
	}
	return nil
}

// recordAudit writes an audit entry without failing the caller's operation.
func recordAudit(ctx context.Context, audit AuditService, logger *zap.Logger, entry models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("Failed to create audit log",
			zap.String("action", entry.Action),
			zap.String("targetID", entry.TargetID),
			zap.Error(err))
	}
}

// enqueue sends a notification without failing the caller's operation.
func enqueue(ctx context.Context, notifier Notifier, logger *zap.Logger, msg notify.Message) {
	if notifier == nil {
		return
	}
	if err := notifier.Enqueue(ctx, msg); err != nil {
		logger.Warn("Failed to enqueue notification", zap.String("type", msg.Type), zap.Error(err))
	}
}
