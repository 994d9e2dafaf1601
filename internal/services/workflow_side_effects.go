package services

import (
	"context"
	"fmt"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// notifications and audit entries are recorded after the transaction commits;
// their failures are logged and never returned

func (w *RequestWorkflow) safeNotify(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, title, message, link string) {
	if w.notifier == nil {
		return
	}
	err := w.notifier.Notify(ctx, models.Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: w.clock.Now(),
	})
	if err != nil {
		w.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"kind":    kind,
			"error":   err,
		}).Warn("Failed to send transport notification")
	}
}

func (w *RequestWorkflow) safeAudit(ctx context.Context, actorID *uuid.UUID, action, entityType string, entityID uuid.UUID, details map[string]interface{}) {
	if w.audit == nil {
		return
	}
	err := w.audit.Record(ctx, AuditEvent{
		UserID:     actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		Details:    details,
	})
	if err != nil {
		w.logger.WithFields(logrus.Fields{
			"action":    action,
			"entity_id": entityID,
			"error":     err,
		}).Error("Failed to record audit event")
	}
}

func (w *RequestWorkflow) safeDeleteProof(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if _, err := w.proofs.Delete(ctx, path); err != nil {
		w.logger.WithFields(logrus.Fields{
			"proof_path": path,
			"error":      err,
		}).Warn("Failed to delete payment proof")
	}
}

func requestLink(id uuid.UUID) string {
	return fmt.Sprintf("/transport/requests/%s", id)
}

const subscriptionLink = "/transport/subscription"
