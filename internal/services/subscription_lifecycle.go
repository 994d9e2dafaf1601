package services

import (
	"context"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CancelCommand cancels a subscription on behalf of its owner or an admin
type CancelCommand struct {
	SubscriptionID uuid.UUID
	ActorID        uuid.UUID
	AsAdmin        bool
	Reason         string
}

// CancelSubscription moves an open subscription to cancelled and frees its seat
// in the same transaction
func (w *RequestWorkflow) CancelSubscription(ctx context.Context, cmd CancelCommand) (*models.Subscription, error) {
	var (
		cancelled *models.Subscription
		released  *models.SeatReservation
	)

	err := w.tx.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := w.subscriptions.GetByIDForUpdate(ctx, cmd.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil || (!cmd.AsAdmin && sub.UserID != cmd.ActorID) {
			return ErrNotFound.WithMessage("subscription not found")
		}
		if !sub.Status.CanTransitionTo(models.SubscriptionStatusCancelled) {
			return ErrInvalidTransition.WithDetails(map[string]interface{}{
				"status": sub.Status,
				"target": models.SubscriptionStatusCancelled,
			})
		}

		now := w.clock.Now()
		updated, err := w.subscriptions.UpdateStatus(ctx, sub.ID, sub.Status, models.SubscriptionStatusCancelled, &cmd.ActorID, now)
		if err != nil {
			return err
		}
		if !updated {
			return ErrInvalidTransition.WithDetails(map[string]interface{}{"status": sub.Status})
		}

		released, err = w.ledger.ReleaseForSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}

		sub.Status = models.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		sub.CancelledBy = &cmd.ActorID
		sub.UpdatedAt = now
		cancelled = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{"as_admin": cmd.AsAdmin}
	if cmd.Reason != "" {
		details["reason"] = cmd.Reason
	}
	if released != nil {
		details["reservation_id"] = released.ID
		details["slot_id"] = released.SlotID
	}

	w.logger.WithFields(logrus.Fields{
		"subscription_id": cancelled.ID,
		"actor_id":        cmd.ActorID,
		"as_admin":        cmd.AsAdmin,
	}).Info("Transport subscription cancelled")

	w.safeNotify(ctx, cancelled.UserID, models.NotificationSubscriptionCancelled,
		"Transport subscription cancelled",
		"Your transport subscription was cancelled.",
		subscriptionLink)
	w.safeAudit(ctx, &cmd.ActorID, models.AuditActionSubscriptionCancelled, models.AuditEntitySubscription, cancelled.ID, details)

	return cancelled, nil
}

// ExpiryResult summarizes one expiry sweep
type ExpiryResult struct {
	Expired  int           `json:"expired"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// ExpireDue expires every open subscription whose end date has passed. Each
// subscription is handled in its own transaction; failures are counted and the
// sweep continues.
func (w *RequestWorkflow) ExpireDue(ctx context.Context) (ExpiryResult, error) {
	started := time.Now()
	today := dateOf(w.clock.Now())

	ids, err := w.subscriptions.ListDueForExpiry(ctx, today)
	if err != nil {
		return ExpiryResult{}, err
	}

	var result ExpiryResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		expired, err := w.expireOne(ctx, id)
		if err != nil {
			result.Failed++
			w.logger.WithFields(logrus.Fields{"subscription_id": id, "error": err}).Error("Failed to expire subscription")
			continue
		}
		if expired {
			result.Expired++
		}
	}

	result.Duration = time.Since(started)
	w.logger.WithFields(logrus.Fields{
		"expired":  result.Expired,
		"failed":   result.Failed,
		"duration": result.Duration.String(),
	}).Info("Subscription expiry sweep finished")

	return result, nil
}

func (w *RequestWorkflow) expireOne(ctx context.Context, id uuid.UUID) (bool, error) {
	var (
		expired  bool
		released *models.SeatReservation
	)

	err := w.tx.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := w.subscriptions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub == nil || !sub.Status.CanTransitionTo(models.SubscriptionStatusExpired) {
			return nil
		}

		expired, err = w.subscriptions.UpdateStatus(ctx, id, sub.Status, models.SubscriptionStatusExpired, nil, w.clock.Now())
		if err != nil || !expired {
			return err
		}

		released, err = w.ledger.ReleaseForSubscription(ctx, id)
		return err
	})
	if err != nil || !expired {
		return false, err
	}

	details := map[string]interface{}{}
	if released != nil {
		details["reservation_id"] = released.ID
		details["slot_id"] = released.SlotID
	}
	w.safeAudit(ctx, nil, models.AuditActionSubscriptionExpired, models.AuditEntitySubscription, id, details)
	return true, nil
}
