package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `
	id, request_id, user_id, route_id, slot_id, plan_id, plan_type, selected_days, status,
	start_date, end_date, amount_expected, approved_by, approved_at, cancelled_at, cancelled_by,
	created_at, updated_at`

// SubscriptionRepository handles transport_subscriptions
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a subscription
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO transport_subscriptions (
			id, request_id, user_id, route_id, slot_id, plan_id, plan_type, selected_days, status,
			start_date, end_date, amount_expected, approved_by, approved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14, $14)
	`

	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		sub.ID,
		sub.RequestID,
		sub.UserID,
		sub.RouteID,
		sub.SlotID,
		sub.PlanID,
		sub.PlanType,
		sub.SelectedDays,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.AmountExpected,
		sub.ApprovedBy,
		sub.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetByID returns a subscription, or nil
func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM transport_subscriptions WHERE id = $1`, id)
}

// GetByIDForUpdate returns a subscription and locks its row
func (r *SubscriptionRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.get(ctx, `SELECT `+subscriptionColumns+` FROM transport_subscriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *SubscriptionRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &sub, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// UpdateStatus moves a subscription from one status to another. Returns false
// when the row is no longer in the from status.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.SubscriptionStatus, actorID *uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE transport_subscriptions
		SET status = $3,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $5::timestamptz ELSE cancelled_at END,
		    cancelled_by = CASE WHEN $3 = 'cancelled' THEN $4::uuid ELSE cancelled_by END,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`

	result, err := querier(ctx, r.db).ExecContext(ctx, query, id, from, to, actorID, at)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update subscription status: %w", err)
	}
	return rows > 0, nil
}

// ListOpenByUser returns the user's active and waitlisted subscriptions, active first
func (r *SubscriptionRepository) ListOpenByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM transport_subscriptions
		WHERE user_id = $1 AND status IN ('active', 'waitlisted')
		ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, end_date DESC
	`

	subs := []models.Subscription{}
	if err := sqlx.SelectContext(ctx, querier(ctx, r.db), &subs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list open subscriptions: %w", err)
	}
	return subs, nil
}

// ListDueForExpiry returns ids of open subscriptions whose end date is before today
func (r *SubscriptionRepository) ListDueForExpiry(ctx context.Context, today time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM transport_subscriptions
		WHERE status IN ('active', 'waitlisted') AND end_date < $1
		ORDER BY end_date
	`

	ids := []uuid.UUID{}
	if err := sqlx.SelectContext(ctx, querier(ctx, r.db), &ids, query, today); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions due for expiry: %w", err)
	}
	return ids, nil
}

// ListManifest returns the subscriptions holding an unreleased seat on a slot
func (r *SubscriptionRepository) ListManifest(ctx context.Context, slotID uuid.UUID) ([]models.ManifestEntry, error) {
	query := `
		SELECT s.id AS subscription_id, r.id AS reservation_id, s.user_id, s.status,
		       s.start_date, s.end_date, r.reserved_at
		FROM transport_seat_reservations r
		JOIN transport_subscriptions s ON s.id = r.subscription_id
		WHERE r.slot_id = $1 AND r.released_at IS NULL
		ORDER BY r.reserved_at
	`

	entries := []models.ManifestEntry{}
	if err := sqlx.SelectContext(ctx, querier(ctx, r.db), &entries, query, slotID); err != nil {
		return nil, fmt.Errorf("failed to list slot manifest: %w", err)
	}
	return entries, nil
}
