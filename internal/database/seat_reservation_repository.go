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

// SeatReservationRepository handles transport_seat_reservations.
// Rows are never deleted; releasing sets released_at.
type SeatReservationRepository struct {
	db *sqlx.DB
}

// NewSeatReservationRepository creates a new SeatReservationRepository
func NewSeatReservationRepository(db *sqlx.DB) *SeatReservationRepository {
	return &SeatReservationRepository{db: db}
}

// CountActive counts unreleased reservations on a slot
func (r *SeatReservationRepository) CountActive(ctx context.Context, slotID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM transport_seat_reservations WHERE slot_id = $1 AND released_at IS NULL`

	var count int
	if err := sqlx.GetContext(ctx, querier(ctx, r.db), &count, query, slotID); err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return count, nil
}

// Create inserts a reservation
func (r *SeatReservationRepository) Create(ctx context.Context, reservation *models.SeatReservation) error {
	query := `
		INSERT INTO transport_seat_reservations (id, subscription_id, slot_id, reserved_at, released_at)
		VALUES ($1, $2, $3, $4, NULL)
	`

	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		reservation.ID,
		reservation.SubscriptionID,
		reservation.SlotID,
		reservation.ReservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create seat reservation: %w", err)
	}
	return nil
}

// GetActiveBySubscription returns the unreleased reservation of a subscription, or nil
func (r *SeatReservationRepository) GetActiveBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.SeatReservation, error) {
	query := `
		SELECT id, subscription_id, slot_id, reserved_at, released_at
		FROM transport_seat_reservations
		WHERE subscription_id = $1 AND released_at IS NULL
	`

	var reservation models.SeatReservation
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &reservation, query, subscriptionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat reservation: %w", err)
	}
	return &reservation, nil
}

// Release marks a reservation released. Returns false if it was already released
// or does not exist.
func (r *SeatReservationRepository) Release(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE transport_seat_reservations SET released_at = $2 WHERE id = $1 AND released_at IS NULL`

	result, err := querier(ctx, r.db).ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to release seat reservation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to release seat reservation: %w", err)
	}
	return rows > 0, nil
}
