package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const slotColumns = `id, route_id, day_of_week, direction, time, capacity, is_active, created_at, updated_at`

// ScheduleSlotRepository handles bus_schedule_slots
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository creates a new ScheduleSlotRepository
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

// GetByID returns a slot, or nil
func (r *ScheduleSlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduleSlot, error) {
	return r.get(ctx, `SELECT `+slotColumns+` FROM bus_schedule_slots WHERE id = $1`, id)
}

// GetByIDForUpdate returns a slot and holds its row lock until the
// transaction ends. Every seat claim on the slot queues behind this lock.
func (r *ScheduleSlotRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ScheduleSlot, error) {
	return r.get(ctx, `SELECT `+slotColumns+` FROM bus_schedule_slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *ScheduleSlotRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.ScheduleSlot, error) {
	var slot models.ScheduleSlot
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &slot, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule slot: %w", err)
	}
	return &slot, nil
}

// ListAvailabilityByRoute returns the active slots of a route with their
// unreleased reservation counts
func (r *ScheduleSlotRepository) ListAvailabilityByRoute(ctx context.Context, routeID uuid.UUID) ([]models.SlotAvailability, error) {
	query := `
		SELECT s.id, s.route_id, s.day_of_week, s.direction, s.time, s.capacity, s.is_active,
		       s.created_at, s.updated_at,
		       COUNT(r.id) AS active_reservations
		FROM bus_schedule_slots s
		LEFT JOIN transport_seat_reservations r ON r.slot_id = s.id AND r.released_at IS NULL
		WHERE s.route_id = $1 AND s.is_active = true
		GROUP BY s.id
		ORDER BY s.day_of_week, s.time
	`

	slots := []models.SlotAvailability{}
	if err := sqlx.SelectContext(ctx, querier(ctx, r.db), &slots, query, routeID); err != nil {
		return nil, fmt.Errorf("failed to list slot availability: %w", err)
	}

	for i := range slots {
		remaining := slots[i].Capacity - slots[i].ActiveReservations
		if remaining < 0 {
			remaining = 0
		}
		slots[i].CapacityRemaining = remaining
	}

	return slots, nil
}
