package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotColumnNames = []string{"id", "route_id", "day_of_week", "direction", "time", "capacity", "is_active", "created_at", "updated_at"}

func TestScheduleSlotRepository_GetByIDForUpdate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewScheduleSlotRepository(db)
	slotID, routeID := uuid.New(), uuid.New()
	now := time.Now()

	t.Run("Locks slot row", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM bus_schedule_slots WHERE id = $1 FOR UPDATE`)).
			WithArgs(slotID).
			WillReturnRows(sqlmock.NewRows(slotColumnNames).
				AddRow(slotID.String(), routeID.String(), 6, "to_campus", "07:30:00", 40, true, now, now))

		slot, err := repo.GetByIDForUpdate(context.Background(), slotID)
		require.NoError(t, err)
		require.NotNil(t, slot)
		assert.Equal(t, 40, slot.Capacity)
		assert.Equal(t, models.WeekdaySaturday, slot.DayName())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing slot", func(t *testing.T) {
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(slotID).
			WillReturnRows(sqlmock.NewRows(slotColumnNames))

		slot, err := repo.GetByIDForUpdate(context.Background(), slotID)
		require.NoError(t, err)
		assert.Nil(t, slot)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestScheduleSlotRepository_ListAvailabilityByRoute(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewScheduleSlotRepository(db)
	routeID := uuid.New()
	now := time.Now()

	columns := append(append([]string{}, slotColumnNames...), "active_reservations")
	mock.ExpectQuery(`LEFT JOIN transport_seat_reservations r ON r.slot_id = s.id AND r.released_at IS NULL`).
		WithArgs(routeID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.New().String(), routeID.String(), 0, "to_campus", "07:30:00", 10, true, now, now, 4).
			AddRow(uuid.New().String(), routeID.String(), 0, "from_campus", "15:00:00", 2, true, now, now, 3))

	slots, err := repo.ListAvailabilityByRoute(context.Background(), routeID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 6, slots[0].CapacityRemaining)
	assert.Equal(t, 0, slots[1].CapacityRemaining, "over-subscribed slots clamp to zero")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatReservationRepository(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSeatReservationRepository(db)
	ctx := context.Background()
	slotID, subID, resID := uuid.New(), uuid.New(), uuid.New()

	t.Run("Count active", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE slot_id = $1 AND released_at IS NULL`)).
			WithArgs(slotID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := repo.CountActive(ctx, slotID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Create", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO transport_seat_reservations`).
			WithArgs(resID, subID, slotID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, &models.SeatReservation{ID: resID, SubscriptionID: subID, SlotID: slotID, ReservedAt: time.Now()})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Get active by subscription", func(t *testing.T) {
		mock.ExpectQuery(`WHERE subscription_id = \$1 AND released_at IS NULL`).
			WithArgs(subID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "subscription_id", "slot_id", "reserved_at", "released_at"}).
				AddRow(resID.String(), subID.String(), slotID.String(), time.Now(), nil))

		res, err := repo.GetActiveBySubscription(ctx, subID)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.True(t, res.IsActive())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`SET released_at = $2 WHERE id = $1 AND released_at IS NULL`)).
			WithArgs(resID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`SET released_at = $2 WHERE id = $1 AND released_at IS NULL`)).
			WithArgs(resID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		released, err := repo.Release(ctx, resID, time.Now())
		require.NoError(t, err)
		assert.True(t, released)

		released, err = repo.Release(ctx, resID, time.Now())
		require.NoError(t, err)
		assert.False(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
