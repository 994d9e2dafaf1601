package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestColumnNames = []string{
	"id", "user_id", "route_id", "slot_id", "plan_id", "plan_type", "selected_days", "status", "payment_status",
	"amount_expected", "amount_paid", "payment_method_id", "paid_from_number", "paid_at", "proof_path",
	"flag_reason", "verified_by", "verified_at", "rejection_reason", "processed_by", "processed_at",
	"pricing_snapshot", "created_at", "updated_at",
}

func newRequestRow(id, userID, routeID uuid.UUID, status, paymentStatus string) []driver.Value {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return []driver.Value{
		id.String(), userID.String(), routeID.String(), nil, nil, "monthly", "{saturday,monday,wednesday}", status, paymentStatus,
		"540.00", "540.00", nil, nil, nil, "proofs/a.png",
		nil, nil, nil, nil, nil, nil,
		[]byte(`{"final_amount":"540","days_count":3,"weeks":4}`), now, now,
	}
}

func TestSubscriptionRequestRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSubscriptionRequestRepository(db)

	req := &models.SubscriptionRequest{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		RouteID:        uuid.New(),
		PlanType:       models.PlanTypeMonthly,
		SelectedDays:   models.WeekdayList{models.WeekdaySaturday},
		Status:         models.RequestStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		AmountExpected: decimal.RequireFromString("540.00"),
		AmountPaid:     decimal.RequireFromString("540.00"),
		ProofPath:      "proofs/a.png",
		CreatedAt:      time.Now(),
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO transport_subscription_requests`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), req))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Pending index violation", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO transport_subscription_requests`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: ConstraintPendingRequestPerUser})

		err := repo.Create(context.Background(), req)
		assert.ErrorIs(t, err, ErrPendingRequestExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO transport_subscription_requests`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(context.Background(), req)
		assert.ErrorContains(t, err, "failed to create subscription request")
		assert.NotErrorIs(t, err, ErrPendingRequestExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSubscriptionRequestRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSubscriptionRequestRepository(db)

	t.Run("Found", func(t *testing.T) {
		id, userID, routeID := uuid.New(), uuid.New(), uuid.New()
		mock.ExpectQuery(`FROM transport_subscription_requests WHERE id = \$1$`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(requestColumnNames).AddRow(newRequestRow(id, userID, routeID, "pending", "verified")...))

		req, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, req)
		assert.Equal(t, userID, req.UserID)
		assert.Equal(t, models.PaymentStatusVerified, req.PaymentStatus)
		assert.Equal(t, models.WeekdayList{models.WeekdaySaturday, models.WeekdayMonday, models.WeekdayWednesday}, req.SelectedDays)
		assert.True(t, decimal.RequireFromString("540").Equal(req.AmountExpected))
		assert.Equal(t, 3, req.PricingSnapshot.DaysCount)
		assert.Nil(t, req.SlotID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`FROM transport_subscription_requests WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(requestColumnNames))

		req, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, req)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("For update locks the row", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`WHERE id = \$1 FOR UPDATE`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(requestColumnNames).AddRow(newRequestRow(id, uuid.New(), uuid.New(), "pending", "pending")...))

		req, err := repo.GetByIDForUpdate(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, req)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSubscriptionRequestRepository_ConditionalUpdates(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSubscriptionRequestRepository(db)
	ctx := context.Background()
	id, adminID := uuid.New(), uuid.New()
	now := time.Now()

	t.Run("Verify payment matched", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = 'pending' AND payment_status IN ('pending', 'flagged')`)).
			WithArgs(id, adminID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkPaymentVerified(ctx, id, adminID, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Verify payment no row", func(t *testing.T) {
		mock.ExpectExec(`SET payment_status = 'verified'`).
			WithArgs(id, adminID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.MarkPaymentVerified(ctx, id, adminID, now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Flag payment", func(t *testing.T) {
		mock.ExpectExec(`SET payment_status = 'flagged', flag_reason = \$2, verified_by = NULL, verified_at = NULL, updated_at = \$3\s+WHERE id = \$1 AND status = 'pending'\s*$`).
			WithArgs(id, "blurry screenshot", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkPaymentFlagged(ctx, id, "blurry screenshot", now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Approve requires verified payment", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = 'pending' AND payment_status = 'verified'`)).
			WithArgs(id, adminID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkApproved(ctx, id, adminID, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reject", func(t *testing.T) {
		mock.ExpectExec(`SET status = 'rejected'`).
			WithArgs(id, adminID, "route is full", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.MarkRejected(ctx, id, adminID, "route is full", now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Replace proof", func(t *testing.T) {
		userID := uuid.New()
		mock.ExpectExec(`SET proof_path = \$3, payment_status = 'pending'`).
			WithArgs(id, userID, "proofs/b.png", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.ReplaceProof(ctx, id, userID, "proofs/b.png", now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Exec error", func(t *testing.T) {
		mock.ExpectExec(`SET status = 'approved'`).
			WillReturnError(fmt.Errorf("connection reset"))

		_, err := repo.MarkApproved(ctx, id, adminID, now)
		assert.ErrorContains(t, err, "failed to approve request")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSubscriptionRequestRepository_BulkReject(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSubscriptionRequestRepository(db)
	adminID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	userA, userC := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = ANY($1::uuid[]) AND status = 'pending'`)).
		WithArgs(models.NewUUIDArray([]uuid.UUID{a, b, c}), adminID, "invalid documents", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).
			AddRow(a.String(), userA.String()).
			AddRow(c.String(), userC.String()))

	processed, err := repo.BulkReject(context.Background(), []uuid.UUID{a, b, c}, adminID, "invalid documents", time.Now())
	require.NoError(t, err)
	require.Len(t, processed, 2)
	assert.Equal(t, a, processed[0].ID)
	assert.Equal(t, userC, processed[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())

	t.Run("Empty ids skip the database", func(t *testing.T) {
		processed, err := repo.BulkReject(context.Background(), nil, adminID, "invalid documents", time.Now())
		require.NoError(t, err)
		assert.Empty(t, processed)
	})
}

func TestSubscriptionRequestRepository_List(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSubscriptionRequestRepository(db)

	status := models.RequestStatusPending
	routeID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM transport_subscription_requests WHERE status = $1 AND route_id = $2`)).
		WithArgs(status, routeID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $3 OFFSET $4`)).
		WithArgs(status, routeID, 20, 0).
		WillReturnRows(sqlmock.NewRows(requestColumnNames).AddRow(newRequestRow(id, uuid.New(), routeID, "pending", "pending")...))

	requests, total, err := repo.List(context.Background(), models.RequestFilter{
		Status:  &status,
		RouteID: &routeID,
		Limit:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, requests, 1)
	assert.Equal(t, id, requests[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
