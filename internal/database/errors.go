package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// Constraint names from migrations/001_transport_core.sql
const (
	ConstraintPendingRequestPerUser   = "uq_transport_requests_user_pending"
	ConstraintSubscriptionRequest     = "transport_subscriptions_request_id_key"
	ConstraintReservationSubscription = "transport_seat_reservations_subscription_id_key"
)

// ErrPendingRequestExists is returned when the one-pending-request index fires
var ErrPendingRequestExists = errors.New("user already has a pending transport request")

// IsUniqueViolation reports whether err is a unique violation, optionally on a
// specific constraint. Works with both lib/pq and pgx errors.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode &&
			(constraint == "" || pqErr.Constraint == constraint)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode &&
			(constraint == "" || pgErr.ConstraintName == constraint)
	}

	return false
}
