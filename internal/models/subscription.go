package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus is the lifecycle status of an approved subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusWaitlisted SubscriptionStatus = "waitlisted"
	SubscriptionStatusExpired    SubscriptionStatus = "expired"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
)

var subscriptionTransitions = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	SubscriptionStatusActive: {
		SubscriptionStatusExpired:   true,
		SubscriptionStatusCancelled: true,
	},
	SubscriptionStatusWaitlisted: {
		SubscriptionStatusActive:    true,
		SubscriptionStatusExpired:   true,
		SubscriptionStatusCancelled: true,
	},
}

// CanTransitionTo reports whether the subscription may move to next
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	return subscriptionTransitions[s][next]
}

// IsOpen reports whether the subscription still blocks a new request
func (s SubscriptionStatus) IsOpen() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusWaitlisted
}

// OpenSubscriptionStatuses are the statuses that count as a current subscription
var OpenSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusWaitlisted,
}

// Subscription is created when a request is approved
type Subscription struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	RequestID      uuid.UUID          `json:"request_id" db:"request_id"`
	UserID         uuid.UUID          `json:"user_id" db:"user_id"`
	RouteID        uuid.UUID          `json:"route_id" db:"route_id"`
	SlotID         *uuid.UUID         `json:"slot_id,omitempty" db:"slot_id"`
	PlanID         *uuid.UUID         `json:"plan_id,omitempty" db:"plan_id"`
	PlanType       PlanType           `json:"plan_type" db:"plan_type"`
	SelectedDays   WeekdayList        `json:"selected_days,omitempty" db:"selected_days"`
	Status         SubscriptionStatus `json:"status" db:"status"`
	StartDate      time.Time          `json:"start_date" db:"start_date"`
	EndDate        time.Time          `json:"end_date" db:"end_date"`
	AmountExpected decimal.Decimal    `json:"amount_expected" db:"amount_expected"`
	ApprovedBy     uuid.UUID          `json:"approved_by" db:"approved_by"`
	ApprovedAt     time.Time          `json:"approved_at" db:"approved_at"`
	CancelledAt    *time.Time         `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy    *uuid.UUID         `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}

// SeatReservation is a claim on one seat of a slot
type SeatReservation struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id" db:"subscription_id"`
	SlotID         uuid.UUID  `json:"slot_id" db:"slot_id"`
	ReservedAt     time.Time  `json:"reserved_at" db:"reserved_at"`
	ReleasedAt     *time.Time `json:"released_at,omitempty" db:"released_at"`
}

// IsActive reports whether the reservation still occupies capacity
func (r *SeatReservation) IsActive() bool {
	return r.ReleasedAt == nil
}

// SubscriptionDetails is a subscription with its live reservation, if any
type SubscriptionDetails struct {
	Subscription
	Reservation *SeatReservation `json:"reservation,omitempty"`
}

// ManifestEntry is one seated rider on a slot
type ManifestEntry struct {
	SubscriptionID uuid.UUID          `json:"subscription_id" db:"subscription_id"`
	ReservationID  uuid.UUID          `json:"reservation_id" db:"reservation_id"`
	UserID         uuid.UUID          `json:"user_id" db:"user_id"`
	Status         SubscriptionStatus `json:"status" db:"status"`
	StartDate      time.Time          `json:"start_date" db:"start_date"`
	EndDate        time.Time          `json:"end_date" db:"end_date"`
	ReservedAt     time.Time          `json:"reserved_at" db:"reserved_at"`
}
