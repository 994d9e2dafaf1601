package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle status of a subscription request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// PaymentStatus tracks admin review of the uploaded payment proof
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusVerified PaymentStatus = "verified"
	PaymentStatusFlagged  PaymentStatus = "flagged"
)

var requestTransitions = map[RequestStatus]map[RequestStatus]bool{
	RequestStatusPending: {
		RequestStatusApproved: true,
		RequestStatusRejected: true,
	},
}

// Payment review only happens while the request is pending. A verified payment
// can still be flagged; a flagged proof goes back to pending when the student
// uploads a new one.
var paymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending: {
		PaymentStatusVerified: true,
		PaymentStatusFlagged:  true,
	},
	PaymentStatusFlagged: {
		PaymentStatusVerified: true,
		PaymentStatusFlagged:  true,
		PaymentStatusPending:  true,
	},
	PaymentStatusVerified: {
		PaymentStatusFlagged: true,
	},
}

// CanTransitionTo reports whether the request may move to next
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return requestTransitions[s][next]
}

// IsTerminal reports whether the request has been processed
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// CanTransitionTo reports whether the payment review may move to next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return paymentTransitions[s][next]
}

// PricingBreakdown is the full result of a price calculation
type PricingBreakdown struct {
	PlanType            PlanType        `json:"plan_type"`
	PlanID              *uuid.UUID      `json:"plan_id,omitempty"`
	DailyCost           decimal.Decimal `json:"daily_cost"`
	DaysCount           int             `json:"days_count"`
	Weeks               int             `json:"weeks"`
	TotalBeforeDiscount decimal.Decimal `json:"total_before_discount"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	FinalAmount         decimal.Decimal `json:"final_amount"`
}

// PricingSnapshot freezes the price inputs on the request row
type PricingSnapshot struct {
	PricingBreakdown
	RouteID      uuid.UUID   `json:"route_id"`
	SlotID       *uuid.UUID  `json:"slot_id,omitempty"`
	SelectedDays WeekdayList `json:"selected_days,omitempty"`
	ComputedAt   time.Time   `json:"computed_at"`
}

// Value implements the driver.Valuer interface
func (p PricingSnapshot) Value() (driver.Value, error) {
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (p *PricingSnapshot) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = PricingSnapshot{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported pricing snapshot source type %T", value)
	}
}

// SubscriptionRequest is a student's application for a transport subscription
type SubscriptionRequest struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	RouteID         uuid.UUID       `json:"route_id" db:"route_id"`
	SlotID          *uuid.UUID      `json:"slot_id,omitempty" db:"slot_id"`
	PlanID          *uuid.UUID      `json:"plan_id,omitempty" db:"plan_id"`
	PlanType        PlanType        `json:"plan_type" db:"plan_type"`
	SelectedDays    WeekdayList     `json:"selected_days,omitempty" db:"selected_days"`
	Status          RequestStatus   `json:"status" db:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	AmountExpected  decimal.Decimal `json:"amount_expected" db:"amount_expected"`
	AmountPaid      decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	PaymentMethodID *uuid.UUID      `json:"payment_method_id,omitempty" db:"payment_method_id"`
	PaidFromNumber  *string         `json:"paid_from_number,omitempty" db:"paid_from_number"`
	PaidAt          *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	ProofPath       string          `json:"-" db:"proof_path"`
	FlagReason      *string         `json:"flag_reason,omitempty" db:"flag_reason"`
	VerifiedBy      *uuid.UUID      `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty" db:"verified_at"`
	RejectionReason *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ProcessedBy     *uuid.UUID      `json:"processed_by,omitempty" db:"processed_by"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	PricingSnapshot PricingSnapshot `json:"pricing_snapshot" db:"pricing_snapshot"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// HasProof reports whether a payment proof is attached
func (r *SubscriptionRequest) HasProof() bool {
	return r.ProofPath != ""
}

// RequestFilter narrows the admin request listing
type RequestFilter struct {
	Status        *RequestStatus
	PaymentStatus *PaymentStatus
	RouteID       *uuid.UUID
	SlotID        *uuid.UUID
	Limit         int
	Offset        int
}

// ProcessedRequest identifies a request changed by a bulk statement
type ProcessedRequest struct {
	ID     uuid.UUID `db:"id"`
	UserID uuid.UUID `db:"user_id"`
}
