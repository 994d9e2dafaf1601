package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the transport workflow
const (
	AuditActionPaymentVerified       = "transport_payment_verified"
	AuditActionPaymentFlagged        = "transport_payment_flagged"
	AuditActionRequestApproved       = "transport_request_approved"
	AuditActionRequestRejected       = "transport_request_rejected"
	AuditActionSubscriptionCancelled = "transport_subscription_cancelled"
	AuditActionSubscriptionExpired   = "transport_subscription_expired"
)

// Audit entity types
const (
	AuditEntityRequest      = "transport_subscription_request"
	AuditEntitySubscription = "transport_subscription"
)

// AuditLog represents an audit_logs row
type AuditLog struct {
	ID         int64      `json:"id" db:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Action     string     `json:"action" db:"action"`
	EntityType *string    `json:"entity_type,omitempty" db:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty" db:"entity_id"`
	IPAddress  *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string    `json:"user_agent,omitempty" db:"user_agent"`
	Details    JSONB      `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
