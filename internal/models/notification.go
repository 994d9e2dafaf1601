package models

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// NotificationKind categorizes a message sent to a student
type NotificationKind string

const (
	NotificationRequestSubmitted      NotificationKind = "transport_request_submitted"
	NotificationPaymentVerified       NotificationKind = "transport_payment_verified"
	NotificationPaymentFlagged        NotificationKind = "transport_payment_flagged"
	NotificationRequestApproved       NotificationKind = "transport_request_approved"
	NotificationRequestWaitlisted     NotificationKind = "transport_request_waitlisted"
	NotificationRequestRejected       NotificationKind = "transport_request_rejected"
	NotificationSubscriptionCancelled NotificationKind = "transport_subscription_cancelled"
)

// Notification is a fire-and-forget message for one user
type Notification struct {
	UserID    uuid.UUID        `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ProofUpload is a payment proof file handed to the proof store
type ProofUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}
