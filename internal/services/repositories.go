package services

import (
	"context"
	"io"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
)

// TxRunner runs fn inside one atomic unit of work. Repository calls made
// with the ctx passed to fn join that unit.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RequestRepository persists subscription requests.
// Lookups return nil, nil when the row does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *models.SubscriptionRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionRequest, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SubscriptionRequest, error)
	HasPending(ctx context.Context, userID uuid.UUID) (bool, error)
	MarkPaymentVerified(ctx context.Context, id, adminID uuid.UUID, at time.Time) (bool, error)
	MarkPaymentFlagged(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	ReplaceProof(ctx context.Context, id, userID uuid.UUID, proofPath string, at time.Time) (bool, error)
	MarkApproved(ctx context.Context, id, adminID uuid.UUID, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, adminID uuid.UUID, reason string, at time.Time) (bool, error)
	BulkReject(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, reason string, at time.Time) ([]models.ProcessedRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SubscriptionRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.SubscriptionRequest, int, error)
}

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.SubscriptionStatus, actorID *uuid.UUID, at time.Time) (bool, error)
	ListOpenByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	ListDueForExpiry(ctx context.Context, today time.Time) ([]uuid.UUID, error)
	ListManifest(ctx context.Context, slotID uuid.UUID) ([]models.ManifestEntry, error)
}

// ReservationRepository persists seat reservations
type ReservationRepository interface {
	CountActive(ctx context.Context, slotID uuid.UUID) (int, error)
	Create(ctx context.Context, reservation *models.SeatReservation) error
	GetActiveBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.SeatReservation, error)
	Release(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// SlotRepository reads schedule slots
type SlotRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduleSlot, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ScheduleSlot, error)
	ListAvailabilityByRoute(ctx context.Context, routeID uuid.UUID) ([]models.SlotAvailability, error)
}

// CatalogRepository reads routes, plans and pricing settings
type CatalogRepository interface {
	GetRoute(ctx context.Context, id uuid.UUID) (*models.TransportRoute, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*models.TransportPlan, error)
	GetSettings(ctx context.Context) (*models.TransportSettings, error)
}

// AuditLogRepository stores audit entries
type AuditLogRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error)
}

// ProofStore keeps payment proof files outside the database
type ProofStore interface {
	Store(ctx context.Context, ownerID uuid.UUID, file models.ProofUpload) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) (bool, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// NotificationSink delivers user notifications. Failures never fail a workflow.
type NotificationSink interface {
	Notify(ctx context.Context, n models.Notification) error
}

// AuditSink records admin actions
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}
