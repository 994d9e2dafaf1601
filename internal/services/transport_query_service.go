package services

import (
	"context"
	"io"
	"sort"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
)

// AuditHistory reads audit entries for an entity
type AuditHistory interface {
	History(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error)
}

// TransportQueryService serves the read side for students and admins
type TransportQueryService struct {
	requests      RequestRepository
	subscriptions SubscriptionRepository
	reservations  ReservationRepository
	slots         SlotRepository
	pricing       *PricingService
	proofs        ProofStore
	history       AuditHistory
}

// NewTransportQueryService creates a new TransportQueryService
func NewTransportQueryService(
	requests RequestRepository,
	subscriptions SubscriptionRepository,
	reservations ReservationRepository,
	slots SlotRepository,
	pricing *PricingService,
	proofs ProofStore,
	history AuditHistory,
) *TransportQueryService {
	return &TransportQueryService{
		requests:      requests,
		subscriptions: subscriptions,
		reservations:  reservations,
		slots:         slots,
		pricing:       pricing,
		proofs:        proofs,
		history:       history,
	}
}

// ListSlotAvailability returns the active slots of a route with live seat usage
func (s *TransportQueryService) ListSlotAvailability(ctx context.Context, routeID uuid.UUID) ([]models.SlotAvailability, error) {
	slots, err := s.slots.ListAvailabilityByRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		remaining := slots[i].Capacity - slots[i].ActiveReservations
		if remaining < 0 {
			remaining = 0
		}
		slots[i].CapacityRemaining = remaining
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return slots[i].Time < slots[j].Time
	})
	return slots, nil
}

// Quote prices a selection without side effects
func (s *TransportQueryService) Quote(ctx context.Context, q QuoteQuery) (models.PricingBreakdown, error) {
	priced, err := s.pricing.Price(ctx, q)
	if err != nil {
		return models.PricingBreakdown{}, err
	}
	return priced.Breakdown, nil
}

// MyRequests lists the user's requests, newest first
func (s *TransportQueryService) MyRequests(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SubscriptionRequest, error) {
	limit, offset = normalizePage(limit, offset)
	return s.requests.ListByUser(ctx, userID, limit, offset)
}

// MySubscription returns the user's current subscription, active preferred
// over waitlisted. It returns nil when there is none.
func (s *TransportQueryService) MySubscription(ctx context.Context, userID uuid.UUID) (*models.SubscriptionDetails, error) {
	open, err := s.subscriptions.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	current := open[0]
	for _, sub := range open {
		if sub.Status == models.SubscriptionStatusActive {
			current = sub
			break
		}
	}

	reservation, err := s.reservations.GetActiveBySubscription(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	return &models.SubscriptionDetails{Subscription: current, Reservation: reservation}, nil
}

// RequestDetails is an admin view of one request
type RequestDetails struct {
	Request *models.SubscriptionRequest `json:"request"`
	History []models.AuditLog           `json:"history"`
}

// ListRequests returns a filtered page of requests and the total match count
func (s *TransportQueryService) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.SubscriptionRequest, int, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	return s.requests.List(ctx, filter)
}

// GetRequest returns one request with its audit history
func (s *TransportQueryService) GetRequest(ctx context.Context, id uuid.UUID) (*RequestDetails, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNotFound.WithMessage("request not found")
	}

	details := &RequestDetails{Request: req, History: []models.AuditLog{}}
	if s.history != nil {
		history, err := s.history.History(ctx, models.AuditEntityRequest, id, 50)
		if err != nil {
			return nil, err
		}
		if history != nil {
			details.History = history
		}
	}
	return details, nil
}

// Manifest lists the riders currently holding a seat on a slot
func (s *TransportQueryService) Manifest(ctx context.Context, slotID uuid.UUID) ([]models.ManifestEntry, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrSlotNotFound.WithDetails(map[string]interface{}{"slot_id": slotID})
	}
	entries, err := s.subscriptions.ListManifest(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.ManifestEntry{}
	}
	return entries, nil
}

// OpenProof opens the payment proof of a request. The caller closes the reader.
func (s *TransportQueryService) OpenProof(ctx context.Context, requestID uuid.UUID) (io.ReadCloser, *models.SubscriptionRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req == nil || !req.HasProof() {
		return nil, nil, ErrNotFound.WithMessage("payment proof not found")
	}

	exists, err := s.proofs.Exists(ctx, req.ProofPath)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, ErrNotFound.WithMessage("payment proof not found")
	}

	rc, err := s.proofs.Open(ctx, req.ProofPath)
	if err != nil {
		return nil, nil, err
	}
	return rc, req, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
