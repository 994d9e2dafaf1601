package services

import (
	"context"
	"fmt"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReserveOutcome is the result of a seat claim
type ReserveOutcome string

const (
	OutcomeReserved   ReserveOutcome = "reserved"
	OutcomeWaitlisted ReserveOutcome = "waitlisted"
)

// ReserveResult describes a TryReserve call
type ReserveResult struct {
	Outcome           ReserveOutcome
	Reservation       *models.SeatReservation
	CapacityRemaining int
}

// CapacityLedger is the only writer of seat reservations
type CapacityLedger struct {
	slots        SlotRepository
	reservations ReservationRepository
	clock        Clock
	logger       *logrus.Logger
}

// NewCapacityLedger creates a new CapacityLedger
func NewCapacityLedger(slots SlotRepository, reservations ReservationRepository, clock Clock, logger *logrus.Logger) *CapacityLedger {
	return &CapacityLedger{
		slots:        slots,
		reservations: reservations,
		clock:        clock,
		logger:       logger,
	}
}

// Remaining returns capacity minus active reservations. Under a concurrent
// claim the value may be stale; callers treat <= 0 as full.
func (l *CapacityLedger) Remaining(ctx context.Context, slotID uuid.UUID) (int, error) {
	slot, err := l.slots.GetByID(ctx, slotID)
	if err != nil {
		return 0, err
	}
	if slot == nil {
		return 0, ErrSlotNotFound.WithDetails(map[string]interface{}{"slot_id": slotID})
	}

	active, err := l.reservations.CountActive(ctx, slotID)
	if err != nil {
		return 0, err
	}
	return slot.Capacity - active, nil
}

// TryReserve claims a seat for the subscription if one is free. It must run
// inside the caller's transaction: the slot row lock taken here serializes
// claims on the same slot until that transaction ends.
func (l *CapacityLedger) TryReserve(ctx context.Context, slotID, subscriptionID uuid.UUID) (ReserveResult, error) {
	slot, err := l.slots.GetByIDForUpdate(ctx, slotID)
	if err != nil {
		return ReserveResult{}, err
	}
	if slot == nil {
		return ReserveResult{}, ErrSlotNotFound.WithDetails(map[string]interface{}{"slot_id": slotID})
	}

	active, err := l.reservations.CountActive(ctx, slotID)
	if err != nil {
		return ReserveResult{}, err
	}

	remaining := slot.Capacity - active
	if remaining <= 0 {
		l.logger.WithFields(logrus.Fields{
			"slot_id":            slotID,
			"subscription_id":    subscriptionID,
			"capacity_remaining": remaining,
		}).Info("Slot full, subscription waitlisted")
		return ReserveResult{Outcome: OutcomeWaitlisted, CapacityRemaining: remaining}, nil
	}

	reservation := &models.SeatReservation{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		SlotID:         slotID,
		ReservedAt:     l.clock.Now(),
	}
	if err := l.reservations.Create(ctx, reservation); err != nil {
		return ReserveResult{}, fmt.Errorf("failed to reserve seat: %w", err)
	}

	return ReserveResult{
		Outcome:           OutcomeReserved,
		Reservation:       reservation,
		CapacityRemaining: remaining - 1,
	}, nil
}

// Release frees a reservation. Releasing twice is a no-op.
func (l *CapacityLedger) Release(ctx context.Context, reservationID uuid.UUID) error {
	released, err := l.reservations.Release(ctx, reservationID, l.clock.Now())
	if err != nil {
		return err
	}
	if !released {
		l.logger.WithField("reservation_id", reservationID).Debug("Reservation already released")
	}
	return nil
}

// ReleaseForSubscription frees the subscription's active reservation, if any
func (l *CapacityLedger) ReleaseForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.SeatReservation, error) {
	reservation, err := l.reservations.GetActiveBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, nil
	}
	if err := l.Release(ctx, reservation.ID); err != nil {
		return nil, err
	}
	return reservation, nil
}
