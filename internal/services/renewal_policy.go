package services

import (
	"context"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
)

// RenewalWindowDays is how many days before the end date a renewal may be submitted
const RenewalWindowDays = 7

// RenewalDecision explains a renewal eligibility check
type RenewalDecision struct {
	Allowed      bool
	Subscription *models.Subscription // the blocking or renewable subscription
	DaysLeft     int
}

// RenewalPolicy gates new submissions for students who already hold a subscription
type RenewalPolicy struct {
	subscriptions SubscriptionRepository
	clock         Clock
}

// NewRenewalPolicy creates a new RenewalPolicy
func NewRenewalPolicy(subscriptions SubscriptionRepository, clock Clock) *RenewalPolicy {
	return &RenewalPolicy{subscriptions: subscriptions, clock: clock}
}

// CanSubmitNewRequest reports whether the user may submit a new request
func (p *RenewalPolicy) CanSubmitNewRequest(ctx context.Context, userID uuid.UUID) (RenewalDecision, error) {
	open, err := p.subscriptions.ListOpenByUser(ctx, userID)
	if err != nil {
		return RenewalDecision{}, err
	}
	return EvaluateRenewal(open, p.clock.Now()), nil
}

// EvaluateRenewal applies the renewal rules to the user's open subscriptions
func EvaluateRenewal(open []models.Subscription, now time.Time) RenewalDecision {
	if len(open) == 0 {
		return RenewalDecision{Allowed: true}
	}

	for i := range open {
		if open[i].Status == models.SubscriptionStatusWaitlisted {
			return RenewalDecision{Allowed: false, Subscription: &open[i]}
		}
	}

	if len(open) > 1 {
		return RenewalDecision{Allowed: false, Subscription: &open[0]}
	}

	sub := &open[0]
	if sub.EndDate.IsZero() {
		return RenewalDecision{Allowed: false, Subscription: sub}
	}

	daysLeft := daysBetween(now, sub.EndDate)
	return RenewalDecision{
		Allowed:      daysLeft <= RenewalWindowDays,
		Subscription: sub,
		DaysLeft:     daysLeft,
	}
}
