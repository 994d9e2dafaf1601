package services

import (
	"context"
	"errors"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	amountTolerance = decimal.RequireFromString("0.01")
	hundred         = decimal.NewFromInt(100)
	two             = decimal.NewFromInt(2)
)

// PriceInput is everything the price of a subscription depends on.
// A nil Plan selects legacy pricing by settings.DaysPerWeek and PlanType.
type PriceInput struct {
	Route        *models.TransportRoute
	Plan         *models.TransportPlan
	PlanType     models.PlanType
	SelectedDays []models.Weekday
	Settings     models.TransportSettings
}

// CalculatePrice computes the expected subscription cost. It has no side effects.
func CalculatePrice(in PriceInput) (models.PricingBreakdown, error) {
	planType := in.PlanType
	var planID *uuid.UUID
	if in.Plan != nil {
		planType = in.Plan.PlanType
		id := in.Plan.ID
		planID = &id
	}
	if !planType.IsValid() {
		return models.PricingBreakdown{}, ErrInvalidDaySelection.WithMessage("plan type must be monthly or term").
			WithDetails(map[string]interface{}{"plan_type": planType})
	}

	if err := validateDaySelection(in.Plan, in.SelectedDays); err != nil {
		return models.PricingBreakdown{}, err
	}

	days := in.Settings.DaysPerWeek
	if in.Plan != nil {
		days = len(in.SelectedDays)
	}
	weeks := in.Settings.WeeksFor(planType)

	dailyCost := in.Route.PriceOneWay.Mul(two)
	base := dailyCost.Mul(decimal.NewFromInt(int64(days))).Mul(decimal.NewFromInt(int64(weeks)))
	discountPercent := in.Route.DiscountPercent(planType)
	final := base.Mul(decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))).Round(2)

	return models.PricingBreakdown{
		PlanType:            planType,
		PlanID:              planID,
		DailyCost:           dailyCost.Round(2),
		DaysCount:           days,
		Weeks:               weeks,
		TotalBeforeDiscount: base.Round(2),
		DiscountPercent:     discountPercent,
		DiscountAmount:      base.Sub(final).Round(2),
		FinalAmount:         final,
	}, nil
}

func validateDaySelection(plan *models.TransportPlan, days []models.Weekday) error {
	if plan != nil && len(days) == 0 {
		return ErrInvalidDaySelection.WithMessage("select the days you will ride").
			WithDetails(map[string]interface{}{"required_count": plan.AllowedDaysPerWeek})
	}

	seen := make(map[models.Weekday]bool, len(days))
	for _, d := range days {
		if !d.IsSelectable() {
			return ErrInvalidDaySelection.WithMessage("days must be between saturday and thursday").
				WithDetails(map[string]interface{}{"day": d, "allowed_days": models.SelectableWeekdays})
		}
		if seen[d] {
			return ErrInvalidDaySelection.WithMessage("days must not repeat").
				WithDetails(map[string]interface{}{"day": d})
		}
		seen[d] = true
	}

	if plan != nil && len(days) != plan.AllowedDaysPerWeek {
		return ErrInvalidDaySelection.WithMessage("number of selected days does not match the plan").
			WithDetails(map[string]interface{}{
				"required_count": plan.AllowedDaysPerWeek,
				"selected_count": len(days),
			})
	}

	return nil
}

// VerifyPaidAmount checks the student-entered amount against the computed one
func VerifyPaidAmount(expected, paid decimal.Decimal) error {
	if expected.Sub(paid).Abs().GreaterThan(amountTolerance) {
		return ErrAmountMismatch.WithDetails(map[string]interface{}{
			"expected_amount": expected.StringFixed(2),
			"provided_amount": paid.StringFixed(2),
		})
	}
	return nil
}

// QuoteQuery identifies the catalog entries a price is computed from
type QuoteQuery struct {
	RouteID      uuid.UUID
	PlanID       *uuid.UUID
	PlanType     models.PlanType
	SelectedDays []models.Weekday
}

// PricedSelection is a computed price with the catalog rows it used
type PricedSelection struct {
	Route     *models.TransportRoute
	Plan      *models.TransportPlan
	Settings  models.TransportSettings
	Breakdown models.PricingBreakdown
}

// PricingService loads catalog data and runs CalculatePrice over it
type PricingService struct {
	catalog CatalogRepository
}

// NewPricingService creates a new PricingService
func NewPricingService(catalog CatalogRepository) *PricingService {
	return &PricingService{catalog: catalog}
}

// Price resolves the route, plan and settings for q and prices the selection
func (s *PricingService) Price(ctx context.Context, q QuoteQuery) (*PricedSelection, error) {
	route, err := s.catalog.GetRoute(ctx, q.RouteID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, ErrNotFound.WithMessage("route not found").WithDetails(map[string]interface{}{"route_id": q.RouteID})
	}

	var plan *models.TransportPlan
	if q.PlanID != nil {
		plan, err = s.catalog.GetPlan(ctx, *q.PlanID)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, ErrNotFound.WithMessage("plan not found").WithDetails(map[string]interface{}{"plan_id": *q.PlanID})
		}
		if !plan.IsActive {
			return nil, ErrPlanInactive.WithDetails(map[string]interface{}{"plan_id": plan.ID})
		}
	}

	settings, err := s.catalog.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, errors.New("transport settings not configured")
	}

	breakdown, err := CalculatePrice(PriceInput{
		Route:        route,
		Plan:         plan,
		PlanType:     q.PlanType,
		SelectedDays: q.SelectedDays,
		Settings:     *settings,
	})
	if err != nil {
		return nil, err
	}

	return &PricedSelection{
		Route:     route,
		Plan:      plan,
		Settings:  *settings,
		Breakdown: breakdown,
	}, nil
}
