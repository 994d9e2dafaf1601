package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanType selects which settings value gives the subscription length
type PlanType string

const (
	PlanTypeMonthly PlanType = "monthly"
	PlanTypeTerm    PlanType = "term"
)

// IsValid reports whether the plan type is known
func (p PlanType) IsValid() bool {
	return p == PlanTypeMonthly || p == PlanTypeTerm
}

// Direction is the travel direction of a schedule slot
type Direction string

const (
	DirectionToCampus   Direction = "to_campus"
	DirectionFromCampus Direction = "from_campus"
)

// TransportRoute is a bus line students can subscribe to
type TransportRoute struct {
	ID                     uuid.UUID        `json:"id" db:"id"`
	NameAr                 string           `json:"name_ar" db:"name_ar"`
	NameEn                 string           `json:"name_en" db:"name_en"`
	PriceOneWay            decimal.Decimal  `json:"price_one_way" db:"price_one_way"`
	MonthlyDiscountPercent *decimal.Decimal `json:"monthly_discount_percent,omitempty" db:"monthly_discount_percent"`
	TermDiscountPercent    *decimal.Decimal `json:"term_discount_percent,omitempty" db:"term_discount_percent"`
	IsActive               bool             `json:"is_active" db:"is_active"`
	CreatedAt              time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at" db:"updated_at"`
}

// DiscountPercent returns the discount for a plan type; a missing discount is zero
func (r *TransportRoute) DiscountPercent(planType PlanType) decimal.Decimal {
	var pct *decimal.Decimal
	switch planType {
	case PlanTypeMonthly:
		pct = r.MonthlyDiscountPercent
	case PlanTypeTerm:
		pct = r.TermDiscountPercent
	}
	if pct == nil {
		return decimal.Zero
	}
	return *pct
}

// TransportPlan is a named plan type plus the number of days a student picks
type TransportPlan struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	NameAr             string    `json:"name_ar" db:"name_ar"`
	NameEn             string    `json:"name_en" db:"name_en"`
	PlanType           PlanType  `json:"plan_type" db:"plan_type"`
	AllowedDaysPerWeek int       `json:"allowed_days_per_week" db:"allowed_days_per_week"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	SortOrder          int       `json:"sort_order" db:"sort_order"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// TransportSettings holds the pricing calendar constants
type TransportSettings struct {
	DaysPerWeek  int `json:"days_per_week" db:"days_per_week"`
	WeeksInMonth int `json:"weeks_in_month" db:"weeks_in_month"`
	WeeksInTerm  int `json:"weeks_in_term" db:"weeks_in_term"`
}

// DefaultTransportSettings mirrors the seeded settings row
func DefaultTransportSettings() TransportSettings {
	return TransportSettings{
		DaysPerWeek:  5,
		WeeksInMonth: 4,
		WeeksInTerm:  12,
	}
}

// WeeksFor returns the subscription length in weeks for a plan type
func (s TransportSettings) WeeksFor(planType PlanType) int {
	if planType == PlanTypeTerm {
		return s.WeeksInTerm
	}
	return s.WeeksInMonth
}

// ScheduleSlot is one departure of a route with a finite seat capacity
type ScheduleSlot struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RouteID   uuid.UUID `json:"route_id" db:"route_id"`
	DayOfWeek int       `json:"day_of_week" db:"day_of_week"` // 0 = Sunday
	Direction Direction `json:"direction" db:"direction"`
	Time      string    `json:"time" db:"time"` // HH:MM:SS
	Capacity  int       `json:"capacity" db:"capacity"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DayName returns the slot's weekday name
func (s *ScheduleSlot) DayName() Weekday {
	d, _ := WeekdayFromDayOfWeek(s.DayOfWeek)
	return d
}

// SlotAvailability is a slot together with its live seat usage
type SlotAvailability struct {
	ScheduleSlot
	ActiveReservations int `json:"active_reservations" db:"active_reservations"`
	CapacityRemaining  int `json:"capacity_remaining" db:"-"`
}
