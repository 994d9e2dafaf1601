package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TransportCatalogRepository reads routes, plans and the pricing settings row
type TransportCatalogRepository struct {
	db *sqlx.DB
}

// NewTransportCatalogRepository creates a new TransportCatalogRepository
func NewTransportCatalogRepository(db *sqlx.DB) *TransportCatalogRepository {
	return &TransportCatalogRepository{db: db}
}

// GetRoute returns an active route, or nil
func (r *TransportCatalogRepository) GetRoute(ctx context.Context, id uuid.UUID) (*models.TransportRoute, error) {
	query := `
		SELECT id, name_ar, name_en, price_one_way, monthly_discount_percent, term_discount_percent,
		       is_active, created_at, updated_at
		FROM transport_routes
		WHERE id = $1 AND is_active = true
	`

	var route models.TransportRoute
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &route, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transport route: %w", err)
	}
	return &route, nil
}

// GetPlan returns a plan regardless of its active flag, or nil
func (r *TransportCatalogRepository) GetPlan(ctx context.Context, id uuid.UUID) (*models.TransportPlan, error) {
	query := `
		SELECT id, name_ar, name_en, plan_type, allowed_days_per_week, is_active, sort_order, created_at, updated_at
		FROM transport_plans
		WHERE id = $1
	`

	var plan models.TransportPlan
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &plan, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transport plan: %w", err)
	}
	return &plan, nil
}

// GetSettings returns the single settings row, or nil when it was never seeded
func (r *TransportCatalogRepository) GetSettings(ctx context.Context) (*models.TransportSettings, error) {
	query := `SELECT days_per_week, weeks_in_month, weeks_in_term FROM transport_settings ORDER BY id LIMIT 1`

	var settings models.TransportSettings
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &settings, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transport settings: %w", err)
	}
	return &settings, nil
}
