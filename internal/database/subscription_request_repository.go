package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const requestColumns = `
	id, user_id, route_id, slot_id, plan_id, plan_type, selected_days, status, payment_status,
	amount_expected, amount_paid, payment_method_id, paid_from_number, paid_at, proof_path,
	flag_reason, verified_by, verified_at, rejection_reason, processed_by, processed_at,
	pricing_snapshot, created_at, updated_at`

// SubscriptionRequestRepository handles transport_subscription_requests
type SubscriptionRequestRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRequestRepository creates a new SubscriptionRequestRepository
func NewSubscriptionRequestRepository(db *sqlx.DB) *SubscriptionRequestRepository {
	return &SubscriptionRequestRepository{db: db}
}

// Create inserts a new pending request
func (r *SubscriptionRequestRepository) Create(ctx context.Context, req *models.SubscriptionRequest) error {
	query := `
		INSERT INTO transport_subscription_requests (
			id, user_id, route_id, slot_id, plan_id, plan_type, selected_days, status, payment_status,
			amount_expected, amount_paid, payment_method_id, paid_from_number, paid_at, proof_path,
			pricing_snapshot, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`

	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		req.ID,
		req.UserID,
		req.RouteID,
		req.SlotID,
		req.PlanID,
		req.PlanType,
		req.SelectedDays,
		req.Status,
		req.PaymentStatus,
		req.AmountExpected,
		req.AmountPaid,
		req.PaymentMethodID,
		req.PaidFromNumber,
		req.PaidAt,
		req.ProofPath,
		req.PricingSnapshot,
		req.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, ConstraintPendingRequestPerUser) {
			return ErrPendingRequestExists
		}
		return fmt.Errorf("failed to create subscription request: %w", err)
	}

	return nil
}

// GetByID returns a request, or nil if it does not exist
func (r *SubscriptionRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionRequest, error) {
	return r.get(ctx, `SELECT `+requestColumns+` FROM transport_subscription_requests WHERE id = $1`, id)
}

// GetByIDForUpdate returns a request and locks its row until the transaction ends
func (r *SubscriptionRequestRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SubscriptionRequest, error) {
	return r.get(ctx, `SELECT `+requestColumns+` FROM transport_subscription_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *SubscriptionRequestRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.SubscriptionRequest, error) {
	var req models.SubscriptionRequest
	err := sqlx.GetContext(ctx, querier(ctx, r.db), &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription request: %w", err)
	}
	return &req, nil
}

// HasPending reports whether the user has a request awaiting a decision
func (r *SubscriptionRequestRepository) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transport_subscription_requests WHERE user_id = $1 AND status = 'pending')`

	var exists bool
	if err := sqlx.GetContext(ctx, querier(ctx, r.db), &exists, query, userID); err != nil {
		return false, fmt.Errorf("failed to check pending requests: %w", err)
	}
	return exists, nil
}

// MarkPaymentVerified verifies the payment of a pending, unverified request.
// Returns false when no row matched.
func (r *SubscriptionRequestRepository) MarkPaymentVerified(ctx context.Context, id, adminID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE transport_subscription_requests
		SET payment_status = 'verified', flag_reason = NULL, verified_by = $2, verified_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND payment_status IN ('pending', 'flagged')
	`
	return r.execAffected(ctx, "verify payment", query, id, adminID, at)
}

// MarkPaymentFlagged flags the payment of a pending request, clearing any
// earlier verification
func (r *SubscriptionRequestRepository) MarkPaymentFlagged(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE transport_subscription_requests
		SET payment_status = 'flagged', flag_reason = $2, verified_by = NULL, verified_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`
	return r.execAffected(ctx, "flag payment", query, id, reason, at)
}

// ReplaceProof attaches a new proof to the owner's flagged request and
// sends its payment back to review
func (r *SubscriptionRequestRepository) ReplaceProof(ctx context.Context, id, userID uuid.UUID, proofPath string, at time.Time) (bool, error) {
	query := `
		UPDATE transport_subscription_requests
		SET proof_path = $3, payment_status = 'pending', flag_reason = NULL, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'pending' AND payment_status = 'flagged'
	`
	return r.execAffected(ctx, "replace proof", query, id, userID, proofPath, at)
}

// MarkApproved moves a verified pending request to approved
func (r *SubscriptionRequestRepository) MarkApproved(ctx context.Context, id, adminID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE transport_subscription_requests
		SET status = 'approved', processed_by = $2, processed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND payment_status = 'verified'
	`
	return r.execAffected(ctx, "approve request", query, id, adminID, at)
}

// MarkRejected moves a pending request to rejected
func (r *SubscriptionRequestRepository) MarkRejected(ctx context.Context, id, adminID uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE transport_subscription_requests
		SET status = 'rejected', rejection_reason = $3, processed_by = $2, processed_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`
	return r.execAffected(ctx, "reject request", query, id, adminID, reason, at)
}

// BulkReject rejects every listed request that is still pending in one
// statement and returns the rows it changed
func (r *SubscriptionRequestRepository) BulkReject(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, reason string, at time.Time) ([]models.ProcessedRequest, error) {
	if len(ids) == 0 {
		return []models.ProcessedRequest{}, nil
	}

	query := `
		UPDATE transport_subscription_requests
		SET status = 'rejected', rejection_reason = $3, processed_by = $2, processed_at = $4, updated_at = $4
		WHERE id = ANY($1::uuid[]) AND status = 'pending'
		RETURNING id, user_id
	`

	processed := []models.ProcessedRequest{}
	err := sqlx.SelectContext(ctx, querier(ctx, r.db), &processed, query, models.NewUUIDArray(ids), adminID, reason, at)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk reject requests: %w", err)
	}
	return processed, nil
}

// ListByUser returns a user's requests, newest first
func (r *SubscriptionRequestRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SubscriptionRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM transport_subscription_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	requests := []models.SubscriptionRequest{}
	if err := sqlx.SelectContext(ctx, querier(ctx, r.db), &requests, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list user requests: %w", err)
	}
	return requests, nil
}

// List returns requests matching filter plus the total match count
func (r *SubscriptionRequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.SubscriptionRequest, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.PaymentStatus != nil {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argIndex))
		args = append(args, *filter.PaymentStatus)
		argIndex++
	}
	if filter.RouteID != nil {
		conditions = append(conditions, fmt.Sprintf("route_id = $%d", argIndex))
		args = append(args, *filter.RouteID)
		argIndex++
	}
	if filter.SlotID != nil {
		conditions = append(conditions, fmt.Sprintf("slot_id = $%d", argIndex))
		args = append(args, *filter.SlotID)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	q := querier(ctx, r.db)

	var total int
	countQuery := `SELECT COUNT(*) FROM transport_subscription_requests ` + where
	if err := sqlx.GetContext(ctx, q, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	listQuery := fmt.Sprintf(`SELECT %s FROM transport_subscription_requests %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestColumns, where, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	requests := []models.SubscriptionRequest{}
	if err := sqlx.SelectContext(ctx, q, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}

	return requests, total, nil
}

func (r *SubscriptionRequestRepository) execAffected(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	result, err := querier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return rows > 0, nil
}
