package database

import (
	"context"
	"fmt"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AuditLogRepository writes and reads audit_logs
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Insert stores an audit entry
func (r *AuditLogRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		entry.UserID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.IPAddress,
		entry.UserAgent,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail of one entity, newest first
func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	logs := []models.AuditLog{}
	if err := sqlx.SelectContext(ctx, querier(ctx, r.db), &logs, query, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return logs, nil
}
