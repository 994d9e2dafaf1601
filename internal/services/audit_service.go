package services

import (
	"context"
	"fmt"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/campusportal/transport-backend/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditService handles audit logging for admin actions on transport requests
type AuditService struct {
	repo   AuditLogRepository
	clock  Clock
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditLogRepository, clock Clock, logger *logrus.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// AuditEvent represents an action to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // Acting user; nil for system jobs
	Action     string                 // e.g. "transport_request_approved"
	EntityType string                 // e.g. "transport_subscription_request"
	EntityID   *uuid.UUID             // ID of the affected entity
	IPAddress  string                 // Client IP address; taken from ctx when empty
	UserAgent  string                 // Client user agent; taken from ctx when empty
	Details    map[string]interface{} // Additional details as JSONB
}

// Record stores an audit event. Client IP and user agent default to the
// values the request middleware put in ctx.
func (s *AuditService) Record(ctx context.Context, event AuditEvent) error {
	if info, ok := utils.ClientInfoFromContext(ctx); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.IPAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = info.UserAgent
		}
	}

	details := models.JSONB{}
	for k, v := range event.Details {
		details[k] = v
	}
	if event.UserAgent != "" {
		details["device_info"] = utils.ParseUserAgent(event.UserAgent)
	}

	entry := &models.AuditLog{
		UserID:     event.UserID,
		Action:     event.Action,
		EntityType: optionalString(event.EntityType),
		EntityID:   event.EntityID,
		IPAddress:  optionalString(event.IPAddress),
		UserAgent:  optionalString(event.UserAgent),
		Details:    details,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit event %s: %w", event.Action, err)
	}
	return nil
}

// History returns the most recent audit entries for an entity
func (s *AuditService) History(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByEntity(ctx, entityType, entityID, limit)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
