package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/campusportal/transport-backend/internal/services"
	"github.com/campusportal/transport-backend/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the error body of every transport endpoint
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TransportWorkflow is the write side used by the transport handlers
type TransportWorkflow interface {
	Submit(ctx context.Context, cmd services.SubmitCommand) (*models.SubscriptionRequest, error)
	ResubmitProof(ctx context.Context, requestID, userID uuid.UUID, proof models.ProofUpload) error
	VerifyPayment(ctx context.Context, requestID, adminID uuid.UUID) error
	FlagPayment(ctx context.Context, requestID, adminID uuid.UUID, reason string) error
	Approve(ctx context.Context, cmd services.ApproveCommand) (*services.ApprovalResult, error)
	Reject(ctx context.Context, requestID, adminID uuid.UUID, reason string) error
	BulkApprove(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, startDate *time.Time) (*services.BulkResult, error)
	BulkReject(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, reason string) (*services.BulkRejectResult, error)
	CancelSubscription(ctx context.Context, cmd services.CancelCommand) (*models.Subscription, error)
}

// TransportQueries is the read side used by the transport handlers
type TransportQueries interface {
	ListSlotAvailability(ctx context.Context, routeID uuid.UUID) ([]models.SlotAvailability, error)
	Quote(ctx context.Context, q services.QuoteQuery) (models.PricingBreakdown, error)
	MyRequests(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SubscriptionRequest, error)
	MySubscription(ctx context.Context, userID uuid.UUID) (*models.SubscriptionDetails, error)
	ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.SubscriptionRequest, int, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*services.RequestDetails, error)
	Manifest(ctx context.Context, slotID uuid.UUID) ([]models.ManifestEntry, error)
	OpenProof(ctx context.Context, requestID uuid.UUID) (io.ReadCloser, *models.SubscriptionRequest, error)
}

// ExpiryRunner triggers the subscription expiry sweep on demand
type ExpiryRunner interface {
	RunExpiryNow(ctx context.Context) (services.ExpiryResult, error)
}

// statusForWorkflowError maps a workflow error to its HTTP status
func statusForWorkflowError(we *services.WorkflowError) int {
	switch we.Code {
	case services.CodePaymentNotVerified, services.CodeSlotFull:
		return http.StatusUnprocessableEntity
	}
	switch we.Category() {
	case services.CategoryValidation:
		return http.StatusUnprocessableEntity
	case services.CategoryConflict:
		return http.StatusConflict
	case services.CategoryNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorResponse. Untyped errors are logged and
// hidden behind a generic 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	if we, ok := services.AsWorkflowError(err); ok {
		status := statusForWorkflowError(we)
		c.JSON(status, ErrorResponse{
			Error:   string(we.Category()),
			Message: we.Message,
			Code:    string(we.Code),
			Details: we.Details,
		})
		return
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("Transport request failed")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An unexpected error occurred. Please try again later.",
		Code:    "INTERNAL_ERROR",
	})
}

// respondBindError writes a 400 for a malformed or invalid request body
func respondBindError(c *gin.Context, err error) {
	resp := ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request",
		Code:    "INVALID_REQUEST",
	}
	if fields, ok := validator.FieldErrors(err); ok {
		details := make(map[string]interface{}, len(fields))
		for field, tag := range fields {
			details[field] = tag
		}
		resp.Details = details
	} else {
		resp.Details = map[string]interface{}{"reason": err.Error()}
	}
	c.JSON(http.StatusBadRequest, resp)
}

func respondBadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Code:    code,
	})
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "User context not found",
		Code:    "MISSING_USER_CONTEXT",
	})
}

// uuidParam parses a path parameter, writing a 400 on failure
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, "INVALID_ID", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an optional id; empty input yields nil
func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseDate parses a YYYY-MM-DD date in loc; empty input yields nil
func parseDate(raw string, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(validator.DateLayout, raw, loc)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// pageParams reads limit and offset query parameters
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

// bindOptionalJSON binds a JSON body that may be absent
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
