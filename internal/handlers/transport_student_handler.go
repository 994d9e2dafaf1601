package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campusportal/transport-backend/internal/middleware"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/campusportal/transport-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ProofLimits bounds payment proof uploads
type ProofLimits struct {
	MaxBytes     int64
	AllowedMimes []string
}

// TransportStudentHandler serves the student side of transport subscriptions
type TransportStudentHandler struct {
	workflow TransportWorkflow
	queries  TransportQueries
	limits   ProofLimits
	loc      *time.Location
	logger   *logrus.Logger
}

// NewTransportStudentHandler creates a new TransportStudentHandler
func NewTransportStudentHandler(
	workflow TransportWorkflow,
	queries TransportQueries,
	limits ProofLimits,
	loc *time.Location,
	logger *logrus.Logger,
) *TransportStudentHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TransportStudentHandler{
		workflow: workflow,
		queries:  queries,
		limits:   limits,
		loc:      loc,
		logger:   logger,
	}
}

// SubmitRequestForm is the multipart body of a new request
type SubmitRequestForm struct {
	RouteID         string   `form:"route_id" binding:"required,uuid"`
	SlotID          string   `form:"slot_id" binding:"omitempty,uuid"`
	PlanID          string   `form:"plan_id" binding:"omitempty,uuid"`
	PlanType        string   `form:"plan_type" binding:"omitempty,plan_type"`
	SelectedDays    []string `form:"selected_days"`
	AmountPaid      string   `form:"amount_paid" binding:"required"`
	PaymentMethodID string   `form:"payment_method_id" binding:"omitempty,uuid"`
	PaidFromNumber  string   `form:"paid_from_number" binding:"omitempty,max=32"`
	PaidAt          string   `form:"paid_at" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// SubmitRequest handles POST /api/v1/transport/requests
// @Summary Submit a transport subscription request
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} models.SubscriptionRequest
// @Failure 409 {object} ErrorResponse "Duplicate request, current subscription or full slot"
// @Failure 422 {object} ErrorResponse "Amount mismatch or invalid day selection"
// @Router /api/v1/transport/requests [post]
func (h *TransportStudentHandler) SubmitRequest(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	var form SubmitRequestForm
	if err := c.ShouldBind(&form); err != nil {
		respondBindError(c, err)
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(form.AmountPaid))
	if err != nil || amount.IsNegative() {
		respondBadRequest(c, "INVALID_AMOUNT", "amount_paid must be a non-negative decimal")
		return
	}

	routeID, err := uuid.Parse(form.RouteID)
	if err != nil {
		respondBadRequest(c, "INVALID_ID", "Invalid route_id")
		return
	}
	// format already checked by the binding tags
	slotID, _ := optionalUUID(form.SlotID)
	planID, _ := optionalUUID(form.PlanID)
	methodID, _ := optionalUUID(form.PaymentMethodID)

	var paidAt *time.Time
	if form.PaidAt != "" {
		t, _ := time.Parse(time.RFC3339, form.PaidAt)
		paidAt = &t
	}
	var paidFrom *string
	if v := strings.TrimSpace(form.PaidFromNumber); v != "" {
		paidFrom = &v
	}

	proof, closer, ok := h.readProof(c)
	if !ok {
		return
	}
	defer closer.Close()

	req, err := h.workflow.Submit(c.Request.Context(), services.SubmitCommand{
		UserID:          userCtx.UserID,
		RouteID:         routeID,
		SlotID:          slotID,
		PlanID:          planID,
		PlanType:        models.PlanType(form.PlanType),
		SelectedDays:    splitDays(form.SelectedDays),
		AmountPaid:      amount,
		PaymentMethodID: methodID,
		PaidFromNumber:  paidFrom,
		PaidAt:          paidAt,
		Proof:           proof,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Transport request submitted",
		"request": req,
	})
}

// ResubmitProof handles POST /api/v1/transport/requests/:id/proof
func (h *TransportStudentHandler) ResubmitProof(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	proof, closer, ok := h.readProof(c)
	if !ok {
		return
	}
	defer closer.Close()

	if err := h.workflow.ResubmitProof(c.Request.Context(), requestID, userCtx.UserID, proof); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment proof uploaded"})
}

// ListMyRequests handles GET /api/v1/transport/requests
func (h *TransportStudentHandler) ListMyRequests(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	limit, offset := pageParams(c)
	requests, err := h.queries.MyRequests(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetMySubscription handles GET /api/v1/transport/subscription
func (h *TransportStudentHandler) GetMySubscription(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	sub, err := h.queries.MySubscription(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// QuoteRequest is the body of a price quote
type QuoteRequest struct {
	RouteID      uuid.UUID  `json:"route_id" binding:"required"`
	PlanID       *uuid.UUID `json:"plan_id"`
	PlanType     string     `json:"plan_type" binding:"omitempty,plan_type"`
	SelectedDays []string   `json:"selected_days" binding:"omitempty,max=7,dive,weekday"`
}

// Quote handles POST /api/v1/transport/quote
func (h *TransportStudentHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.PlanID == nil && req.PlanType == "" {
		respondBadRequest(c, "INVALID_REQUEST", "plan_id or plan_type is required")
		return
	}

	breakdown, err := h.queries.Quote(c.Request.Context(), services.QuoteQuery{
		RouteID:      req.RouteID,
		PlanID:       req.PlanID,
		PlanType:     models.PlanType(req.PlanType),
		SelectedDays: splitDays(req.SelectedDays),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": breakdown})
}

// ListRouteSlots handles GET /api/v1/transport/routes/:id/slots
func (h *TransportStudentHandler) ListRouteSlots(c *gin.Context) {
	routeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	slots, err := h.queries.ListSlotAvailability(c.Request.Context(), routeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"route_id": routeID,
		"slots":    slots,
	})
}

// CancelRequest is the optional body of a cancellation
type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CancelSubscription handles POST /api/v1/transport/subscriptions/:id/cancel
func (h *TransportStudentHandler) CancelSubscription(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}
	subID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	sub, err := h.workflow.CancelSubscription(c.Request.Context(), services.CancelCommand{
		SubscriptionID: subID,
		ActorID:        userCtx.UserID,
		Reason:         req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Subscription cancelled",
		"subscription": sub,
	})
}

// readProof validates the "proof" multipart file by size and sniffed content
// type. On failure the response is already written.
func (h *TransportStudentHandler) readProof(c *gin.Context) (models.ProofUpload, io.Closer, bool) {
	header, err := c.FormFile("proof")
	if err != nil {
		respondBadRequest(c, "PROOF_REQUIRED", "payment proof file is required")
		return models.ProofUpload{}, nil, false
	}
	if h.limits.MaxBytes > 0 && header.Size > h.limits.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "validation",
			Message: fmt.Sprintf("payment proof exceeds %d KB", h.limits.MaxBytes/1024),
			Code:    "PROOF_TOO_LARGE",
			Details: map[string]interface{}{"max_bytes": h.limits.MaxBytes, "size": header.Size},
		})
		return models.ProofUpload{}, nil, false
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("failed to open proof upload: %w", err))
		return models.ProofUpload{}, nil, false
	}

	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	contentType := http.DetectContentType(head[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = file.Close()
		respondError(c, h.logger, fmt.Errorf("failed to rewind proof upload: %w", err))
		return models.ProofUpload{}, nil, false
	}

	if !mimeAllowed(contentType, h.limits.AllowedMimes) {
		_ = file.Close()
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
			Error:   "validation",
			Message: "payment proof must be one of: " + strings.Join(h.limits.AllowedMimes, ", "),
			Code:    "UNSUPPORTED_PROOF_TYPE",
			Details: map[string]interface{}{"content_type": contentType},
		})
		return models.ProofUpload{}, nil, false
	}

	return models.ProofUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     file,
	}, file, true
}

func mimeAllowed(contentType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, a := range allowed {
		if strings.EqualFold(base, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

// splitDays accepts repeated fields and comma separated values
func splitDays(raw []string) []models.Weekday {
	var days []models.Weekday
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if d, ok := models.ParseWeekday(part); ok {
				days = append(days, d)
				continue
			}
			days = append(days, models.Weekday(part))
		}
	}
	return days
}
