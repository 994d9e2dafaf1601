package handlers

import (
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/campusportal/transport-backend/internal/middleware"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/campusportal/transport-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransportAdminHandler serves the admin review surface
type TransportAdminHandler struct {
	workflow TransportWorkflow
	queries  TransportQueries
	expiry   ExpiryRunner
	loc      *time.Location
	logger   *logrus.Logger
}

// NewTransportAdminHandler creates a new TransportAdminHandler
func NewTransportAdminHandler(
	workflow TransportWorkflow,
	queries TransportQueries,
	expiry ExpiryRunner,
	loc *time.Location,
	logger *logrus.Logger,
) *TransportAdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TransportAdminHandler{
		workflow: workflow,
		queries:  queries,
		expiry:   expiry,
		loc:      loc,
		logger:   logger,
	}
}

// ListRequestsQuery filters the admin request listing
type ListRequestsQuery struct {
	Status        string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
	PaymentStatus string `form:"payment_status" binding:"omitempty,oneof=pending verified flagged"`
	RouteID       string `form:"route_id" binding:"omitempty,uuid"`
	SlotID        string `form:"slot_id" binding:"omitempty,uuid"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset        int    `form:"offset" binding:"omitempty,min=0"`
}

// ListRequests handles GET /api/v1/admin/transport/requests
func (h *TransportAdminHandler) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	filter := models.RequestFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status := models.RequestStatus(q.Status)
		filter.Status = &status
	}
	if q.PaymentStatus != "" {
		ps := models.PaymentStatus(q.PaymentStatus)
		filter.PaymentStatus = &ps
	}
	filter.RouteID, _ = optionalUUID(q.RouteID)
	filter.SlotID, _ = optionalUUID(q.SlotID)

	requests, total, err := h.queries.ListRequests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"total":    total,
		"limit":    q.Limit,
		"offset":   q.Offset,
	})
}

// GetRequest handles GET /api/v1/admin/transport/requests/:id
func (h *TransportAdminHandler) GetRequest(c *gin.Context) {
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	details, err := h.queries.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// DownloadProof handles GET /api/v1/admin/transport/requests/:id/proof
func (h *TransportAdminHandler) DownloadProof(c *gin.Context) {
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	rc, req, err := h.queries.OpenProof(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer rc.Close()

	name := path.Base(req.ProofPath)
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("inline", map[string]string{"filename": name}),
		"Cache-Control":       "private, no-store",
	})
}

// VerifyPayment handles POST /api/v1/admin/transport/requests/:id/verify-payment
func (h *TransportAdminHandler) VerifyPayment(c *gin.Context) {
	admin, requestID, ok := h.adminAndID(c)
	if !ok {
		return
	}

	if err := h.workflow.VerifyPayment(c.Request.Context(), requestID, admin.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Payment verified",
		"request_id":     requestID,
		"payment_status": models.PaymentStatusVerified,
	})
}

// FlagPaymentRequest is the body of a payment flag
type FlagPaymentRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// FlagPayment handles POST /api/v1/admin/transport/requests/:id/flag-payment
func (h *TransportAdminHandler) FlagPayment(c *gin.Context) {
	admin, requestID, ok := h.adminAndID(c)
	if !ok {
		return
	}

	var req FlagPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.workflow.FlagPayment(c.Request.Context(), requestID, admin.UserID, req.Reason); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Payment flagged",
		"request_id":     requestID,
		"payment_status": models.PaymentStatusFlagged,
	})
}

// ApproveBody is the optional body of an approval
type ApproveBody struct {
	StartDate string `json:"start_date" binding:"omitempty,ymd_date"`
}

// ApproveRequest handles POST /api/v1/admin/transport/requests/:id/approve
// @Summary Approve a transport request
// @Description Creates the subscription and reserves a seat, or waitlists it when the slot is full
// @Accept json
// @Produce json
// @Success 200 {object} services.ApprovalResult
// @Failure 409 {object} ErrorResponse "Already processed"
// @Failure 422 {object} ErrorResponse "Payment not verified or start date in the past"
// @Router /api/v1/admin/transport/requests/{id}/approve [post]
func (h *TransportAdminHandler) ApproveRequest(c *gin.Context) {
	admin, requestID, ok := h.adminAndID(c)
	if !ok {
		return
	}

	var req ApproveBody
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBindError(c, err)
		return
	}
	start, err := parseDate(req.StartDate, h.loc)
	if err != nil {
		respondBadRequest(c, "INVALID_DATE", "start_date must be YYYY-MM-DD")
		return
	}

	result, err := h.workflow.Approve(c.Request.Context(), services.ApproveCommand{
		RequestID: requestID,
		AdminID:   admin.UserID,
		StartDate: start,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RejectBody is the body of a rejection
type RejectBody struct {
	Reason string `json:"reason" binding:"required,min=5,max=500"`
}

// RejectRequest handles POST /api/v1/admin/transport/requests/:id/reject
func (h *TransportAdminHandler) RejectRequest(c *gin.Context) {
	admin, requestID, ok := h.adminAndID(c)
	if !ok {
		return
	}

	var req RejectBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.workflow.Reject(c.Request.Context(), requestID, admin.UserID, req.Reason); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Request rejected",
		"request_id": requestID,
		"status":     models.RequestStatusRejected,
	})
}

// BulkApproveRequest is the body of a bulk approval
type BulkApproveRequest struct {
	RequestIDs []uuid.UUID `json:"request_ids" binding:"required,min=1,max=100"`
	StartDate  string      `json:"start_date" binding:"omitempty,ymd_date"`
}

// BulkApprove handles POST /api/v1/admin/transport/requests/bulk-approve
func (h *TransportAdminHandler) BulkApprove(c *gin.Context) {
	admin, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	var req BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	start, err := parseDate(req.StartDate, h.loc)
	if err != nil {
		respondBadRequest(c, "INVALID_DATE", "start_date must be YYYY-MM-DD")
		return
	}

	result, err := h.workflow.BulkApprove(c.Request.Context(), req.RequestIDs, admin.UserID, start)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"admin_id":      admin.UserID,
		"success_count": result.SuccessCount,
		"failure_count": result.FailureCount,
	}).Info("Bulk approval processed")

	c.JSON(http.StatusOK, result)
}

// BulkRejectRequest is the body of a bulk rejection
type BulkRejectRequest struct {
	RequestIDs []uuid.UUID `json:"request_ids" binding:"required,min=1,max=100"`
	Reason     string      `json:"reason" binding:"required,min=5,max=500"`
}

// BulkReject handles POST /api/v1/admin/transport/requests/bulk-reject
func (h *TransportAdminHandler) BulkReject(c *gin.Context) {
	admin, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	var req BulkRejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.workflow.BulkReject(c.Request.Context(), req.RequestIDs, admin.UserID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SlotManifest handles GET /api/v1/admin/transport/slots/:id/manifest
func (h *TransportAdminHandler) SlotManifest(c *gin.Context) {
	slotID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.queries.Manifest(c.Request.Context(), slotID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slot_id": slotID,
		"riders":  entries,
		"count":   len(entries),
	})
}

// CancelSubscription handles POST /api/v1/admin/transport/subscriptions/:id/cancel
func (h *TransportAdminHandler) CancelSubscription(c *gin.Context) {
	admin, subID, ok := h.adminAndID(c)
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
		ActorID:        admin.UserID,
		AsAdmin:        true,
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

// RunExpiry handles POST /api/v1/admin/transport/cron/expire
func (h *TransportAdminHandler) RunExpiry(c *gin.Context) {
	admin, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	h.logger.WithField("admin_id", admin.UserID).Info("Manual subscription expiry triggered")

	result, err := h.expiry.RunExpiryNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Subscription expiry completed",
		"expired":     result.Expired,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

func (h *TransportAdminHandler) adminAndID(c *gin.Context) (middleware.UserContext, uuid.UUID, bool) {
	admin, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return middleware.UserContext{}, uuid.Nil, false
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return middleware.UserContext{}, uuid.Nil, false
	}
	return admin, id, true
}
