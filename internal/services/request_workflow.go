package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusportal/transport-backend/internal/database"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WorkflowDeps are the collaborators of RequestWorkflow
type WorkflowDeps struct {
	Tx            TxRunner
	Requests      RequestRepository
	Subscriptions SubscriptionRepository
	Slots         SlotRepository
	Catalog       CatalogRepository
	Ledger        *CapacityLedger
	Renewal       *RenewalPolicy
	Pricing       *PricingService
	Proofs        ProofStore
	Notifier      NotificationSink
	Audit         AuditSink
	Clock         Clock
	Logger        *logrus.Logger
}

// RequestWorkflow owns the lifecycle of transport subscription requests
type RequestWorkflow struct {
	tx            TxRunner
	requests      RequestRepository
	subscriptions SubscriptionRepository
	slots         SlotRepository
	catalog       CatalogRepository
	ledger        *CapacityLedger
	renewal       *RenewalPolicy
	pricing       *PricingService
	proofs        ProofStore
	notifier      NotificationSink
	audit         AuditSink
	clock         Clock
	logger        *logrus.Logger
}

// NewRequestWorkflow creates a new RequestWorkflow
func NewRequestWorkflow(deps WorkflowDeps) *RequestWorkflow {
	return &RequestWorkflow{
		tx:            deps.Tx,
		requests:      deps.Requests,
		subscriptions: deps.Subscriptions,
		slots:         deps.Slots,
		catalog:       deps.Catalog,
		ledger:        deps.Ledger,
		renewal:       deps.Renewal,
		pricing:       deps.Pricing,
		proofs:        deps.Proofs,
		notifier:      deps.Notifier,
		audit:         deps.Audit,
		clock:         deps.Clock,
		logger:        deps.Logger,
	}
}

// SubmitCommand is a student's request submission
type SubmitCommand struct {
	UserID          uuid.UUID
	RouteID         uuid.UUID
	SlotID          *uuid.UUID
	PlanID          *uuid.UUID
	PlanType        models.PlanType
	SelectedDays    []models.Weekday
	AmountPaid      decimal.Decimal
	PaymentMethodID *uuid.UUID
	PaidFromNumber  *string
	PaidAt          *time.Time
	Proof           models.ProofUpload
}

// Submit validates and stores a new pending request
func (w *RequestWorkflow) Submit(ctx context.Context, cmd SubmitCommand) (*models.SubscriptionRequest, error) {
	log := w.logger.WithFields(logrus.Fields{"user_id": cmd.UserID, "route_id": cmd.RouteID})

	pending, err := w.requests.HasPending(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateOpenRequest
	}

	decision, err := w.renewal.CanSubmitNewRequest(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		details := map[string]interface{}{}
		if sub := decision.Subscription; sub != nil {
			details["subscription_id"] = sub.ID
			details["status"] = sub.Status
			details["end_date"] = sub.EndDate.Format("2006-01-02")
			details["days_left"] = decision.DaysLeft
		}
		return nil, ErrActiveSubscriptionExists.WithDetails(details)
	}

	priced, err := w.pricing.Price(ctx, QuoteQuery{
		RouteID:      cmd.RouteID,
		PlanID:       cmd.PlanID,
		PlanType:     cmd.PlanType,
		SelectedDays: cmd.SelectedDays,
	})
	if err != nil {
		return nil, err
	}

	if cmd.SlotID != nil {
		if err := w.checkSlotOpen(ctx, *cmd.SlotID, cmd.RouteID); err != nil {
			return nil, err
		}
	}

	if err := VerifyPaidAmount(priced.Breakdown.FinalAmount, cmd.AmountPaid); err != nil {
		return nil, err
	}

	proofPath, err := w.proofs.Store(ctx, cmd.UserID, cmd.Proof)
	if err != nil {
		return nil, fmt.Errorf("failed to store payment proof: %w", err)
	}

	now := w.clock.Now()
	req := &models.SubscriptionRequest{
		ID:              uuid.New(),
		UserID:          cmd.UserID,
		RouteID:         cmd.RouteID,
		SlotID:          cmd.SlotID,
		PlanID:          cmd.PlanID,
		PlanType:        priced.Breakdown.PlanType,
		SelectedDays:    models.WeekdayList(cmd.SelectedDays),
		Status:          models.RequestStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		AmountExpected:  priced.Breakdown.FinalAmount,
		AmountPaid:      cmd.AmountPaid.Round(2),
		PaymentMethodID: cmd.PaymentMethodID,
		PaidFromNumber:  cmd.PaidFromNumber,
		PaidAt:          cmd.PaidAt,
		ProofPath:       proofPath,
		PricingSnapshot: models.PricingSnapshot{
			PricingBreakdown: priced.Breakdown,
			RouteID:          cmd.RouteID,
			SlotID:           cmd.SlotID,
			SelectedDays:     models.WeekdayList(cmd.SelectedDays),
			ComputedAt:       now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = w.tx.WithinTx(ctx, func(ctx context.Context) error {
		return w.requests.Create(ctx, req)
	})
	if err != nil {
		w.safeDeleteProof(ctx, proofPath)
		if errors.Is(err, database.ErrPendingRequestExists) {
			return nil, ErrDuplicateOpenRequest
		}
		return nil, err
	}

	log.WithField("request_id", req.ID).Info("Transport request submitted")
	w.safeNotify(ctx, req.UserID, models.NotificationRequestSubmitted,
		"Transport request received",
		"Your transport subscription request was received and is awaiting payment review.",
		requestLink(req.ID))

	return req, nil
}

func (w *RequestWorkflow) checkSlotOpen(ctx context.Context, slotID, routeID uuid.UUID) error {
	slot, err := w.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	if slot == nil || slot.RouteID != routeID || !slot.IsActive {
		return ErrSlotNotFound.WithDetails(map[string]interface{}{"slot_id": slotID})
	}

	remaining, err := w.ledger.Remaining(ctx, slotID)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return ErrSlotFull.WithDetails(map[string]interface{}{
			"slot_id":            slotID,
			"capacity_remaining": 0,
			"time":               slot.Time,
			"day":                slot.DayName(),
		})
	}
	return nil
}

// VerifyPayment marks a pending request's payment verified. Verifying an
// already verified payment succeeds without changing anything.
func (w *RequestWorkflow) VerifyPayment(ctx context.Context, requestID, adminID uuid.UUID) error {
	updated, err := w.requests.MarkPaymentVerified(ctx, requestID, adminID, w.clock.Now())
	if err != nil {
		return err
	}

	if !updated {
		req, err := w.requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrNotFound.WithMessage("request not found")
		}
		if req.Status == models.RequestStatusPending && req.PaymentStatus == models.PaymentStatusVerified {
			return nil
		}
		return ErrInvalidStateForPaymentAction.WithDetails(map[string]interface{}{
			"status":         req.Status,
			"payment_status": req.PaymentStatus,
		})
	}

	req, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{"request_id": requestID, "admin_id": adminID}).Info("Transport payment verified")
	if req != nil {
		w.safeNotify(ctx, req.UserID, models.NotificationPaymentVerified,
			"Payment verified",
			"Your payment for the transport subscription has been verified. Your request is awaiting approval.",
			requestLink(requestID))
	}
	w.safeAudit(ctx, &adminID, models.AuditActionPaymentVerified, models.AuditEntityRequest, requestID, nil)
	return nil
}

// FlagPayment marks a pending request's payment as problematic and asks the
// student for a new proof
func (w *RequestWorkflow) FlagPayment(ctx context.Context, requestID, adminID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}

	updated, err := w.requests.MarkPaymentFlagged(ctx, requestID, reason, w.clock.Now())
	if err != nil {
		return err
	}

	if !updated {
		req, err := w.requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrNotFound.WithMessage("request not found")
		}
		return ErrInvalidStateForPaymentAction.WithDetails(map[string]interface{}{
			"status":         req.Status,
			"payment_status": req.PaymentStatus,
		})
	}

	req, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{"request_id": requestID, "admin_id": adminID}).Info("Transport payment flagged")
	if req != nil {
		w.safeNotify(ctx, req.UserID, models.NotificationPaymentFlagged,
			"Payment needs attention",
			"Your payment proof could not be verified: "+reason+". Please upload a new proof.",
			requestLink(requestID))
	}
	w.safeAudit(ctx, &adminID, models.AuditActionPaymentFlagged, models.AuditEntityRequest, requestID,
		map[string]interface{}{"reason": reason})
	return nil
}

// ResubmitProof replaces the proof of the student's flagged request and
// returns its payment to review
func (w *RequestWorkflow) ResubmitProof(ctx context.Context, requestID, userID uuid.UUID, proof models.ProofUpload) error {
	req, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.UserID != userID {
		return ErrNotFound.WithMessage("request not found")
	}
	if req.Status != models.RequestStatusPending || !req.PaymentStatus.CanTransitionTo(models.PaymentStatusPending) {
		return ErrInvalidStateForPaymentAction.WithDetails(map[string]interface{}{
			"status":         req.Status,
			"payment_status": req.PaymentStatus,
		})
	}

	newPath, err := w.proofs.Store(ctx, userID, proof)
	if err != nil {
		return fmt.Errorf("failed to store payment proof: %w", err)
	}

	updated, err := w.requests.ReplaceProof(ctx, requestID, userID, newPath, w.clock.Now())
	if err != nil {
		w.safeDeleteProof(ctx, newPath)
		return err
	}
	if !updated {
		w.safeDeleteProof(ctx, newPath)
		return ErrInvalidStateForPaymentAction
	}

	if req.ProofPath != newPath {
		w.safeDeleteProof(ctx, req.ProofPath)
	}

	w.logger.WithField("request_id", requestID).Info("Transport payment proof resubmitted")
	return nil
}

// ApproveCommand is an admin approval
type ApproveCommand struct {
	RequestID uuid.UUID
	AdminID   uuid.UUID
	StartDate *time.Time
}

// ApprovalResult describes the subscription created by an approval
type ApprovalResult struct {
	RequestID         uuid.UUID                 `json:"request_id"`
	SubscriptionID    uuid.UUID                 `json:"subscription_id"`
	Status            models.SubscriptionStatus `json:"status"`
	StartDate         time.Time                 `json:"start_date"`
	EndDate           time.Time                 `json:"end_date"`
	ReservationID     *uuid.UUID                `json:"reservation_id,omitempty"`
	CapacityRemaining *int                      `json:"capacity_remaining,omitempty"`
}

// Approve creates the subscription for a verified pending request, claiming a
// seat when the request names a slot. Subscription, reservation and request
// update commit together or not at all.
func (w *RequestWorkflow) Approve(ctx context.Context, cmd ApproveCommand) (*ApprovalResult, error) {
	start, err := w.resolveStartDate(cmd.StartDate)
	if err != nil {
		return nil, err
	}
	return w.approve(ctx, cmd.RequestID, cmd.AdminID, start)
}

func (w *RequestWorkflow) resolveStartDate(requested *time.Time) (time.Time, error) {
	now := w.clock.Now()
	today := dateOf(now)
	if requested == nil {
		return today, nil
	}

	start := dateOf(requested.In(now.Location()))
	if start.Before(today) {
		return time.Time{}, ErrInvalidStartDate.WithDetails(map[string]interface{}{
			"start_date": start.Format("2006-01-02"),
			"today":      today.Format("2006-01-02"),
		})
	}
	return start, nil
}

func (w *RequestWorkflow) approve(ctx context.Context, requestID, adminID uuid.UUID, start time.Time) (*ApprovalResult, error) {
	var (
		result *ApprovalResult
		userID uuid.UUID
	)

	err := w.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := w.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrNotFound.WithMessage("request not found")
		}
		if !req.Status.CanTransitionTo(models.RequestStatusApproved) {
			return ErrAlreadyProcessed.WithDetails(map[string]interface{}{"status": req.Status})
		}
		if req.PaymentStatus != models.PaymentStatusVerified {
			return ErrPaymentNotVerified.WithDetails(map[string]interface{}{"payment_status": req.PaymentStatus})
		}

		settings, err := w.catalog.GetSettings(ctx)
		if err != nil {
			return err
		}
		if settings == nil {
			return errors.New("transport settings not configured")
		}

		weeks := settings.WeeksFor(req.PlanType)
		now := w.clock.Now()
		sub := &models.Subscription{
			ID:             uuid.New(),
			RequestID:      req.ID,
			UserID:         req.UserID,
			RouteID:        req.RouteID,
			SlotID:         req.SlotID,
			PlanID:         req.PlanID,
			PlanType:       req.PlanType,
			SelectedDays:   req.SelectedDays,
			Status:         models.SubscriptionStatusActive,
			StartDate:      start,
			EndDate:        start.AddDate(0, 0, weeks*7-1),
			AmountExpected: req.AmountExpected,
			ApprovedBy:     adminID,
			ApprovedAt:     now,
		}
		if req.SlotID != nil {
			// The reservation references the subscription, so the row goes in
			// first as waitlisted and is promoted once a seat is claimed.
			sub.Status = models.SubscriptionStatusWaitlisted
		}

		if err := w.subscriptions.Create(ctx, sub); err != nil {
			return err
		}

		result = &ApprovalResult{
			RequestID:      req.ID,
			SubscriptionID: sub.ID,
			Status:         sub.Status,
			StartDate:      sub.StartDate,
			EndDate:        sub.EndDate,
		}

		if req.SlotID != nil {
			reserve, err := w.ledger.TryReserve(ctx, *req.SlotID, sub.ID)
			if err != nil {
				return err
			}
			remaining := reserve.CapacityRemaining
			if remaining < 0 {
				remaining = 0
			}
			result.CapacityRemaining = &remaining

			if reserve.Outcome == OutcomeReserved {
				promoted, err := w.subscriptions.UpdateStatus(ctx, sub.ID,
					models.SubscriptionStatusWaitlisted, models.SubscriptionStatusActive, nil, now)
				if err != nil {
					return err
				}
				if !promoted {
					return fmt.Errorf("failed to activate subscription %s", sub.ID)
				}
				result.Status = models.SubscriptionStatusActive
				result.ReservationID = &reserve.Reservation.ID
			}
		}

		approved, err := w.requests.MarkApproved(ctx, req.ID, adminID, now)
		if err != nil {
			return err
		}
		if !approved {
			return ErrAlreadyProcessed
		}

		userID = req.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"request_id":      requestID,
		"subscription_id": result.SubscriptionID,
		"admin_id":        adminID,
		"status":          result.Status,
	}
	if result.CapacityRemaining != nil {
		fields["capacity_remaining"] = *result.CapacityRemaining
	}
	w.logger.WithFields(fields).Info("Transport request approved")

	if result.Status == models.SubscriptionStatusActive {
		w.safeNotify(ctx, userID, models.NotificationRequestApproved,
			"Transport request approved",
			fmt.Sprintf("Your subscription is active from %s to %s.", result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02")),
			subscriptionLink)
	} else {
		w.safeNotify(ctx, userID, models.NotificationRequestWaitlisted,
			"Transport request waitlisted",
			"Your request was approved but the selected slot is full. You are on the waitlist.",
			subscriptionLink)
	}

	details := map[string]interface{}{
		"subscription_id":     result.SubscriptionID,
		"subscription_status": result.Status,
		"start_date":          result.StartDate.Format("2006-01-02"),
		"end_date":            result.EndDate.Format("2006-01-02"),
	}
	if result.CapacityRemaining != nil {
		details["capacity_remaining"] = *result.CapacityRemaining
	}
	w.safeAudit(ctx, &adminID, models.AuditActionRequestApproved, models.AuditEntityRequest, requestID, details)

	return result, nil
}

// Reject closes a pending request with a reason
func (w *RequestWorkflow) Reject(ctx context.Context, requestID, adminID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}

	rejected, err := w.requests.MarkRejected(ctx, requestID, adminID, reason, w.clock.Now())
	if err != nil {
		return err
	}

	req, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrNotFound.WithMessage("request not found")
	}
	if !rejected {
		return ErrAlreadyProcessed.WithDetails(map[string]interface{}{"status": req.Status})
	}

	w.logger.WithFields(logrus.Fields{"request_id": requestID, "admin_id": adminID}).Info("Transport request rejected")
	w.notifyRejected(ctx, req.UserID, requestID, reason)
	w.safeAudit(ctx, &adminID, models.AuditActionRequestRejected, models.AuditEntityRequest, requestID,
		map[string]interface{}{"reason": reason})
	return nil
}

func (w *RequestWorkflow) notifyRejected(ctx context.Context, userID, requestID uuid.UUID, reason string) {
	w.safeNotify(ctx, userID, models.NotificationRequestRejected,
		"Transport request rejected",
		"Your transport request was rejected: "+reason,
		requestLink(requestID))
}

// Bulk item outcomes
const (
	BulkOutcomeSkipped = "skipped"
	BulkOutcomeFailed  = "failed"
)

// BulkItemResult is the outcome of one id in a bulk call
type BulkItemResult struct {
	RequestID      uuid.UUID  `json:"request_id"`
	Outcome        string     `json:"outcome"` // active, waitlisted, rejected, skipped, failed
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	ErrorCode      ErrorCode  `json:"error_code,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// BulkResult summarizes a bulk call
type BulkResult struct {
	Results      []BulkItemResult `json:"results"`
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"` // includes skipped ids
	SkippedCount int              `json:"skipped_count"`
}

// BulkApprove approves each id in its own transaction. Ids that are no longer
// pending are skipped; one failure never rolls back the others.
func (w *RequestWorkflow) BulkApprove(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, startDate *time.Time) (*BulkResult, error) {
	start, err := w.resolveStartDate(startDate)
	if err != nil {
		return nil, err
	}

	out := &BulkResult{Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range uniqueIDs(ids) {
		item := BulkItemResult{RequestID: id}

		res, err := w.approve(ctx, id, adminID, start)
		switch {
		case err == nil:
			item.Outcome = string(res.Status)
			item.SubscriptionID = &res.SubscriptionID
			out.SuccessCount++
		case errors.Is(err, ErrAlreadyProcessed):
			item.Outcome = BulkOutcomeSkipped
			item.ErrorCode = CodeAlreadyProcessed
			out.SkippedCount++
			out.FailureCount++
		default:
			item.Outcome = BulkOutcomeFailed
			if we, ok := AsWorkflowError(err); ok {
				item.ErrorCode = we.Code
				item.Message = we.Message
			} else {
				item.Message = "internal error"
				w.logger.WithFields(logrus.Fields{"request_id": id, "error": err}).Error("Bulk approval item failed")
			}
			out.FailureCount++
		}

		out.Results = append(out.Results, item)
	}

	return out, nil
}

// BulkRejectResult summarizes a bulk rejection
type BulkRejectResult struct {
	ProcessedCount int         `json:"processed_count"`
	ProcessedIDs   []uuid.UUID `json:"processed_ids"`
	SkippedIDs     []uuid.UUID `json:"skipped_ids"`
}

// BulkReject rejects every listed request that is still pending in a single
// statement; the rest are skipped
func (w *RequestWorkflow) BulkReject(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, reason string) (*BulkRejectResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	ids = uniqueIDs(ids)
	processed, err := w.requests.BulkReject(ctx, ids, adminID, reason, w.clock.Now())
	if err != nil {
		return nil, err
	}

	done := make(map[uuid.UUID]bool, len(processed))
	out := &BulkRejectResult{ProcessedIDs: []uuid.UUID{}, SkippedIDs: []uuid.UUID{}}
	for _, p := range processed {
		done[p.ID] = true
		out.ProcessedIDs = append(out.ProcessedIDs, p.ID)
		w.notifyRejected(ctx, p.UserID, p.ID, reason)
		w.safeAudit(ctx, &adminID, models.AuditActionRequestRejected, models.AuditEntityRequest, p.ID,
			map[string]interface{}{"reason": reason, "bulk": true})
	}
	for _, id := range ids {
		if !done[id] {
			out.SkippedIDs = append(out.SkippedIDs, id)
		}
	}
	out.ProcessedCount = len(out.ProcessedIDs)

	w.logger.WithFields(logrus.Fields{
		"admin_id":  adminID,
		"processed": out.ProcessedCount,
		"skipped":   len(out.SkippedIDs),
	}).Info("Transport requests bulk rejected")

	return out, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
