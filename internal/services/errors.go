package services

import (
	"errors"
	"fmt"
)

// ErrorCategory groups workflow error codes for the transport layer
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryNotFound   ErrorCategory = "not_found"
)

// ErrorCode identifies one workflow failure
type ErrorCode string

const (
	CodeDuplicateOpenRequest         ErrorCode = "DUPLICATE_OPEN_REQUEST"
	CodeActiveSubscriptionExists     ErrorCode = "ACTIVE_SUBSCRIPTION_EXISTS"
	CodeSlotFull                     ErrorCode = "SLOT_FULL"
	CodeInvalidDaySelection          ErrorCode = "INVALID_DAY_SELECTION"
	CodeAmountMismatch               ErrorCode = "AMOUNT_MISMATCH"
	CodeNotFound                     ErrorCode = "NOT_FOUND"
	CodeSlotNotFound                 ErrorCode = "SLOT_NOT_FOUND"
	CodeInvalidStateForPaymentAction ErrorCode = "INVALID_STATE_FOR_PAYMENT_ACTION"
	CodeAlreadyProcessed             ErrorCode = "ALREADY_PROCESSED"
	CodePaymentNotVerified           ErrorCode = "PAYMENT_NOT_VERIFIED"
	CodeInvalidStartDate             ErrorCode = "INVALID_START_DATE"
	CodePlanInactive                 ErrorCode = "PLAN_INACTIVE"
	CodeInvalidTransition            ErrorCode = "INVALID_TRANSITION"
	CodeReasonRequired               ErrorCode = "REASON_REQUIRED"
)

var codeCategories = map[ErrorCode]ErrorCategory{
	CodeDuplicateOpenRequest:         CategoryConflict,
	CodeActiveSubscriptionExists:     CategoryConflict,
	CodeSlotFull:                     CategoryConflict,
	CodeInvalidDaySelection:          CategoryValidation,
	CodeAmountMismatch:               CategoryValidation,
	CodeNotFound:                     CategoryNotFound,
	CodeSlotNotFound:                 CategoryNotFound,
	CodeInvalidStateForPaymentAction: CategoryConflict,
	CodeAlreadyProcessed:             CategoryConflict,
	CodePaymentNotVerified:           CategoryConflict,
	CodeInvalidStartDate:             CategoryValidation,
	CodePlanInactive:                 CategoryValidation,
	CodeInvalidTransition:            CategoryConflict,
	CodeReasonRequired:               CategoryValidation,
}

// WorkflowError is a typed business failure carrying structured context
type WorkflowError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any WorkflowError with the same code
func (e *WorkflowError) Is(target error) bool {
	var t *WorkflowError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Category returns the error's category
func (e *WorkflowError) Category() ErrorCategory {
	return codeCategories[e.Code]
}

// WithDetails returns a copy of the error carrying the given context
func (e *WorkflowError) WithDetails(details map[string]interface{}) *WorkflowError {
	return &WorkflowError{Code: e.Code, Message: e.Message, Details: details}
}

// WithMessage returns a copy of the error with a more specific message
func (e *WorkflowError) WithMessage(message string) *WorkflowError {
	return &WorkflowError{Code: e.Code, Message: message, Details: e.Details}
}

var (
	ErrDuplicateOpenRequest         = &WorkflowError{Code: CodeDuplicateOpenRequest, Message: "you already have a pending transport request"}
	ErrActiveSubscriptionExists     = &WorkflowError{Code: CodeActiveSubscriptionExists, Message: "you already have a current subscription; renewal opens 7 days before it ends"}
	ErrSlotFull                     = &WorkflowError{Code: CodeSlotFull, Message: "the selected slot is full"}
	ErrInvalidDaySelection          = &WorkflowError{Code: CodeInvalidDaySelection, Message: "invalid day selection"}
	ErrAmountMismatch               = &WorkflowError{Code: CodeAmountMismatch, Message: "paid amount does not match the expected amount"}
	ErrNotFound                     = &WorkflowError{Code: CodeNotFound, Message: "resource not found"}
	ErrSlotNotFound                 = &WorkflowError{Code: CodeSlotNotFound, Message: "schedule slot not found"}
	ErrInvalidStateForPaymentAction = &WorkflowError{Code: CodeInvalidStateForPaymentAction, Message: "payment can only be reviewed while the request is pending"}
	ErrAlreadyProcessed             = &WorkflowError{Code: CodeAlreadyProcessed, Message: "request has already been processed"}
	ErrPaymentNotVerified           = &WorkflowError{Code: CodePaymentNotVerified, Message: "payment must be verified before approval"}
	ErrInvalidStartDate             = &WorkflowError{Code: CodeInvalidStartDate, Message: "start date cannot be in the past"}
	ErrPlanInactive                 = &WorkflowError{Code: CodePlanInactive, Message: "the selected plan is not available"}
	ErrInvalidTransition            = &WorkflowError{Code: CodeInvalidTransition, Message: "status transition not allowed"}
	ErrReasonRequired               = &WorkflowError{Code: CodeReasonRequired, Message: "a reason is required"}
)

// AsWorkflowError extracts a WorkflowError from err
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
