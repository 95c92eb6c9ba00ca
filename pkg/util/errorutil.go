package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced by the core's operations.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeDuplicateMessage  = "DUPLICATE_MESSAGE"
	CodeSlaPolicyInvalid  = "SLA_POLICY_INVALID"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
	CodeIngestBusy        = "INGEST_BUSY"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidTransition reports an illegal approval-state change. The
// attempted transition had no side effects.
func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTransition, message, http.StatusConflict, details)
}

// NewDuplicateMessage flags a message that was already recorded. Callers
// treat it as a success no-op, not a failure.
func NewDuplicateMessage(messageID string) error {
	return NewDomainError(CodeDuplicateMessage, "message already recorded", http.StatusOK,
		map[string]any{"message_id": messageID})
}

func NewSlaPolicyInvalid(message string, details map[string]any) error {
	return NewDomainError(CodeSlaPolicyInvalid, message, http.StatusBadRequest, details)
}

// NewDeliveryFailed wraps a mail collaborator failure; the ticket stays
// APPROVED and the send may be retried.
func NewDeliveryFailed(err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    "response delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewIngestBusy reports that an ingestion pass is already in flight for the
// mailbox. Informational no-op, not a failure.
func NewIngestBusy(mailbox string) error {
	return NewDomainError(CodeIngestBusy, "an ingestion pass is already running", http.StatusAccepted,
		map[string]any{"mailbox": mailbox})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
