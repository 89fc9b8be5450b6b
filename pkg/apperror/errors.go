package apperror

import (
	"fmt"
	"net/http"
)

// revertPrefix matches the message an EVM client shows for a reverted call.
const revertPrefix = "VM Exception while processing transaction: revert "

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger reverts (LEDGER) ----

func ErrInsufficientFunds(err error) *AppError {
	return Wrap("LEDGER_001", revertPrefix+"insufficient funds", http.StatusPaymentRequired, err)
}

func ErrArithmeticOverflow(err error) *AppError {
	return Wrap("LEDGER_002", revertPrefix+"arithmetic overflow", http.StatusUnprocessableEntity, err)
}

// ---- Request validation (REQ) ----

// Validation returns a REQ_001 validation error.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest)
}

func ErrInvalidAccount(raw string) *AppError {
	return New("REQ_002", fmt.Sprintf("invalid account %q", raw), http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("REQ_003", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrPayloadTooLarge() *AppError {
	return New("REQ_004", "Request body too large", http.StatusRequestEntityTooLarge)
}

func ErrIdempotencyConflict() *AppError {
	return New("REQ_005", "Idempotency-Key was already used for a different request", http.StatusConflict)
}

// ---- Caller identity (AUTH) ----

func ErrMissingToken() *AppError {
	return New("AUTH_001", "Missing bearer token", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrJournalFailure(err error) *AppError {
	return Wrap("SYS_001", "Ledger journal unavailable", http.StatusInternalServerError, err)
}

func ErrServiceUnavailable(err error) *AppError {
	return Wrap("SYS_002", "Service unavailable", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_003 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_003", "Internal server error", http.StatusInternalServerError, err)
}
