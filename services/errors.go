package services

import "errors"

// Validation errors. Rejected before any mutation.
var (
	ErrInvalidTable      = errors.New("invalid table or restaurant")
	ErrEmptyParticipants = errors.New("participant list is empty")
	ErrAmountMismatch    = errors.New("share amounts do not match order total")
	ErrOrderNotPayable   = errors.New("order is not ready for settlement")
)

// Authorization errors.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotOwner         = errors.New("only the session owner may perform this action")
)

// State-conflict errors. The caller should re-sync, not retry blindly.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyProcessing = errors.New("a charge for this share is already in flight")
	ErrSharesExist       = errors.New("shares already created for this order")
)

// Not-found / expired.
var (
	ErrInvalidOrExpiredToken = errors.New("invalid or expired payment token")
	ErrSessionNotFound       = errors.New("session not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrMemberNotFound        = errors.New("session member not found")
)

// Gateway outcomes.
var (
	ErrUnknownGateway = errors.New("unknown payment gateway provider")
	ErrChargeDeclined = errors.New("charge declined by gateway")
)
