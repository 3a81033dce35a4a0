package controllers

import (
	"errors"
	"net/http"

	"github.com/yeremiapane/table-split-app/services"
)

var ErrNoPermission = &CustomError{"You do not have permission"}

type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

// statusForError maps service sentinels onto HTTP status codes so every
// controller reports the error taxonomy the same way.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidTable),
		errors.Is(err, services.ErrEmptyParticipants),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrOrderNotPayable),
		errors.Is(err, services.ErrUnknownGateway):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrChargeDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAlreadyProcessing),
		errors.Is(err, services.ErrSharesExist):
		return http.StatusConflict
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, services.ErrInvalidOrExpiredToken):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
