package handlers

import (
	"errors"

	"github.com/pocketbase/pocketbase/apis"

	"kuji-system/internal/status"
)

// apiError maps service errors onto PocketBase API errors. Lock conflicts and
// consumed tickets come back as 409 so clients can refresh their selection.
func apiError(err error) error {
	var lc *status.LockConflictError
	switch {
	case errors.As(err, &lc):
		return apis.NewApiError(409, err.Error(), map[string]any{"ticket_index": lc.TicketIndex})
	case errors.Is(err, status.ErrTicketsNoLongerAvailable):
		return apis.NewApiError(409, "Selected tickets are no longer available", nil)
	case errors.Is(err, status.ErrNotActiveHolder):
		return apis.NewForbiddenError("It is not your turn", nil)
	case errors.Is(err, status.ErrInsufficientPoints):
		return apis.NewBadRequestError("Insufficient points", nil)
	case errors.Is(err, status.ErrUnknownCommitment):
		return apis.NewBadRequestError("Unknown or expired draw commitment", nil)
	case errors.Is(err, status.ErrSetNotAvailable):
		return apis.NewBadRequestError("Lottery is not open for drawing", nil)
	case errors.Is(err, status.ErrAlreadyFinalized):
		return apis.NewBadRequestError("Prize order is already finalized", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Record not found", nil)
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}
