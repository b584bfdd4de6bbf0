package status

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyFinalized means finalize was called on a set that already has
	// a committed prize order. Caller bug, never surfaced to end users.
	ErrAlreadyFinalized = errors.New("lottery: prize order already finalized")

	ErrNotActiveHolder          = errors.New("queue: user is not the active turn holder")
	ErrTicketsNoLongerAvailable = errors.New("draw: selected tickets are no longer available")
	ErrInsufficientPoints       = errors.New("draw: insufficient points")
	ErrUnknownCommitment        = errors.New("draw: unknown or expired draw commitment")
	ErrSetNotAvailable          = errors.New("lottery: set is not open for drawing")
	ErrNotFound                 = errors.New("record not found")
)

// LockConflictError reports the first requested ticket index held by another
// user. The whole batch is rejected, no partial locks remain.
type LockConflictError struct {
	TicketIndex int
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("lock: ticket %d is held by another user", e.TicketIndex)
}

// IsLockConflict reports whether err wraps a LockConflictError.
func IsLockConflict(err error) bool {
	var lc *LockConflictError
	return errors.As(err, &lc)
}
