package auction

import "errors"

var (
	// ErrInvalidConfiguration is returned for bad parameters or for any
	// configuration change after the auction started.
	ErrInvalidConfiguration = errors.New("auction: invalid configuration")

	// ErrUnauthorized is returned when a privileged operation is attempted
	// by anyone but the configuring identity, or when the configuring
	// identity tries to deposit.
	ErrUnauthorized = errors.New("auction: unauthorized")

	// ErrInvalidParticipant is returned for the null identity.
	ErrInvalidParticipant = errors.New("auction: invalid participant")

	ErrNotInAccumulatingPhase = errors.New("auction: not in accumulating phase")
	ErrNotInClosedPhase       = errors.New("auction: not in closed phase")

	// ErrCapExceeded is returned when a deposit would bring the aggregate
	// total to or above the current dynamic cap.
	ErrCapExceeded = errors.New("auction: deposit would reach the current cap")

	ErrNothingToClaim    = errors.New("auction: nothing to claim")
	ErrAlreadyClaimed    = errors.New("auction: settlement already claimed")
	ErrNothingToWithdraw = errors.New("auction: nothing to withdraw")

	// ErrTransferFailed wraps a collaborator transfer failure. The
	// accounting change that preceded the transfer has been rolled back.
	ErrTransferFailed = errors.New("auction: transfer failed")

	// ErrDivisionByZero is returned when the supply or the final price is
	// zero where a quotient is required.
	ErrDivisionByZero = errors.New("auction: division by zero")
)
