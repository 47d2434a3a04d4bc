package services

import "github.com/pkg/errors"

var (
	// ErrWrongState is returned when an operation is invalid for the current lifecycle state.
	ErrWrongState = errors.New("operation not allowed in current lottery state")
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("caller is not authorized")
	// ErrInsufficientPayment is returned when an entry pays less than the entrance fee.
	ErrInsufficientPayment = errors.New("payment below entrance fee")
	// ErrUnrecognizedRequest is returned when a randomness response does not match the outstanding request.
	ErrUnrecognizedRequest = errors.New("unrecognized randomness request")
	// ErrNoPlayers is returned when randomness arrives for a round without players.
	ErrNoPlayers = errors.New("no players in round")
	// ErrPriceFeedUnavailable is returned when the entrance fee cannot be computed.
	ErrPriceFeedUnavailable = errors.New("price feed unavailable")

	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientLink      = errors.New("insufficient LINK to pay randomness fee")
	ErrPlayerIndexOutOfRange = errors.New("player index out of range")
	ErrUnknownRequest        = errors.New("unknown randomness request")
	ErrRoundCancelled        = errors.New("round cancelled")
)
