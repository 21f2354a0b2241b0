package ledger

import "errors"

var (
	// ErrNotAuthorized is returned when the caller is neither the owner
	// nor the delegated operator of the position.
	ErrNotAuthorized = errors.New("caller not authorized")

	// ErrPositionNotFound is returned for an unknown position id.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionNotEmpty is returned when burn is attempted while the
	// position still has liquidity settlement pending or owed balances.
	ErrPositionNotEmpty = errors.New("position not empty")

	// ErrDeadlinePassed is returned when a mint deadline has elapsed.
	ErrDeadlinePassed = errors.New("deadline passed")

	// ErrInvalidRange is returned for unordered tick boundaries.
	ErrInvalidRange = errors.New("invalid tick range")
)
