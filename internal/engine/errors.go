package engine

import "errors"

var (
	// ErrAlreadyLocked is returned when an unlock is attempted, or a
	// direct mutation (InitializePool, Donate, Fund) is made, while an
	// unlock window is open. Inside a window the *Lock capability is the
	// only mutation path; anything else would be discarded by a rollback.
	ErrAlreadyLocked = errors.New("engine already unlocked")

	// ErrNotLocked is returned when a lock capability is used outside its
	// unlock window.
	ErrNotLocked = errors.New("engine not unlocked")

	// ErrCurrencyNotSettled is returned when the callback leaves a nonzero
	// net delta for any touched currency.
	ErrCurrencyNotSettled = errors.New("currency not settled")

	// ErrLockFailure is the synthesized failure signal used when a lock
	// callback fails without providing a reason of its own.
	ErrLockFailure = errors.New("lock failure")

	// ErrPoolNotInitialized is returned for operations on an unknown pool.
	ErrPoolNotInitialized = errors.New("pool not initialized")

	// ErrPoolAlreadyInitialized is returned when initializing a pool twice.
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")

	// ErrInsufficientBalance is returned when a settlement tries to move
	// more funds than the payer holds.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientCredit is returned when burning or transferring more
	// internal credit than the holder owns.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrNoLiquidity is returned when donating fees to a pool with no
	// active liquidity to attribute them to.
	ErrNoLiquidity = errors.New("no active liquidity")
)
