package model

import "math/big"

// BalanceDelta is the signed net obligation for the two pool currencies
// produced by one engine interaction. Positive amounts are owed by the pool
// to the caller, negative amounts are owed by the caller to the pool. It is
// transient and never persisted past the enclosing atomic operation.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// ZeroDelta returns a delta of (0, 0).
func ZeroDelta() BalanceDelta {
	return BalanceDelta{Amount0: new(big.Int), Amount1: new(big.Int)}
}

// NewDelta builds a delta from the two signed amounts without copying.
func NewDelta(amount0, amount1 *big.Int) BalanceDelta {
	if amount0 == nil {
		amount0 = new(big.Int)
	}
	if amount1 == nil {
		amount1 = new(big.Int)
	}
	return BalanceDelta{Amount0: amount0, Amount1: amount1}
}

// Add returns the component-wise sum of d and other.
func (d BalanceDelta) Add(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(d.Amount0, other.Amount0),
		Amount1: new(big.Int).Add(d.Amount1, other.Amount1),
	}
}

// Sub returns the component-wise difference of d and other.
func (d BalanceDelta) Sub(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Sub(d.Amount0, other.Amount0),
		Amount1: new(big.Int).Sub(d.Amount1, other.Amount1),
	}
}

// Neg returns the component-wise negation.
func (d BalanceDelta) Neg() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Neg(d.Amount0),
		Amount1: new(big.Int).Neg(d.Amount1),
	}
}

// Clone returns a deep copy.
func (d BalanceDelta) Clone() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Set(d.Amount0),
		Amount1: new(big.Int).Set(d.Amount1),
	}
}

// IsZero reports whether both components are zero.
func (d BalanceDelta) IsZero() bool {
	return d.Amount0.Sign() == 0 && d.Amount1.Sign() == 0
}
