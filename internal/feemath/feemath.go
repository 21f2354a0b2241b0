package feemath

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Q128 is the fixed-point scale of the fee-growth accumulators: fees per
// unit of liquidity are tracked as X128 values.
var Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// MaxUint128 is the ceiling for position liquidity.
var MaxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// FeesOwed converts accumulator movement into owed token amounts:
// (now - last) * liquidity / 2^128, truncated toward zero, per currency.
//
// The subtraction deliberately wraps modulo 2^256. The accumulators are
// monotone but overflow by design, and the wraparound cancels as long as
// the liquidity did not change between the two observed snapshots.
func FeesOwed(now0, now1, last0, last1, liquidity *uint256.Int) (*uint256.Int, *uint256.Int) {
	owed0 := feeDelta(now0, last0, liquidity)
	owed1 := feeDelta(now1, last1, liquidity)
	return owed0, owed1
}

var maxUint256Big = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func feeDelta(now, last, liquidity *uint256.Int) *uint256.Int {
	if liquidity.IsZero() || now.Eq(last) {
		return new(uint256.Int)
	}
	delta := new(uint256.Int).Sub(now, last)
	// delta * liquidity can exceed 256 bits; the quotient is reduced
	// modulo 2^256 like every other accumulator quantity.
	prod := new(big.Int).Mul(delta.ToBig(), liquidity.ToBig())
	prod.Rsh(prod, 128)
	prod.And(prod, maxUint256Big)
	out, _ := uint256.FromBig(prod)
	return out
}

// FeeGrowthInside derives the fee growth accumulated inside a tick range
// from the pool's global accumulator and the two boundary ticks' outside
// accumulators. The three-way case split follows the position of the
// current tick relative to the range; all subtraction wraps modulo 2^256.
func FeeGrowthInside(
	global0, global1,
	lowerOutside0, lowerOutside1,
	upperOutside0, upperOutside1 *uint256.Int,
	tickCurrent, tickLower, tickUpper int32,
) (*uint256.Int, *uint256.Int) {
	inside0 := new(uint256.Int)
	inside1 := new(uint256.Int)
	switch {
	case tickCurrent < tickLower:
		inside0.Sub(lowerOutside0, upperOutside0)
		inside1.Sub(lowerOutside1, upperOutside1)
	case tickCurrent >= tickUpper:
		inside0.Sub(upperOutside0, lowerOutside0)
		inside1.Sub(upperOutside1, lowerOutside1)
	default:
		inside0.Sub(global0, lowerOutside0)
		inside0.Sub(inside0, upperOutside0)
		inside1.Sub(global1, lowerOutside1)
		inside1.Sub(inside1, upperOutside1)
	}
	return inside0, inside1
}

// AddLiquidityDelta applies a signed delta to an unsigned liquidity value.
// It rejects results that go negative or exceed the uint128 ceiling.
func AddLiquidityDelta(liquidity *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	next := new(big.Int).Add(liquidity.ToBig(), delta)
	if next.Sign() < 0 {
		return nil, fmt.Errorf("liquidity underflow: %s + %s", liquidity, delta)
	}
	out, overflow := uint256.FromBig(next)
	if overflow || out.Gt(MaxUint128) {
		return nil, fmt.Errorf("liquidity overflow: %s + %s", liquidity, delta)
	}
	return out, nil
}
