package feemath

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestFeesOwedEqualSnapshots(t *testing.T) {
	fg := uint256.MustFromDecimal("123456789123456789123456789")
	liq := uint256.NewInt(5_000_000)

	owed0, owed1 := FeesOwed(fg, fg, fg, fg, liq)
	if !owed0.IsZero() || !owed1.IsZero() {
		t.Fatalf("equal snapshots must owe nothing, got %s / %s", owed0, owed1)
	}
}

func TestFeesOwedZeroLiquidity(t *testing.T) {
	last := uint256.NewInt(0)
	now := new(uint256.Int).Lsh(uint256.NewInt(3), 128)

	owed0, owed1 := FeesOwed(now, now, last, last, uint256.NewInt(0))
	if !owed0.IsZero() || !owed1.IsZero() {
		t.Fatalf("zero liquidity must owe nothing, got %s / %s", owed0, owed1)
	}
}

func TestFeesOwedSimpleDelta(t *testing.T) {
	// Accumulator moved by 2 << 128, i.e. 2 fee units per unit of liquidity.
	last := uint256.NewInt(0)
	now := new(uint256.Int).Lsh(uint256.NewInt(2), 128)
	liq := uint256.NewInt(1000)

	owed0, owed1 := FeesOwed(now, now, last, last, liq)
	if owed0.Uint64() != 2000 || owed1.Uint64() != 2000 {
		t.Fatalf("want 2000/2000, got %s / %s", owed0, owed1)
	}
}

func TestFeesOwedTruncatesTowardZero(t *testing.T) {
	// Half a fee unit per liquidity over 3 units: 1.5 truncates to 1.
	last := uint256.NewInt(0)
	now := new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	liq := uint256.NewInt(3)

	owed0, _ := FeesOwed(now, now, last, last, liq)
	if owed0.Uint64() != 1 {
		t.Fatalf("want truncated 1, got %s", owed0)
	}
}

func TestFeesOwedWraparound(t *testing.T) {
	// last near the top of the accumulator space, now wrapped past zero.
	// The modular difference is 3 << 128.
	span := new(uint256.Int).Lsh(uint256.NewInt(3), 128)
	last := new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1)) // 2^256 - 1
	now := new(uint256.Int).Add(last, span)
	liq := uint256.NewInt(7)

	owed0, _ := FeesOwed(now, now, last, last, liq)
	if owed0.Uint64() != 21 {
		t.Fatalf("wraparound delta: want 21, got %s", owed0)
	}
}

func TestFeeGrowthInsideCases(t *testing.T) {
	g := uint256.NewInt(100)
	lower := uint256.NewInt(30)
	upper := uint256.NewInt(10)

	// Current tick inside the range: global - lower - upper.
	in0, in1 := FeeGrowthInside(g, g, lower, lower, upper, upper, 0, -60, 60)
	if in0.Uint64() != 60 || in1.Uint64() != 60 {
		t.Fatalf("inside case: want 60, got %s / %s", in0, in1)
	}

	// Below the range: lower - upper.
	in0, _ = FeeGrowthInside(g, g, lower, lower, upper, upper, -100, -60, 60)
	if in0.Uint64() != 20 {
		t.Fatalf("below case: want 20, got %s", in0)
	}

	// At or above the upper boundary: upper - lower, wrapping.
	in0, _ = FeeGrowthInside(g, g, lower, lower, upper, upper, 60, -60, 60)
	want := new(uint256.Int).Sub(upper, lower)
	if !in0.Eq(want) {
		t.Fatalf("above case: want %s, got %s", want, in0)
	}
}

func TestAddLiquidityDelta(t *testing.T) {
	liq := uint256.NewInt(1000)

	next, err := AddLiquidityDelta(liq, big.NewInt(-400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Uint64() != 600 {
		t.Fatalf("want 600, got %s", next)
	}

	if _, err := AddLiquidityDelta(liq, big.NewInt(-1001)); err == nil {
		t.Fatalf("expected underflow error")
	}

	atMax := new(uint256.Int).Set(MaxUint128)
	if _, err := AddLiquidityDelta(atMax, big.NewInt(1)); err == nil {
		t.Fatalf("expected overflow error")
	}
}
