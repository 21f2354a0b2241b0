package pricemath

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestSqrtRatioAtTickZero(t *testing.T) {
	got, err := SqrtRatioAtTick(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Eq(Q96) {
		t.Fatalf("tick 0 must be Q96, got %s", got)
	}
}

func TestSqrtRatioAtTickBounds(t *testing.T) {
	low, err := SqrtRatioAtTick(MinTick)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low.Uint64() != 4295128739 {
		t.Fatalf("min tick ratio mismatch: %s", low)
	}

	high, err := SqrtRatioAtTick(MaxTick)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
	if !high.Eq(want) {
		t.Fatalf("max tick ratio mismatch: %s", high)
	}

	if _, err := SqrtRatioAtTick(MaxTick + 1); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	if _, err := SqrtRatioAtTick(MinTick - 1); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestSqrtRatioMonotonic(t *testing.T) {
	prev, err := SqrtRatioAtTick(-300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tick := range []int32{-120, -60, 0, 60, 120, 300} {
		cur, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("unexpected error at %d: %v", tick, err)
		}
		if !prev.Lt(cur) {
			t.Fatalf("ratio not increasing at tick %d: %s >= %s", tick, prev, cur)
		}
		prev = cur
	}
}

func TestAmountsLiquidityRoundTrip(t *testing.T) {
	sqrtLower, _ := SqrtRatioAtTick(-300)
	sqrtUpper, _ := SqrtRatioAtTick(300)
	sqrtP := new(uint256.Int).Set(Q96) // 1:1 price, inside the range

	// Inverting a rounded-up amount overshoots by up to one quotient unit:
	// 2^96/(P-A) liquidity on the amount1 side, U*P/(2^96*(U-P)) on the
	// amount0 side. The binding minimum of the two sides caps the drift.
	slack1 := new(big.Int).Div(Q96.ToBig(), new(big.Int).Sub(sqrtP.ToBig(), sqrtLower.ToBig()))
	slack0 := mulDiv(sqrtUpper.ToBig(), sqrtP.ToBig(), q96Big, false)
	slack0.Div(slack0, new(big.Int).Sub(sqrtUpper.ToBig(), sqrtP.ToBig()))
	slack := slack0
	if slack1.Cmp(slack) < 0 {
		slack = slack1
	}
	slack.Add(slack, big.NewInt(2))

	for _, l := range []uint64{1_000_000, 1_000_000_000, 1_000_000_000_000, 1_000_000_000_000_000} {
		liq := uint256.NewInt(l)
		amount0, amount1 := AmountsForLiquidity(sqrtP, sqrtLower, sqrtUpper, liq, true)
		if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
			t.Fatalf("in-range liquidity must need both currencies: %s / %s", amount0, amount1)
		}

		back, err := LiquidityForAmounts(sqrtP, sqrtLower, sqrtUpper, amount0, amount1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		diff := new(big.Int).Sub(back.ToBig(), liq.ToBig())
		if diff.Cmp(slack) > 0 || diff.Cmp(big.NewInt(-2)) < 0 {
			t.Fatalf("liquidity %d round trip drift %s outside [-2, %s]", l, diff, slack)
		}

		// The derived liquidity must never consume more than the funding
		// amounts, give or take the final round-up wei.
		need0, need1 := AmountsForLiquidity(sqrtP, sqrtLower, sqrtUpper, back, true)
		over0 := new(big.Int).Sub(need0, amount0)
		over1 := new(big.Int).Sub(need1, amount1)
		if over0.Cmp(one) > 0 || over1.Cmp(one) > 0 {
			t.Fatalf("liquidity %d overconsumes: needs %s/%s for %s/%s", l, need0, need1, amount0, amount1)
		}
	}
}

func TestAmountsOutsideRange(t *testing.T) {
	sqrtLower, _ := SqrtRatioAtTick(60)
	sqrtUpper, _ := SqrtRatioAtTick(120)
	below := new(uint256.Int).Set(Q96) // tick 0, below the range

	liq := uint256.NewInt(1_000_000)
	amount0, amount1 := AmountsForLiquidity(below, sqrtLower, sqrtUpper, liq, true)
	if amount0.Sign() <= 0 || amount1.Sign() != 0 {
		t.Fatalf("below range must be currency0 only: %s / %s", amount0, amount1)
	}

	above, _ := SqrtRatioAtTick(180)
	amount0, amount1 = AmountsForLiquidity(above, sqrtLower, sqrtUpper, liq, true)
	if amount0.Sign() != 0 || amount1.Sign() <= 0 {
		t.Fatalf("above range must be currency1 only: %s / %s", amount0, amount1)
	}
}
