package pricemath

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Tick bounds of the price space.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 is the UQ64.96 fixed-point one.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)

	q96Big     = new(big.Int).Lsh(big.NewInt(1), 96)
	one        = big.NewInt(1)
	maxUint256 = new(uint256.Int).SubUint64(new(uint256.Int), 1)
	maxUint160 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffff")
	oneShift32 = new(uint256.Int).Lsh(uint256.NewInt(1), 32)

	// Multiplier table for the square-root ratio computation. Index 0 and 1
	// are the two initial ratio values (odd/even low bit); 2..20 are the
	// per-bit multipliers applied high to low.
	sqrtRatioConsts = [21]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0x100000000000000000000000000000000"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range", tick)
	}
	var absTick uint64
	if tick < 0 {
		absTick = uint64(-int64(tick))
	} else {
		absTick = uint64(tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioConsts[0])
	} else {
		ratio.Set(sqrtRatioConsts[1])
	}
	for i := 0; i < 19; i++ {
		if absTick&(1<<(i+1)) != 0 {
			ratio.Mul(ratio, sqrtRatioConsts[i+2])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Round up from Q128.128 to Q64.96 and clamp to 160 bits.
	rem := new(uint256.Int).Mod(ratio, oneShift32)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	ratio.And(ratio, maxUint160)
	return ratio, nil
}

func mulDiv(a, b, denom *big.Int, roundUp bool) *big.Int {
	prod := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(prod, denom, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		quo.Add(quo, one)
	}
	return quo
}

// Amount0ForLiquidity returns the currency0 amount spanned by liquidity
// between two sqrt prices: L << 96 * (B - A) / B / A.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) *big.Int {
	a, b := orderPrices(sqrtA, sqrtB)
	num1 := new(big.Int).Lsh(liquidity.ToBig(), 96)
	num2 := new(big.Int).Sub(b, a)
	inner := mulDiv(num1, num2, b, roundUp)
	quo, rem := new(big.Int).QuoRem(inner, a, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		quo.Add(quo, one)
	}
	return quo
}

// Amount1ForLiquidity returns the currency1 amount spanned by liquidity
// between two sqrt prices: L * (B - A) / 2^96.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) *big.Int {
	a, b := orderPrices(sqrtA, sqrtB)
	diff := new(big.Int).Sub(b, a)
	return mulDiv(liquidity.ToBig(), diff, q96Big, roundUp)
}

// AmountsForLiquidity returns the two currency amounts a liquidity value
// occupies given the current price and the range boundaries. Rounding is
// up when adding liquidity (the pool must never be shortchanged) and down
// when removing.
func AmountsForLiquidity(sqrtP, sqrtLower, sqrtUpper, liquidity *uint256.Int, roundUp bool) (*big.Int, *big.Int) {
	amount0 := new(big.Int)
	amount1 := new(big.Int)
	switch {
	case sqrtP.Lt(sqrtLower):
		amount0 = Amount0ForLiquidity(sqrtLower, sqrtUpper, liquidity, roundUp)
	case sqrtP.Lt(sqrtUpper):
		amount0 = Amount0ForLiquidity(sqrtP, sqrtUpper, liquidity, roundUp)
		amount1 = Amount1ForLiquidity(sqrtLower, sqrtP, liquidity, roundUp)
	default:
		amount1 = Amount1ForLiquidity(sqrtLower, sqrtUpper, liquidity, roundUp)
	}
	return amount0, amount1
}

// LiquidityForAmounts computes the maximum liquidity the two desired
// amounts can fund at the current price. The result is the binding minimum
// of the per-currency liquidity values, truncated.
func LiquidityForAmounts(sqrtP, sqrtLower, sqrtUpper *uint256.Int, amount0, amount1 *big.Int) (*uint256.Int, error) {
	lower := sqrtLower.ToBig()
	upper := sqrtUpper.ToBig()
	price := sqrtP.ToBig()

	var liq *big.Int
	switch {
	case sqrtP.Lt(sqrtLower):
		liq = liquidityForAmount0(lower, upper, amount0)
	case sqrtP.Lt(sqrtUpper):
		l0 := liquidityForAmount0(price, upper, amount0)
		l1 := liquidityForAmount1(lower, price, amount1)
		liq = l0
		if l1.Cmp(l0) < 0 {
			liq = l1
		}
	default:
		liq = liquidityForAmount1(lower, upper, amount1)
	}

	out, overflow := uint256.FromBig(liq)
	if overflow {
		return nil, fmt.Errorf("liquidity does not fit in uint256")
	}
	return out, nil
}

// liquidityForAmount0: amount0 * (A * B / 2^96) / (B - A).
func liquidityForAmount0(a, b, amount0 *big.Int) *big.Int {
	intermediate := mulDiv(a, b, q96Big, false)
	diff := new(big.Int).Sub(b, a)
	return mulDiv(amount0, intermediate, diff, false)
}

// liquidityForAmount1: amount1 * 2^96 / (B - A).
func liquidityForAmount1(a, b, amount1 *big.Int) *big.Int {
	diff := new(big.Int).Sub(b, a)
	return mulDiv(amount1, q96Big, diff, false)
}

func orderPrices(x, y *uint256.Int) (*big.Int, *big.Int) {
	if x.Gt(y) {
		x, y = y, x
	}
	return x.ToBig(), y.ToBig()
}
