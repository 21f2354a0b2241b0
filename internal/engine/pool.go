package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/feemath"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/pricemath"
)

// pool is the engine-side state of one initialized pool.
type pool struct {
	key              model.PoolKey
	sqrtPriceX96     *uint256.Int
	tick             int32
	liquidity        *uint256.Int // active liquidity at the current tick
	feeGrowthGlobal0 *uint256.Int
	feeGrowthGlobal1 *uint256.Int
	ticks            map[int32]*tickInfo
	positions        map[positionKey]*enginePosition
}

// tickInfo tracks the liquidity referencing a tick boundary and the fee
// growth recorded on the far side of it.
type tickInfo struct {
	liquidityGross    *uint256.Int
	liquidityNet      *big.Int
	feeGrowthOutside0 *uint256.Int
	feeGrowthOutside1 *uint256.Int
}

// positionKey identifies an engine-level position. The salt keeps
// positions of distinct ledger entries on the identical range separate, so
// each carries its own fee-growth snapshot.
type positionKey struct {
	rangeID common.Hash
	salt    common.Hash
}

// enginePosition is the engine's own record for one (range, salt) claim.
type enginePosition struct {
	liquidity     *uint256.Int
	fgInside0Last *uint256.Int
	fgInside1Last *uint256.Int
}

func newPool(key model.PoolKey, tick int32) (*pool, error) {
	sqrtPrice, err := pricemath.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return &pool{
		key:              key,
		sqrtPriceX96:     sqrtPrice,
		tick:             tick,
		liquidity:        new(uint256.Int),
		feeGrowthGlobal0: new(uint256.Int),
		feeGrowthGlobal1: new(uint256.Int),
		ticks:            make(map[int32]*tickInfo),
		positions:        make(map[positionKey]*enginePosition),
	}, nil
}

// tickOutside returns the outside accumulators for a tick boundary. Ticks
// not yet referenced default by convention: below or at the current tick
// all growth is counted as outside, above it none is.
func (p *pool) tickOutside(tick int32) (*uint256.Int, *uint256.Int) {
	if info, ok := p.ticks[tick]; ok {
		return info.feeGrowthOutside0, info.feeGrowthOutside1
	}
	if tick <= p.tick {
		return p.feeGrowthGlobal0, p.feeGrowthGlobal1
	}
	return new(uint256.Int), new(uint256.Int)
}

func (p *pool) feeGrowthInside(tickLower, tickUpper int32) (*uint256.Int, *uint256.Int) {
	lowerOut0, lowerOut1 := p.tickOutside(tickLower)
	upperOut0, upperOut1 := p.tickOutside(tickUpper)
	return feemath.FeeGrowthInside(
		p.feeGrowthGlobal0, p.feeGrowthGlobal1,
		lowerOut0, lowerOut1,
		upperOut0, upperOut1,
		p.tick, tickLower, tickUpper,
	)
}

func (p *pool) ensureTick(tick int32) *tickInfo {
	if info, ok := p.ticks[tick]; ok {
		return info
	}
	info := &tickInfo{
		liquidityGross:    new(uint256.Int),
		liquidityNet:      new(big.Int),
		feeGrowthOutside0: new(uint256.Int),
		feeGrowthOutside1: new(uint256.Int),
	}
	if tick <= p.tick {
		info.feeGrowthOutside0.Set(p.feeGrowthGlobal0)
		info.feeGrowthOutside1.Set(p.feeGrowthGlobal1)
	}
	p.ticks[tick] = info
	return info
}

// modifyLiquidity applies a signed liquidity delta to the (range, salt)
// position and returns the principal amounts owed plus the fee delta the
// position accrued since its previous snapshot. Fee measurement happens
// before the delta is applied; the returned caller delta consolidates both.
func (p *pool) modifyLiquidity(rng model.Range, delta *big.Int, salt common.Hash) (model.BalanceDelta, model.BalanceDelta, error) {
	fgInside0, fgInside1 := p.feeGrowthInside(rng.TickLower, rng.TickUpper)

	key := positionKey{rangeID: rng.ID(), salt: salt}
	pos, ok := p.positions[key]
	if !ok {
		pos = &enginePosition{
			liquidity:     new(uint256.Int),
			fgInside0Last: new(uint256.Int).Set(fgInside0),
			fgInside1Last: new(uint256.Int).Set(fgInside1),
		}
		p.positions[key] = pos
	}

	fees0, fees1 := feemath.FeesOwed(fgInside0, fgInside1, pos.fgInside0Last, pos.fgInside1Last, pos.liquidity)
	feesAccrued := model.NewDelta(fees0.ToBig(), fees1.ToBig())

	next, err := feemath.AddLiquidityDelta(pos.liquidity, delta)
	if err != nil {
		return model.BalanceDelta{}, model.BalanceDelta{}, fmt.Errorf("position liquidity: %w", err)
	}
	pos.liquidity = next
	pos.fgInside0Last = fgInside0
	pos.fgInside1Last = fgInside1
	if pos.liquidity.IsZero() {
		delete(p.positions, key)
	}

	if delta.Sign() != 0 {
		if err := p.updateTicks(rng, delta); err != nil {
			return model.BalanceDelta{}, model.BalanceDelta{}, err
		}
	}

	principal, err := p.principalDelta(rng, delta)
	if err != nil {
		return model.BalanceDelta{}, model.BalanceDelta{}, err
	}

	return principal.Add(feesAccrued), feesAccrued, nil
}

func (p *pool) updateTicks(rng model.Range, delta *big.Int) error {
	lower := p.ensureTick(rng.TickLower)
	upper := p.ensureTick(rng.TickUpper)

	var err error
	if lower.liquidityGross, err = feemath.AddLiquidityDelta(lower.liquidityGross, delta); err != nil {
		return fmt.Errorf("lower tick liquidity: %w", err)
	}
	if upper.liquidityGross, err = feemath.AddLiquidityDelta(upper.liquidityGross, delta); err != nil {
		return fmt.Errorf("upper tick liquidity: %w", err)
	}
	lower.liquidityNet.Add(lower.liquidityNet, delta)
	upper.liquidityNet.Sub(upper.liquidityNet, delta)

	if lower.liquidityGross.IsZero() {
		delete(p.ticks, rng.TickLower)
	}
	if upper.liquidityGross.IsZero() {
		delete(p.ticks, rng.TickUpper)
	}

	if rng.TickLower <= p.tick && p.tick < rng.TickUpper {
		if p.liquidity, err = feemath.AddLiquidityDelta(p.liquidity, delta); err != nil {
			return fmt.Errorf("active liquidity: %w", err)
		}
	}
	return nil
}

// principalDelta converts a liquidity delta into signed currency amounts at
// the current price. Adds round up (owed to the pool), removes round down.
func (p *pool) principalDelta(rng model.Range, delta *big.Int) (model.BalanceDelta, error) {
	if delta.Sign() == 0 {
		return model.ZeroDelta(), nil
	}
	sqrtLower, err := pricemath.SqrtRatioAtTick(rng.TickLower)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	sqrtUpper, err := pricemath.SqrtRatioAtTick(rng.TickUpper)
	if err != nil {
		return model.BalanceDelta{}, err
	}

	magnitude, _ := uint256.FromBig(new(big.Int).Abs(delta))
	adding := delta.Sign() > 0
	amount0, amount1 := pricemath.AmountsForLiquidity(p.sqrtPriceX96, sqrtLower, sqrtUpper, magnitude, adding)
	if adding {
		amount0.Neg(amount0)
		amount1.Neg(amount1)
	}
	return model.NewDelta(amount0, amount1), nil
}

// donate accrues trading fees to the liquidity currently in range.
func (p *pool) donate(amount0, amount1 *big.Int) error {
	if p.liquidity.IsZero() {
		return ErrNoLiquidity
	}
	p.feeGrowthGlobal0.Add(p.feeGrowthGlobal0, growthPerLiquidity(amount0, p.liquidity))
	p.feeGrowthGlobal1.Add(p.feeGrowthGlobal1, growthPerLiquidity(amount1, p.liquidity))
	return nil
}

func growthPerLiquidity(amount *big.Int, liquidity *uint256.Int) *uint256.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(uint256.Int)
	}
	scaled := new(big.Int).Lsh(amount, 128)
	scaled.Div(scaled, liquidity.ToBig())
	out, _ := uint256.FromBig(scaled)
	return out
}

func (p *pool) clone() *pool {
	cp := &pool{
		key:              p.key,
		sqrtPriceX96:     new(uint256.Int).Set(p.sqrtPriceX96),
		tick:             p.tick,
		liquidity:        new(uint256.Int).Set(p.liquidity),
		feeGrowthGlobal0: new(uint256.Int).Set(p.feeGrowthGlobal0),
		feeGrowthGlobal1: new(uint256.Int).Set(p.feeGrowthGlobal1),
		ticks:            make(map[int32]*tickInfo, len(p.ticks)),
		positions:        make(map[positionKey]*enginePosition, len(p.positions)),
	}
	for tick, info := range p.ticks {
		cp.ticks[tick] = &tickInfo{
			liquidityGross:    new(uint256.Int).Set(info.liquidityGross),
			liquidityNet:      new(big.Int).Set(info.liquidityNet),
			feeGrowthOutside0: new(uint256.Int).Set(info.feeGrowthOutside0),
			feeGrowthOutside1: new(uint256.Int).Set(info.feeGrowthOutside1),
		}
	}
	for key, pos := range p.positions {
		cp.positions[key] = &enginePosition{
			liquidity:     new(uint256.Int).Set(pos.liquidity),
			fgInside0Last: new(uint256.Int).Set(pos.fgInside0Last),
			fgInside1Last: new(uint256.Int).Set(pos.fgInside1Last),
		}
	}
	return cp
}
