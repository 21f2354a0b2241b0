package poolstate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/feemath"
)

// EngineState is the raw read surface the shared engine exposes: the
// current price slot, the global fee-growth accumulators, and the per-tick
// outside accumulators. How the engine locates this state internally is
// its own concern.
type EngineState interface {
	Slot0(poolID common.Hash) (sqrtPriceX96 *uint256.Int, tick int32, err error)
	FeeGrowthGlobals(poolID common.Hash) (fg0, fg1 *uint256.Int, err error)
	TickFeeGrowthOutside(poolID common.Hash, tick int32) (fg0, fg1 *uint256.Int, err error)
}

// Accessor is the typed read-only query surface over the engine's
// accumulator state.
type Accessor struct {
	state EngineState
}

// NewAccessor builds an Accessor over the engine state reader.
func NewAccessor(state EngineState) *Accessor {
	return &Accessor{state: state}
}

// GetCurrentPrice returns the pool's current sqrt price and tick.
func (a *Accessor) GetCurrentPrice(poolID common.Hash) (*uint256.Int, int32, error) {
	sqrtPrice, tick, err := a.state.Slot0(poolID)
	if err != nil {
		return nil, 0, fmt.Errorf("read slot0: %w", err)
	}
	return sqrtPrice, tick, nil
}

// GetFeeGrowthInside returns the fee growth accumulated inside the tick
// range, derived from the global accumulators and the two boundary ticks'
// outside accumulators.
func (a *Accessor) GetFeeGrowthInside(poolID common.Hash, tickLower, tickUpper int32) (*uint256.Int, *uint256.Int, error) {
	_, tickCurrent, err := a.state.Slot0(poolID)
	if err != nil {
		return nil, nil, fmt.Errorf("read slot0: %w", err)
	}
	global0, global1, err := a.state.FeeGrowthGlobals(poolID)
	if err != nil {
		return nil, nil, fmt.Errorf("read fee growth globals: %w", err)
	}
	lowerOut0, lowerOut1, err := a.state.TickFeeGrowthOutside(poolID, tickLower)
	if err != nil {
		return nil, nil, fmt.Errorf("read lower tick: %w", err)
	}
	upperOut0, upperOut1, err := a.state.TickFeeGrowthOutside(poolID, tickUpper)
	if err != nil {
		return nil, nil, fmt.Errorf("read upper tick: %w", err)
	}

	inside0, inside1 := feemath.FeeGrowthInside(
		global0, global1,
		lowerOut0, lowerOut1,
		upperOut0, upperOut1,
		tickCurrent, tickLower, tickUpper,
	)
	return inside0, inside1, nil
}
