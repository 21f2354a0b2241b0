package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/model"
)

// Position is the ledger's record for one issued ownership token. Owed
// balances accumulate flushed fee entitlement, backed one to one by
// internal engine credit held by the accounting core, and are reset only
// by a collection that actually transfers them.
type Position struct {
	Nonce                uint64
	Operator             common.Address
	Range                model.Range
	Liquidity            *uint256.Int
	FeeGrowthInside0Last *uint256.Int
	FeeGrowthInside1Last *uint256.Int
	Owed0                *uint256.Int
	Owed1                *uint256.Int
}

func newPosition(nonce uint64, rng model.Range) *Position {
	return &Position{
		Nonce:                nonce,
		Range:                rng,
		Liquidity:            new(uint256.Int),
		FeeGrowthInside0Last: new(uint256.Int),
		FeeGrowthInside1Last: new(uint256.Int),
		Owed0:                new(uint256.Int),
		Owed1:                new(uint256.Int),
	}
}

// addOwed folds freshly flushed fee amounts into the owed balances.
func (p *Position) addOwed(fees model.BalanceDelta) {
	add0, _ := uint256.FromBig(new(big.Int).Abs(fees.Amount0))
	add1, _ := uint256.FromBig(new(big.Int).Abs(fees.Amount1))
	p.Owed0.Add(p.Owed0, add0)
	p.Owed1.Add(p.Owed1, add1)
}

func (p *Position) snapshot(id uint64, owner common.Address) model.PositionSnapshot {
	snap := model.PositionSnapshot{
		PositionID:       id,
		Owner:            owner.Hex(),
		PoolID:           p.Range.PoolKey.ID().Hex(),
		RangeID:          p.Range.ID().Hex(),
		TickLower:        p.Range.TickLower,
		TickUpper:        p.Range.TickUpper,
		Liquidity:        p.Liquidity.Dec(),
		FeeGrowthInside0: p.FeeGrowthInside0Last.Dec(),
		FeeGrowthInside1: p.FeeGrowthInside1Last.Dec(),
		Owed0:            p.Owed0.Dec(),
		Owed1:            p.Owed1.Dec(),
		Nonce:            p.Nonce,
	}
	if (p.Operator != common.Address{}) {
		snap.Operator = p.Operator.Hex()
	}
	return snap
}
