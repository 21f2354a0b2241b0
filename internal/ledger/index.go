package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/model"
)

// ownerRangeKey indexes aggregate liquidity by (owner, range).
type ownerRangeKey struct {
	owner   common.Address
	rangeID common.Hash
}

// OwnerIndex maintains each owner's collective liquidity claim per range,
// independently of token ownership. It is updated on every liquidity
// change and on ownership-token transfer.
type OwnerIndex struct {
	entries map[ownerRangeKey]*uint256.Int
}

// NewOwnerIndex builds an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{entries: make(map[ownerRangeKey]*uint256.Int)}
}

// Get returns the aggregate liquidity for (owner, range).
func (ix *OwnerIndex) Get(owner common.Address, rangeID common.Hash) *uint256.Int {
	if cur, ok := ix.entries[ownerRangeKey{owner, rangeID}]; ok {
		return new(uint256.Int).Set(cur)
	}
	return new(uint256.Int)
}

// Add applies a signed liquidity delta to (owner, range).
func (ix *OwnerIndex) Add(owner common.Address, rangeID common.Hash, delta *big.Int) error {
	key := ownerRangeKey{owner, rangeID}
	cur, ok := ix.entries[key]
	if !ok {
		cur = new(uint256.Int)
	}
	next := new(big.Int).Add(cur.ToBig(), delta)
	if next.Sign() < 0 {
		return fmt.Errorf("owner index underflow for %s on %s", owner, rangeID)
	}
	value, overflow := uint256.FromBig(next)
	if overflow {
		return fmt.Errorf("owner index overflow for %s on %s", owner, rangeID)
	}
	if value.IsZero() {
		delete(ix.entries, key)
		return nil
	}
	ix.entries[key] = value
	return nil
}

// Move reassigns an amount from one owner to another on the same range,
// used by the ownership-token transfer hook.
func (ix *OwnerIndex) Move(from, to common.Address, rangeID common.Hash, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	amt := amount.ToBig()
	if err := ix.Add(from, rangeID, new(big.Int).Neg(amt)); err != nil {
		return err
	}
	return ix.Add(to, rangeID, amt)
}

// Snapshot exports the index in a stable order.
func (ix *OwnerIndex) Snapshot() []model.OwnerLiquiditySnapshot {
	out := make([]model.OwnerLiquiditySnapshot, 0, len(ix.entries))
	for key, amount := range ix.entries {
		out = append(out, model.OwnerLiquiditySnapshot{
			Owner:     key.owner.Hex(),
			RangeID:   key.rangeID.Hex(),
			Liquidity: amount.Dec(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].RangeID < out[j].RangeID
	})
	return out
}
