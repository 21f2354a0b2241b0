package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/model"
)

// LockFunc is a callback executed inside one unlock window. The *Lock
// capability it receives is the only path through which engine state may
// be mutated, and it dies with the window.
type LockFunc func(lk *Lock) error

// Engine is the shared-engine contract: an atomic unlock/callback
// mechanism plus the typed read accessors. Every mutation performed inside
// the callback either commits as a whole or is rolled back as a whole, and
// the callback must leave a net-zero balance delta for every currency it
// touched.
type Engine interface {
	Unlock(ctx context.Context, fn LockFunc) error

	Slot0(poolID common.Hash) (*uint256.Int, int32, error)
	FeeGrowthGlobals(poolID common.Hash) (*uint256.Int, *uint256.Int, error)
	TickFeeGrowthOutside(poolID common.Hash, tick int32) (*uint256.Int, *uint256.Int, error)
}

// InMemory is the reference engine implementation: pool accumulator state,
// a per-currency bank, pool reserves, and an internal credit ledger, all
// held in memory with snapshot-based rollback.
type InMemory struct {
	mu     sync.Mutex
	locked bool

	pools    map[common.Hash]*pool
	balances map[common.Address]map[common.Address]*big.Int // currency -> holder
	reserves map[common.Address]*big.Int                    // currency -> pool-held
	credits  map[common.Address]map[common.Address]*big.Int // currency -> holder
}

// NewInMemory builds an empty engine.
func NewInMemory() *InMemory {
	return &InMemory{
		pools:    make(map[common.Hash]*pool),
		balances: make(map[common.Address]map[common.Address]*big.Int),
		reserves: make(map[common.Address]*big.Int),
		credits:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// InitializePool registers a pool at the given starting tick.
func (e *InMemory) InitializePool(key model.PoolKey, tick int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrAlreadyLocked
	}

	poolID := key.ID()
	if _, ok := e.pools[poolID]; ok {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyInitialized, poolID)
	}
	p, err := newPool(key, tick)
	if err != nil {
		return fmt.Errorf("initialize pool: %w", err)
	}
	e.pools[poolID] = p
	return nil
}

// Donate accrues trading fees to the pool's in-range liquidity, funding
// the pool reserves and advancing the fee-growth accumulators. It stands
// in for the fee side of swap execution.
func (e *InMemory) Donate(poolID common.Hash, amount0, amount1 *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrAlreadyLocked
	}

	p, ok := e.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotInitialized, poolID)
	}
	if err := p.donate(amount0, amount1); err != nil {
		return err
	}
	e.addReserve(p.key.Currency0, amount0)
	e.addReserve(p.key.Currency1, amount1)
	return nil
}

// Fund credits a holder's bank balance with freshly issued funds.
func (e *InMemory) Fund(currency, holder common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrAlreadyLocked
	}
	addToAccount(e.balances, currency, holder, amount)
	return nil
}

// BalanceOf returns the holder's bank balance for a currency.
func (e *InMemory) BalanceOf(currency, holder common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(accountOf(e.balances, currency, holder))
}

// CreditOf returns the holder's internal credit for a currency.
func (e *InMemory) CreditOf(currency, holder common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(accountOf(e.credits, currency, holder))
}

// ReserveOf returns the pool-held reserve of a currency.
func (e *InMemory) ReserveOf(currency common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.reserves[currency]; ok {
		return new(big.Int).Set(r)
	}
	return new(big.Int)
}

// Unlock runs fn inside one atomic window. Exactly one window may be open
// at a time; an unlock attempted from inside a callback is rejected with
// ErrAlreadyLocked. On any failure, including an unsettled currency at the
// end of the window, every mutation made inside it is discarded and the
// original failure reason is returned unchanged.
func (e *InMemory) Unlock(ctx context.Context, fn LockFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.locked {
		e.mu.Unlock()
		return ErrAlreadyLocked
	}
	e.locked = true
	snap := e.snapshot()
	e.mu.Unlock()

	lk := &Lock{engine: e, outstanding: make(map[common.Address]*big.Int)}
	err := runLocked(fn, lk)
	if err == nil {
		err = lk.checkSettled()
	}

	e.mu.Lock()
	lk.released = true
	e.locked = false
	if err != nil {
		e.restore(snap)
	}
	e.mu.Unlock()
	return err
}

func runLocked(fn LockFunc, lk *Lock) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLockFailure, r)
		}
	}()
	return fn(lk)
}

// Slot0 returns the pool's sqrt price and current tick.
func (e *InMemory) Slot0(poolID common.Hash) (*uint256.Int, int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[poolID]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrPoolNotInitialized, poolID)
	}
	return new(uint256.Int).Set(p.sqrtPriceX96), p.tick, nil
}

// FeeGrowthGlobals returns the pool's global fee-growth accumulators.
func (e *InMemory) FeeGrowthGlobals(poolID common.Hash) (*uint256.Int, *uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[poolID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPoolNotInitialized, poolID)
	}
	return new(uint256.Int).Set(p.feeGrowthGlobal0), new(uint256.Int).Set(p.feeGrowthGlobal1), nil
}

// TickFeeGrowthOutside returns one tick boundary's outside accumulators.
func (e *InMemory) TickFeeGrowthOutside(poolID common.Hash, tick int32) (*uint256.Int, *uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[poolID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPoolNotInitialized, poolID)
	}
	out0, out1 := p.tickOutside(tick)
	return new(uint256.Int).Set(out0), new(uint256.Int).Set(out1), nil
}

type engineSnapshot struct {
	pools    map[common.Hash]*pool
	balances map[common.Address]map[common.Address]*big.Int
	reserves map[common.Address]*big.Int
	credits  map[common.Address]map[common.Address]*big.Int
}

func (e *InMemory) snapshot() *engineSnapshot {
	snap := &engineSnapshot{
		pools:    make(map[common.Hash]*pool, len(e.pools)),
		balances: cloneAccounts(e.balances),
		reserves: make(map[common.Address]*big.Int, len(e.reserves)),
		credits:  cloneAccounts(e.credits),
	}
	for id, p := range e.pools {
		snap.pools[id] = p.clone()
	}
	for currency, amount := range e.reserves {
		snap.reserves[currency] = new(big.Int).Set(amount)
	}
	return snap
}

func (e *InMemory) restore(snap *engineSnapshot) {
	e.pools = snap.pools
	e.balances = snap.balances
	e.reserves = snap.reserves
	e.credits = snap.credits
}

func cloneAccounts(src map[common.Address]map[common.Address]*big.Int) map[common.Address]map[common.Address]*big.Int {
	out := make(map[common.Address]map[common.Address]*big.Int, len(src))
	for currency, holders := range src {
		cp := make(map[common.Address]*big.Int, len(holders))
		for holder, amount := range holders {
			cp[holder] = new(big.Int).Set(amount)
		}
		out[currency] = cp
	}
	return out
}

func accountOf(accounts map[common.Address]map[common.Address]*big.Int, currency, holder common.Address) *big.Int {
	holders, ok := accounts[currency]
	if !ok {
		return new(big.Int)
	}
	amount, ok := holders[holder]
	if !ok {
		return new(big.Int)
	}
	return amount
}

func addToAccount(accounts map[common.Address]map[common.Address]*big.Int, currency, holder common.Address, amount *big.Int) {
	holders, ok := accounts[currency]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		accounts[currency] = holders
	}
	cur, ok := holders[holder]
	if !ok {
		cur = new(big.Int)
		holders[holder] = cur
	}
	cur.Add(cur, amount)
}

func (e *InMemory) addReserve(currency common.Address, amount *big.Int) {
	cur, ok := e.reserves[currency]
	if !ok {
		cur = new(big.Int)
		e.reserves[currency] = cur
	}
	cur.Add(cur, amount)
}

var _ Engine = (*InMemory)(nil)
