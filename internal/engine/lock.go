package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityLedger/internal/model"
)

// Lock is the mutation capability handed to an unlock callback. Holding it
// is the authorization to mutate engine state: it is never exposed outside
// the callback, and every method fails once the window has closed.
//
// The lock keeps a running signed balance per currency: positive means the
// pool owes the locker, negative means the locker owes the pool. The
// window only commits if every entry is exactly zero.
type Lock struct {
	engine      *InMemory
	released    bool
	outstanding map[common.Address]*big.Int
}

// ModifyLiquidity applies a signed liquidity delta to the (range, salt)
// position, returning the consolidated caller delta (principal plus
// freshly accrued fees) and the fee portion on its own. A zero delta
// performs no liquidity change but still measures and credits the
// position's accrued fees.
func (lk *Lock) ModifyLiquidity(rng model.Range, liquidityDelta *big.Int, salt common.Hash) (model.BalanceDelta, model.BalanceDelta, error) {
	lk.engine.mu.Lock()
	defer lk.engine.mu.Unlock()
	if lk.released {
		return model.BalanceDelta{}, model.BalanceDelta{}, ErrNotLocked
	}

	p, ok := lk.engine.pools[rng.PoolKey.ID()]
	if !ok {
		return model.BalanceDelta{}, model.BalanceDelta{}, fmt.Errorf("%w: %s", ErrPoolNotInitialized, rng.PoolKey.ID())
	}

	callerDelta, feesAccrued, err := p.modifyLiquidity(rng, liquidityDelta, salt)
	if err != nil {
		return model.BalanceDelta{}, model.BalanceDelta{}, err
	}

	lk.account(rng.PoolKey.Currency0, callerDelta.Amount0)
	lk.account(rng.PoolKey.Currency1, callerDelta.Amount1)
	return callerDelta, feesAccrued, nil
}

// Take moves funds out of the pool reserves to a holder's bank balance,
// consuming a positive outstanding delta.
func (lk *Lock) Take(currency, to common.Address, amount *big.Int) error {
	lk.engine.mu.Lock()
	defer lk.engine.mu.Unlock()
	if lk.released {
		return ErrNotLocked
	}
	if amount.Sign() == 0 {
		return nil
	}

	reserve := lk.engine.reserves[currency]
	if reserve == nil || reserve.Cmp(amount) < 0 {
		return fmt.Errorf("%w: take %s of %s", ErrInsufficientBalance, amount, currency)
	}
	reserve.Sub(reserve, amount)
	addToAccount(lk.engine.balances, currency, to, amount)
	lk.account(currency, new(big.Int).Neg(amount))
	return nil
}

// Settle pulls funds from the payer's bank balance into the pool reserves,
// covering a negative outstanding delta.
func (lk *Lock) Settle(currency, from common.Address, amount *big.Int) error {
	lk.engine.mu.Lock()
	defer lk.engine.mu.Unlock()
	if lk.released {
		return ErrNotLocked
	}
	if amount.Sign() == 0 {
		return nil
	}

	balance := accountOf(lk.engine.balances, currency, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: settle %s of %s from %s", ErrInsufficientBalance, amount, currency, from)
	}
	balance.Sub(balance, amount)
	lk.engine.addReserve(currency, amount)
	lk.account(currency, amount)
	return nil
}

// MintCredit converts a positive outstanding delta into internal credit
// held by a holder; the underlying funds stay inside the pool reserves.
func (lk *Lock) MintCredit(currency, to common.Address, amount *big.Int) error {
	lk.engine.mu.Lock()
	defer lk.engine.mu.Unlock()
	if lk.released {
		return ErrNotLocked
	}
	if amount.Sign() == 0 {
		return nil
	}

	addToAccount(lk.engine.credits, currency, to, amount)
	lk.account(currency, new(big.Int).Neg(amount))
	return nil
}

// BurnCredit consumes a holder's internal credit to cover a negative
// outstanding delta.
func (lk *Lock) BurnCredit(currency, from common.Address, amount *big.Int) error {
	lk.engine.mu.Lock()
	defer lk.engine.mu.Unlock()
	if lk.released {
		return ErrNotLocked
	}
	if amount.Sign() == 0 {
		return nil
	}

	credit := accountOf(lk.engine.credits, currency, from)
	if credit.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s of %s from %s", ErrInsufficientCredit, amount, currency, from)
	}
	credit.Sub(credit, amount)
	lk.account(currency, amount)
	return nil
}

// TransferCredit moves internal credit between holders. The pool's net
// obligation is unchanged, so the outstanding balance is untouched.
func (lk *Lock) TransferCredit(currency, from, to common.Address, amount *big.Int) error {
	lk.engine.mu.Lock()
	defer lk.engine.mu.Unlock()
	if lk.released {
		return ErrNotLocked
	}
	if amount.Sign() == 0 {
		return nil
	}

	credit := accountOf(lk.engine.credits, currency, from)
	if credit.Cmp(amount) < 0 {
		return fmt.Errorf("%w: transfer %s of %s from %s", ErrInsufficientCredit, amount, currency, from)
	}
	credit.Sub(credit, amount)
	addToAccount(lk.engine.credits, currency, to, amount)
	return nil
}

func (lk *Lock) account(currency common.Address, delta *big.Int) {
	if delta.Sign() == 0 {
		if _, ok := lk.outstanding[currency]; !ok {
			lk.outstanding[currency] = new(big.Int)
		}
		return
	}
	cur, ok := lk.outstanding[currency]
	if !ok {
		cur = new(big.Int)
		lk.outstanding[currency] = cur
	}
	cur.Add(cur, delta)
}

func (lk *Lock) checkSettled() error {
	for currency, delta := range lk.outstanding {
		if delta.Sign() != 0 {
			return fmt.Errorf("%w: %s has residue %s", ErrCurrencyNotSettled, currency, delta)
		}
	}
	return nil
}
