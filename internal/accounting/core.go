package accounting

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityLedger/internal/engine"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/poolstate"
)

// ErrZeroLiquidityChange is returned when a liquidity-changing intent
// carries a zero magnitude. It is rejected before any engine interaction.
var ErrZeroLiquidityChange = errors.New("zero liquidity change")

// ErrSlippage is returned when settlement amounts fall outside the
// caller's bounds. The check runs inside the unlock window, so the whole
// operation rolls back; no partial fill is ever produced.
var ErrSlippage = errors.New("amount outside slippage bounds")

// Kind selects which mutation an intent performs.
type Kind int

const (
	// KindIncrease adds liquidity; freshly accrued fees are reserved as
	// internal credit held by the core on the position's behalf.
	KindIncrease Kind = iota
	// KindDecrease removes liquidity; principal and fresh fees are paid
	// to the recipient.
	KindDecrease
	// KindCollect performs no liquidity change; fresh fees plus the
	// previously reserved owed amounts are paid to the recipient.
	KindCollect
)

func (k Kind) String() string {
	switch k {
	case KindIncrease:
		return "increase"
	case KindDecrease:
		return "decrease"
	case KindCollect:
		return "collect"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Intent packages one engine mutation: which change to perform, on which
// range, under which position identity, and how to settle the result. It
// is built by the ledger and consumed inside a single unlock window.
type Intent struct {
	Kind           Kind
	Range          model.Range
	Salt           common.Hash
	LiquidityDelta *uint256.Int // magnitude; required for increase/decrease
	Payer          common.Address
	Recipient      common.Address
	UseClaims      bool
	OwedReserved0  *big.Int // credit-backed owed amounts paid out on collect
	OwedReserved1  *big.Int
	MinAmount0     *big.Int // lower payout bounds for decrease, optional
	MinAmount1     *big.Int
	HookData       []byte
}

// Result is what one atomic engine interaction produced.
type Result struct {
	// CallerDelta is the consolidated signed delta for the operation,
	// including reserved owed amounts paid out on collect.
	CallerDelta model.BalanceDelta
	// FeesAccrued is the fee portion freshly measured for the position's
	// own snapshot during this interaction.
	FeesAccrued model.BalanceDelta
}

// Core executes exactly one atomic engine interaction per ledger call and
// guarantees every touched currency nets to zero before control returns:
// paid out, pulled in from the payer, or converted to internal credit. It
// owns no position data.
type Core struct {
	engine   engine.Engine
	accessor *poolstate.Accessor
	holder   common.Address // the core's own credit account
	logger   *zap.Logger
}

// NewCore builds a Core. holder is the account under which the core keeps
// credit backing positions' owed balances.
func NewCore(eng engine.Engine, accessor *poolstate.Accessor, holder common.Address, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{engine: eng, accessor: accessor, holder: holder, logger: logger}
}

// Accessor exposes the read-only pool state surface.
func (c *Core) Accessor() *poolstate.Accessor {
	return c.accessor
}

// Execute runs the two-phase protocol for one intent: validate, open the
// engine's unlock window, apply the mutation, settle every delta, commit.
// A failing mutation propagates its original reason unchanged; the engine
// rolls back everything on any failure.
func (c *Core) Execute(ctx context.Context, intent Intent) (Result, error) {
	if intent.Kind != KindCollect {
		if intent.LiquidityDelta == nil || intent.LiquidityDelta.IsZero() {
			return Result{}, ErrZeroLiquidityChange
		}
	}

	var result Result
	err := c.engine.Unlock(ctx, func(lk *engine.Lock) error {
		return c.handleLock(lk, intent, &result)
	})
	if err != nil {
		return Result{}, err
	}

	c.logger.Debug("intent settled",
		zap.Stringer("kind", intent.Kind),
		zap.Stringer("salt", intent.Salt),
		zap.String("delta0", result.CallerDelta.Amount0.String()),
		zap.String("delta1", result.CallerDelta.Amount1.String()),
	)
	return result, nil
}

// handleLock is the mutate-then-settle phase. It runs only inside the
// engine's unlock window: holding the *engine.Lock capability is the
// authorization, so no separate caller check is needed or possible.
func (c *Core) handleLock(lk *engine.Lock, intent Intent, result *Result) error {
	switch intent.Kind {
	case KindIncrease:
		return c.handleIncrease(lk, intent, result)
	case KindDecrease:
		return c.handleDecrease(lk, intent, result)
	case KindCollect:
		return c.handleCollect(lk, intent, result)
	default:
		return fmt.Errorf("unknown intent kind %d", intent.Kind)
	}
}

// handleIncrease, in order: the engine measures the entire fee delta the
// position accrued since its own snapshot, then applies the new liquidity;
// the consolidated delta is settled exactly once. Fees are converted into
// internal credit held by the core so they back the position's owed
// balance without ever touching amounts reserved for other co-owners of
// the same range (each position settles against its own salt).
func (c *Core) handleIncrease(lk *engine.Lock, intent Intent, result *Result) error {
	delta := intent.LiquidityDelta.ToBig()
	callerDelta, feesAccrued, err := lk.ModifyLiquidity(intent.Range, delta, intent.Salt)
	if err != nil {
		return err
	}

	// Principal owed to the pool is the consolidated delta minus the fee
	// credit; settle it from the payer.
	principal := callerDelta.Sub(feesAccrued)
	key := intent.Range.PoolKey
	if err := c.settleOwed(lk, key.Currency0, intent.Payer, principal.Amount0, intent.UseClaims); err != nil {
		return err
	}
	if err := c.settleOwed(lk, key.Currency1, intent.Payer, principal.Amount1, intent.UseClaims); err != nil {
		return err
	}

	// Reserve the fresh fees as credit under the core's account.
	if err := c.reserveFees(lk, key, feesAccrued); err != nil {
		return err
	}

	result.CallerDelta = callerDelta
	result.FeesAccrued = feesAccrued
	return nil
}

// handleDecrease removes liquidity and pays principal plus fresh fees to
// the recipient.
func (c *Core) handleDecrease(lk *engine.Lock, intent Intent, result *Result) error {
	delta := new(big.Int).Neg(intent.LiquidityDelta.ToBig())
	callerDelta, feesAccrued, err := lk.ModifyLiquidity(intent.Range, delta, intent.Salt)
	if err != nil {
		return err
	}
	if intent.MinAmount0 != nil && callerDelta.Amount0.Cmp(intent.MinAmount0) < 0 {
		return fmt.Errorf("%w: amount0 %s < %s", ErrSlippage, callerDelta.Amount0, intent.MinAmount0)
	}
	if intent.MinAmount1 != nil && callerDelta.Amount1.Cmp(intent.MinAmount1) < 0 {
		return fmt.Errorf("%w: amount1 %s < %s", ErrSlippage, callerDelta.Amount1, intent.MinAmount1)
	}

	key := intent.Range.PoolKey
	if err := c.payOut(lk, key.Currency0, intent.Recipient, callerDelta.Amount0, intent.UseClaims); err != nil {
		return err
	}
	if err := c.payOut(lk, key.Currency1, intent.Recipient, callerDelta.Amount1, intent.UseClaims); err != nil {
		return err
	}

	result.CallerDelta = callerDelta
	result.FeesAccrued = feesAccrued
	return nil
}

// handleCollect flushes the position's fresh fee delta and pays it out
// together with the previously reserved owed amounts, which are redeemed
// from the core's credit account.
func (c *Core) handleCollect(lk *engine.Lock, intent Intent, result *Result) error {
	callerDelta, feesAccrued, err := lk.ModifyLiquidity(intent.Range, new(big.Int), intent.Salt)
	if err != nil {
		return err
	}

	key := intent.Range.PoolKey
	if err := c.payOut(lk, key.Currency0, intent.Recipient, callerDelta.Amount0, intent.UseClaims); err != nil {
		return err
	}
	if err := c.payOut(lk, key.Currency1, intent.Recipient, callerDelta.Amount1, intent.UseClaims); err != nil {
		return err
	}

	owed := model.NewDelta(intent.OwedReserved0, intent.OwedReserved1)
	if err := c.payReserved(lk, key.Currency0, intent.Recipient, owed.Amount0, intent.UseClaims); err != nil {
		return err
	}
	if err := c.payReserved(lk, key.Currency1, intent.Recipient, owed.Amount1, intent.UseClaims); err != nil {
		return err
	}

	result.CallerDelta = callerDelta.Add(owed)
	result.FeesAccrued = feesAccrued
	return nil
}

// settleOwed covers a negative delta from the payer, either from their
// bank balance or by burning their internal credit.
func (c *Core) settleOwed(lk *engine.Lock, currency, payer common.Address, amount *big.Int, useClaims bool) error {
	if amount.Sign() >= 0 {
		return nil
	}
	owed := new(big.Int).Neg(amount)
	if useClaims {
		return lk.BurnCredit(currency, payer, owed)
	}
	return lk.Settle(currency, payer, owed)
}

// payOut resolves a positive delta to the recipient, as a direct transfer
// or as internal credit.
func (c *Core) payOut(lk *engine.Lock, currency, recipient common.Address, amount *big.Int, useClaims bool) error {
	if amount.Sign() <= 0 {
		return nil
	}
	if useClaims {
		return lk.MintCredit(currency, recipient, amount)
	}
	return lk.Take(currency, recipient, amount)
}

// payReserved redeems previously reserved owed amounts from the core's
// credit account to the recipient.
func (c *Core) payReserved(lk *engine.Lock, currency, recipient common.Address, amount *big.Int, useClaims bool) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if useClaims {
		return lk.TransferCredit(currency, c.holder, recipient, amount)
	}
	if err := lk.BurnCredit(currency, c.holder, amount); err != nil {
		return err
	}
	return lk.Take(currency, recipient, amount)
}

// reserveFees converts freshly accrued fees into credit under the core's
// account, backing the position's owed balance one to one.
func (c *Core) reserveFees(lk *engine.Lock, key model.PoolKey, fees model.BalanceDelta) error {
	if fees.Amount0.Sign() > 0 {
		if err := lk.MintCredit(key.Currency0, c.holder, fees.Amount0); err != nil {
			return err
		}
	}
	if fees.Amount1.Sign() > 0 {
		if err := lk.MintCredit(key.Currency1, c.holder, fees.Amount1); err != nil {
			return err
		}
	}
	return nil
}
