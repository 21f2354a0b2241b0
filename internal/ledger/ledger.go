package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityLedger/internal/accounting"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/pricemath"
	"liquidityLedger/internal/token"
)

// Ledger owns the position records and drives the ownership-token
// lifecycle. Every state-changing operation goes through the accounting
// core's single atomic engine interaction; the ledger then updates its
// records from the result. Execution is serialized per operation.
type Ledger struct {
	mu        sync.Mutex
	core      *accounting.Core
	tokens    token.Registry
	positions map[uint64]*Position
	index     *OwnerIndex
	nonce     uint64
	logger    *zap.Logger
}

// New builds a Ledger over the accounting core and token registry.
func New(core *accounting.Core, tokens token.Registry, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		core:      core,
		tokens:    tokens,
		positions: make(map[uint64]*Position),
		index:     NewOwnerIndex(),
		logger:    logger,
	}
}

// Mint opens a new position with the given liquidity, settling the
// required amounts from caller, and issues the ownership token to
// recipient. The ledger record and the token are created in the same
// atomic operation.
func (l *Ledger) Mint(ctx context.Context, caller common.Address, rng model.Range, liquidity *uint256.Int, deadline int64, recipient common.Address, hookData []byte) (uint64, model.BalanceDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Now().Unix() > deadline {
		return 0, model.BalanceDelta{}, fmt.Errorf("%w: %d", ErrDeadlinePassed, deadline)
	}
	if !rng.Valid() {
		return 0, model.BalanceDelta{}, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, rng.TickLower, rng.TickUpper)
	}
	if liquidity == nil || liquidity.IsZero() {
		return 0, model.BalanceDelta{}, accounting.ErrZeroLiquidityChange
	}

	id := l.tokens.Issue(recipient)
	res, err := l.core.Execute(ctx, accounting.Intent{
		Kind:           accounting.KindIncrease,
		Range:          rng,
		Salt:           positionSalt(id),
		LiquidityDelta: liquidity,
		Payer:          caller,
		Recipient:      recipient,
		HookData:       hookData,
	})
	if err != nil {
		// The token and the ledger entry live and die together.
		if destroyErr := l.tokens.Destroy(id); destroyErr != nil {
			l.logger.Error("destroy token after failed mint", zap.Uint64("id", id), zap.Error(destroyErr))
		}
		return 0, model.BalanceDelta{}, err
	}

	l.nonce++
	pos := newPosition(l.nonce, rng)
	pos.Liquidity.Set(liquidity)
	if err := l.refreshSnapshots(pos); err != nil {
		return 0, model.BalanceDelta{}, err
	}
	l.positions[id] = pos

	if err := l.index.Add(recipient, rng.ID(), liquidity.ToBig()); err != nil {
		return 0, model.BalanceDelta{}, err
	}

	l.logger.Info("position minted",
		zap.Uint64("id", id),
		zap.Stringer("owner", recipient),
		zap.String("liquidity", liquidity.Dec()),
	)
	return id, res.CallerDelta, nil
}

// MintFromAmounts derives the liquidity from desired token amounts at the
// pool's current price, then mints. It fails with ErrSlippage before any
// engine interaction when the amounts the derived liquidity requires fall
// below the caller's minimums.
func (l *Ledger) MintFromAmounts(ctx context.Context, caller common.Address, rng model.Range, desired0, desired1, min0, min1 *big.Int, deadline int64, recipient common.Address, hookData []byte) (uint64, model.BalanceDelta, error) {
	if !rng.Valid() {
		return 0, model.BalanceDelta{}, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, rng.TickLower, rng.TickUpper)
	}

	sqrtP, _, err := l.core.Accessor().GetCurrentPrice(rng.PoolKey.ID())
	if err != nil {
		return 0, model.BalanceDelta{}, err
	}
	sqrtLower, err := pricemath.SqrtRatioAtTick(rng.TickLower)
	if err != nil {
		return 0, model.BalanceDelta{}, err
	}
	sqrtUpper, err := pricemath.SqrtRatioAtTick(rng.TickUpper)
	if err != nil {
		return 0, model.BalanceDelta{}, err
	}

	liquidity, err := pricemath.LiquidityForAmounts(sqrtP, sqrtLower, sqrtUpper, desired0, desired1)
	if err != nil {
		return 0, model.BalanceDelta{}, err
	}
	if liquidity.IsZero() {
		return 0, model.BalanceDelta{}, accounting.ErrZeroLiquidityChange
	}

	// The amounts this liquidity will consume are deterministic at the
	// observed price; validate the bounds before touching the engine.
	need0, need1 := pricemath.AmountsForLiquidity(sqrtP, sqrtLower, sqrtUpper, liquidity, true)
	if min0 != nil && need0.Cmp(min0) < 0 {
		return 0, model.BalanceDelta{}, fmt.Errorf("%w: amount0 %s < %s", accounting.ErrSlippage, need0, min0)
	}
	if min1 != nil && need1.Cmp(min1) < 0 {
		return 0, model.BalanceDelta{}, fmt.Errorf("%w: amount1 %s < %s", accounting.ErrSlippage, need1, min1)
	}

	return l.Mint(ctx, caller, rng, liquidity, deadline, recipient, hookData)
}

// IncreaseLiquidity grows a position. Pending fee entitlement is flushed
// into the owed balances before the new liquidity takes effect, so the
// added liquidity cannot retroactively claim fees accrued before it
// existed. useClaims settles the principal from the caller's internal
// credit instead of their bank balance.
func (l *Ledger) IncreaseLiquidity(ctx context.Context, caller common.Address, positionID uint64, liquidityDelta *uint256.Int, hookData []byte, useClaims bool) (model.BalanceDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.authorized(positionID, caller)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if liquidityDelta == nil || liquidityDelta.IsZero() {
		return model.BalanceDelta{}, accounting.ErrZeroLiquidityChange
	}

	res, err := l.core.Execute(ctx, accounting.Intent{
		Kind:           accounting.KindIncrease,
		Range:          pos.Range,
		Salt:           positionSalt(positionID),
		LiquidityDelta: liquidityDelta,
		Payer:          caller,
		Recipient:      caller,
		UseClaims:      useClaims,
		HookData:       hookData,
	})
	if err != nil {
		return model.BalanceDelta{}, err
	}

	pos.addOwed(res.FeesAccrued)
	pos.Liquidity.Add(pos.Liquidity, liquidityDelta)
	if err := l.refreshSnapshots(pos); err != nil {
		return model.BalanceDelta{}, err
	}

	owner, err := l.tokens.OwnerOf(positionID)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if err := l.index.Add(owner, pos.Range.ID(), liquidityDelta.ToBig()); err != nil {
		return model.BalanceDelta{}, err
	}
	return res.CallerDelta, nil
}

// DecreaseLiquidity shrinks a position, flushing fee entitlement in the
// same atomic operation and paying principal plus fresh fees to the
// position's owner. Previously reserved owed balances are untouched; only
// Collect transfers those.
func (l *Ledger) DecreaseLiquidity(ctx context.Context, caller common.Address, positionID uint64, liquidityDelta *uint256.Int, min0, min1 *big.Int, hookData []byte) (model.BalanceDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decreaseLocked(ctx, caller, positionID, liquidityDelta, min0, min1, common.Address{}, hookData, false)
}

// decreaseLocked pays out to recipient, or to the token owner when
// recipient is the zero address. Caller must hold l.mu.
func (l *Ledger) decreaseLocked(ctx context.Context, caller common.Address, positionID uint64, liquidityDelta *uint256.Int, min0, min1 *big.Int, recipient common.Address, hookData []byte, useClaims bool) (model.BalanceDelta, error) {
	pos, err := l.authorized(positionID, caller)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if liquidityDelta == nil || liquidityDelta.IsZero() {
		return model.BalanceDelta{}, accounting.ErrZeroLiquidityChange
	}

	owner, err := l.tokens.OwnerOf(positionID)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if (recipient == common.Address{}) {
		recipient = owner
	}

	res, err := l.core.Execute(ctx, accounting.Intent{
		Kind:           accounting.KindDecrease,
		Range:          pos.Range,
		Salt:           positionSalt(positionID),
		LiquidityDelta: liquidityDelta,
		Payer:          caller,
		Recipient:      recipient,
		UseClaims:      useClaims,
		MinAmount0:     min0,
		MinAmount1:     min1,
		HookData:       hookData,
	})
	if err != nil {
		return model.BalanceDelta{}, err
	}

	pos.Liquidity.Sub(pos.Liquidity, liquidityDelta)
	if err := l.refreshSnapshots(pos); err != nil {
		return model.BalanceDelta{}, err
	}
	if err := l.index.Add(owner, pos.Range.ID(), new(big.Int).Neg(liquidityDelta.ToBig())); err != nil {
		return model.BalanceDelta{}, err
	}
	return res.CallerDelta, nil
}

// Collect flushes fee entitlement and transfers the entirety of the owed
// balances plus the freshly computed delta to recipient, then resets the
// owed balances. Partial collection is not supported.
func (l *Ledger) Collect(ctx context.Context, caller common.Address, positionID uint64, recipient common.Address, hookData []byte, useClaims bool) (model.BalanceDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.authorized(positionID, caller)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if (recipient == common.Address{}) {
		owner, err := l.tokens.OwnerOf(positionID)
		if err != nil {
			return model.BalanceDelta{}, err
		}
		recipient = owner
	}

	res, err := l.core.Execute(ctx, accounting.Intent{
		Kind:          accounting.KindCollect,
		Range:         pos.Range,
		Salt:          positionSalt(positionID),
		Payer:         caller,
		Recipient:     recipient,
		UseClaims:     useClaims,
		OwedReserved0: pos.Owed0.ToBig(),
		OwedReserved1: pos.Owed1.ToBig(),
		HookData:      hookData,
	})
	if err != nil {
		return model.BalanceDelta{}, err
	}

	// The owed amounts were actually transferred; only now may they reset.
	pos.Owed0.Clear()
	pos.Owed1.Clear()
	if err := l.refreshSnapshots(pos); err != nil {
		return model.BalanceDelta{}, err
	}
	return res.CallerDelta, nil
}

// Burn destroys a position and its ownership token together. Owed
// balances must be exactly zero at call time; remaining liquidity is
// withdrawn through a full decrease first.
func (l *Ledger) Burn(ctx context.Context, caller common.Address, positionID uint64, recipient common.Address, min0, min1 *big.Int, hookData []byte, useClaims bool) (model.BalanceDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.authorized(positionID, caller)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if !pos.Owed0.IsZero() || !pos.Owed1.IsZero() {
		return model.BalanceDelta{}, fmt.Errorf("%w: owed %s / %s", ErrPositionNotEmpty, pos.Owed0.Dec(), pos.Owed1.Dec())
	}

	delta := model.ZeroDelta()
	if !pos.Liquidity.IsZero() {
		remaining := new(uint256.Int).Set(pos.Liquidity)
		delta, err = l.decreaseLocked(ctx, caller, positionID, remaining, min0, min1, recipient, hookData, useClaims)
		if err != nil {
			return model.BalanceDelta{}, err
		}
	}
	if !pos.Owed0.IsZero() || !pos.Owed1.IsZero() {
		return model.BalanceDelta{}, fmt.Errorf("%w: owed %s / %s", ErrPositionNotEmpty, pos.Owed0.Dec(), pos.Owed1.Dec())
	}

	delete(l.positions, positionID)
	owner, err := l.tokens.OwnerOf(positionID)
	if err != nil {
		return model.BalanceDelta{}, err
	}
	if err := l.tokens.Destroy(positionID); err != nil {
		return model.BalanceDelta{}, err
	}

	l.logger.Info("position burned", zap.Uint64("id", positionID), zap.Stringer("owner", owner))
	return delta, nil
}

// Approve delegates operator rights on a position. Only the owner may
// delegate.
func (l *Ledger) Approve(positionID uint64, caller, operator common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPositionNotFound, positionID)
	}
	owner, err := l.tokens.OwnerOf(positionID)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: only owner may approve", ErrNotAuthorized)
	}
	if err := l.tokens.Approve(positionID, operator); err != nil {
		return err
	}
	pos.Operator = operator
	return nil
}

// OnTokenTransfer is the synchronous ownership-transfer hook. It moves the
// indexed liquidity from the old holder to the new one and clears the
// delegated operator.
func (l *Ledger) OnTokenTransfer(positionID uint64, from, to common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return
	}
	pos.Operator = common.Address{}
	if err := l.index.Move(from, to, pos.Range.ID(), pos.Liquidity); err != nil {
		l.logger.Error("reassign owner index", zap.Uint64("id", positionID), zap.Error(err))
	}
}

// Position returns a copy of the record for inspection.
func (l *Ledger) Position(positionID uint64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return Position{}, fmt.Errorf("%w: %d", ErrPositionNotFound, positionID)
	}
	return Position{
		Nonce:                pos.Nonce,
		Operator:             pos.Operator,
		Range:                pos.Range,
		Liquidity:            new(uint256.Int).Set(pos.Liquidity),
		FeeGrowthInside0Last: new(uint256.Int).Set(pos.FeeGrowthInside0Last),
		FeeGrowthInside1Last: new(uint256.Int).Set(pos.FeeGrowthInside1Last),
		Owed0:                new(uint256.Int).Set(pos.Owed0),
		Owed1:                new(uint256.Int).Set(pos.Owed1),
	}, nil
}

// OwnerLiquidity returns the indexed aggregate liquidity for (owner, range).
func (l *Ledger) OwnerLiquidity(owner common.Address, rangeID common.Hash) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Get(owner, rangeID)
}

// Snapshot exports all positions and the owner index in a stable order.
func (l *Ledger) Snapshot() ([]model.PositionSnapshot, []model.OwnerLiquiditySnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]uint64, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	positions := make([]model.PositionSnapshot, 0, len(ids))
	for _, id := range ids {
		owner, err := l.tokens.OwnerOf(id)
		if err != nil {
			return nil, nil, err
		}
		positions = append(positions, l.positions[id].snapshot(id, owner))
	}
	return positions, l.index.Snapshot(), nil
}

func (l *Ledger) authorized(positionID uint64, caller common.Address) (*Position, error) {
	pos, ok := l.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPositionNotFound, positionID)
	}
	if !l.tokens.IsAuthorized(positionID, caller) {
		return nil, fmt.Errorf("%w: %s on position %d", ErrNotAuthorized, caller, positionID)
	}
	return pos, nil
}

// refreshSnapshots records the accumulator values observed by this
// operation as the baseline for the next delta.
func (l *Ledger) refreshSnapshots(pos *Position) error {
	inside0, inside1, err := l.core.Accessor().GetFeeGrowthInside(pos.Range.PoolKey.ID(), pos.Range.TickLower, pos.Range.TickUpper)
	if err != nil {
		return err
	}
	pos.FeeGrowthInside0Last = inside0
	pos.FeeGrowthInside1Last = inside1
	return nil
}

func positionSalt(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}
