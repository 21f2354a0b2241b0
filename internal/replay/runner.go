package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityLedger/internal/accounting"
	"liquidityLedger/internal/engine"
	"liquidityLedger/internal/ledger"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/poolstate"
	"liquidityLedger/internal/storage"
	"liquidityLedger/internal/storage/postgres"
	"liquidityLedger/internal/token"
)

// feeHolder is the internal account that backs reserved position fees.
var feeHolder = common.HexToAddress("0x000000000000000000000000000000000000fee5")

const saveEvery = 100

// Config controls replay behavior.
type Config struct {
	StateStore StateStore
}

// Runner replays a JSONL scenario against a fresh engine + ledger and writes
// the resulting snapshots to the configured sinks.
type Runner struct {
	cfg    Config
	engine *engine.InMemory
	ledger *ledger.Ledger
	tokens token.Registry
	sink   storage.Storage
	store  *postgres.Store
	logger *zap.Logger
	pools  map[string]model.PoolKey
}

func NewRunner(cfg Config, sink storage.Storage, store *postgres.Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	eng := engine.NewInMemory()
	core := accounting.NewCore(eng, poolstate.NewAccessor(eng), feeHolder, logger)
	registry := token.NewInMemoryRegistry(nil)
	led := ledger.New(core, registry, logger)
	registry.SetTransferHook(led.OnTokenTransfer)

	return &Runner{
		cfg:    cfg,
		engine: eng,
		ledger: led,
		tokens: registry,
		sink:   sink,
		store:  store,
		logger: logger,
		pools:  make(map[string]model.PoolKey),
	}
}

// Run executes the scenario at inputPath line by line. Lines at or before the
// persisted state are skipped; a failed op is logged and does not stop the
// replay.
func (r *Runner) Run(ctx context.Context, inputPath string) error {
	startLine, err := r.loadStartLine(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var line uint64
	var total, applied, skipped, failed int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		line++
		total++

		if line <= startLine {
			skipped++
			continue
		}

		var op Op
		if err := json.Unmarshal(raw, &op); err != nil {
			failed++
			r.logger.Warn("decode op", zap.Uint64("line", line), zap.Error(err))
			continue
		}

		if err := r.apply(ctx, op); err != nil {
			failed++
			r.logger.Warn("apply op", zap.Uint64("line", line), zap.String("op", op.Op), zap.Error(err))
			continue
		}
		applied++

		if line%saveEvery == 0 {
			if err := r.saveState(ctx, line); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if err := r.flushSnapshots(ctx); err != nil {
		return err
	}
	if err := r.saveState(ctx, line); err != nil {
		return err
	}

	r.logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (r *Runner) apply(ctx context.Context, op Op) error {
	switch op.Op {
	case "init-pool":
		return r.applyInitPool(op)
	case "fund":
		return r.applyFund(op)
	case "donate":
		return r.applyDonate(op)
	case "mint":
		return r.applyMint(ctx, op)
	case "increase":
		return r.applyIncrease(ctx, op)
	case "decrease":
		return r.applyDecrease(ctx, op)
	case "collect":
		return r.applyCollect(ctx, op)
	case "burn":
		return r.applyBurn(ctx, op)
	case "transfer":
		return r.applyTransfer(op)
	case "approve":
		return r.applyApprove(op)
	default:
		return fmt.Errorf("unknown op: %s", op.Op)
	}
}

func (r *Runner) applyInitPool(op Op) error {
	currency0, err := parseAddress(op.Currency0)
	if err != nil {
		return fmt.Errorf("currency0: %w", err)
	}
	currency1, err := parseAddress(op.Currency1)
	if err != nil {
		return fmt.Errorf("currency1: %w", err)
	}
	key := model.PoolKey{
		Currency0:   currency0,
		Currency1:   currency1,
		Fee:         op.Fee,
		TickSpacing: op.TickSpacing,
	}
	if err := r.engine.InitializePool(key, op.Tick); err != nil {
		return err
	}
	r.pools[op.Pool] = key
	r.logger.Info("pool initialized",
		zap.String("pool", op.Pool),
		zap.String("pool_id", key.ID().Hex()),
		zap.Int32("tick", op.Tick),
	)
	return nil
}

func (r *Runner) applyFund(op Op) error {
	currency, err := parseAddress(op.Currency)
	if err != nil {
		return fmt.Errorf("currency: %w", err)
	}
	holder, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	amount, err := parseAmount(op.Amount)
	if err != nil {
		return err
	}
	return r.engine.Fund(currency, holder, amount)
}

func (r *Runner) applyDonate(op Op) error {
	key, ok := r.pools[op.Pool]
	if !ok {
		return fmt.Errorf("unknown pool: %s", op.Pool)
	}
	amount0, err := parseAmount(op.Amount0)
	if err != nil {
		return err
	}
	amount1, err := parseAmount(op.Amount1)
	if err != nil {
		return err
	}
	return r.engine.Donate(key.ID(), amount0, amount1)
}

func (r *Runner) applyMint(ctx context.Context, op Op) error {
	key, ok := r.pools[op.Pool]
	if !ok {
		return fmt.Errorf("unknown pool: %s", op.Pool)
	}
	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	recipient, err := parseOptionalAddress(op.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if recipient == (common.Address{}) {
		recipient = caller
	}
	rng := model.Range{PoolKey: key, TickLower: op.TickLower, TickUpper: op.TickUpper}

	var id uint64
	var delta model.BalanceDelta
	if op.Liquidity != "" {
		liquidity, err := parseLiquidity(op.Liquidity)
		if err != nil {
			return err
		}
		id, delta, err = r.ledger.Mint(ctx, caller, rng, liquidity, r.deadline(op), recipient, nil)
		if err != nil {
			return err
		}
	} else {
		desired0, err := parseAmount(op.Amount0)
		if err != nil {
			return err
		}
		desired1, err := parseAmount(op.Amount1)
		if err != nil {
			return err
		}
		min0, err := parseAmount(op.Min0)
		if err != nil {
			return err
		}
		min1, err := parseAmount(op.Min1)
		if err != nil {
			return err
		}
		id, delta, err = r.ledger.MintFromAmounts(ctx, caller, rng, desired0, desired1, min0, min1, r.deadline(op), recipient, nil)
		if err != nil {
			return err
		}
	}

	r.logger.Info("minted",
		zap.Uint64("position", id),
		zap.String("amount0", delta.Amount0.String()),
		zap.String("amount1", delta.Amount1.String()),
	)
	return nil
}

func (r *Runner) applyIncrease(ctx context.Context, op Op) error {
	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	liquidity, err := parseLiquidity(op.Liquidity)
	if err != nil {
		return err
	}
	delta, err := r.ledger.IncreaseLiquidity(ctx, caller, op.Position, liquidity, nil, op.UseClaims)
	if err != nil {
		return err
	}
	r.logDelta("increased", op.Position, delta)
	return nil
}

func (r *Runner) applyDecrease(ctx context.Context, op Op) error {
	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	liquidity, err := parseLiquidity(op.Liquidity)
	if err != nil {
		return err
	}
	min0, err := parseAmount(op.Min0)
	if err != nil {
		return err
	}
	min1, err := parseAmount(op.Min1)
	if err != nil {
		return err
	}
	delta, err := r.ledger.DecreaseLiquidity(ctx, caller, op.Position, liquidity, min0, min1, nil)
	if err != nil {
		return err
	}
	r.logDelta("decreased", op.Position, delta)
	return nil
}

func (r *Runner) applyCollect(ctx context.Context, op Op) error {
	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	recipient, err := parseOptionalAddress(op.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	delta, err := r.ledger.Collect(ctx, caller, op.Position, recipient, nil, op.UseClaims)
	if err != nil {
		return err
	}
	r.logDelta("collected", op.Position, delta)
	return nil
}

func (r *Runner) applyBurn(ctx context.Context, op Op) error {
	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	recipient, err := parseOptionalAddress(op.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	min0, err := parseAmount(op.Min0)
	if err != nil {
		return err
	}
	min1, err := parseAmount(op.Min1)
	if err != nil {
		return err
	}
	delta, err := r.ledger.Burn(ctx, caller, op.Position, recipient, min0, min1, nil, op.UseClaims)
	if err != nil {
		return err
	}
	r.logDelta("burned", op.Position, delta)
	return nil
}

func (r *Runner) applyTransfer(op Op) error {
	from, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	to, err := parseAddress(op.To)
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	return r.tokens.Transfer(op.Position, from, to)
}

func (r *Runner) applyApprove(op Op) error {
	caller, err := parseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	operator, err := parseOptionalAddress(op.Operator)
	if err != nil {
		return fmt.Errorf("operator: %w", err)
	}
	return r.ledger.Approve(op.Position, caller, operator)
}

func (r *Runner) deadline(op Op) int64 {
	if op.Deadline != 0 {
		return op.Deadline
	}
	return time.Now().Add(time.Hour).Unix()
}

func (r *Runner) logDelta(msg string, position uint64, delta model.BalanceDelta) {
	r.logger.Info(msg,
		zap.Uint64("position", position),
		zap.String("amount0", delta.Amount0.String()),
		zap.String("amount1", delta.Amount1.String()),
	)
}

func (r *Runner) flushSnapshots(ctx context.Context) error {
	positions, owners, err := r.ledger.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if r.sink != nil {
		if err := r.sink.PutPositionSnapshots(positions); err != nil {
			return err
		}
		if err := r.sink.PutOwnerLiquidity(owners); err != nil {
			return err
		}
	}
	if r.store != nil {
		if err := r.store.UpsertPositions(ctx, positions); err != nil {
			return err
		}
		if err := r.store.UpsertOwnerLiquidity(ctx, owners); err != nil {
			return err
		}
	}

	r.logger.Info("snapshots flushed",
		zap.Int("positions", len(positions)),
		zap.Int("owner_entries", len(owners)),
	)
	return nil
}

func (r *Runner) loadStartLine(ctx context.Context) (uint64, error) {
	if r.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (r *Runner) saveState(ctx context.Context, line uint64) error {
	if r.cfg.StateStore == nil {
		return nil
	}
	return r.cfg.StateStore.Save(ctx, line)
}
