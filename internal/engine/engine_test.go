package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityLedger/internal/model"
)

var (
	testCurrency0 = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	testCurrency1 = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testPayer     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func testPoolKey() model.PoolKey {
	return model.PoolKey{
		Currency0:   testCurrency0,
		Currency1:   testCurrency1,
		Fee:         3000,
		TickSpacing: 60,
	}
}

func testRange() model.Range {
	return model.Range{PoolKey: testPoolKey(), TickLower: -300, TickUpper: 300}
}

func newTestEngine(t *testing.T) *InMemory {
	t.Helper()
	e := NewInMemory()
	if err := e.InitializePool(testPoolKey(), 0); err != nil {
		t.Fatalf("initialize pool: %v", err)
	}
	e.Fund(testCurrency0, testPayer, big.NewInt(1_000_000_000))
	e.Fund(testCurrency1, testPayer, big.NewInt(1_000_000_000))
	return e
}

func TestUnlockAddLiquiditySettles(t *testing.T) {
	e := newTestEngine(t)
	rng := testRange()
	salt := common.HexToHash("0x01")

	err := e.Unlock(context.Background(), func(lk *Lock) error {
		delta, _, err := lk.ModifyLiquidity(rng, big.NewInt(1_000_000), salt)
		if err != nil {
			return err
		}
		if delta.Amount0.Sign() >= 0 || delta.Amount1.Sign() >= 0 {
			t.Fatalf("adding liquidity must owe the pool, got %s / %s", delta.Amount0, delta.Amount1)
		}
		if err := lk.Settle(testCurrency0, testPayer, new(big.Int).Neg(delta.Amount0)); err != nil {
			return err
		}
		return lk.Settle(testCurrency1, testPayer, new(big.Int).Neg(delta.Amount1))
	})
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	if e.ReserveOf(testCurrency0).Sign() <= 0 {
		t.Fatalf("reserves not funded after settle")
	}
}

func TestUnlockRejectsUnsettledResidue(t *testing.T) {
	e := newTestEngine(t)
	rng := testRange()

	before := e.BalanceOf(testCurrency0, testPayer)
	err := e.Unlock(context.Background(), func(lk *Lock) error {
		_, _, err := lk.ModifyLiquidity(rng, big.NewInt(1_000_000), common.HexToHash("0x01"))
		return err
	})
	if !errors.Is(err, ErrCurrencyNotSettled) {
		t.Fatalf("want ErrCurrencyNotSettled, got %v", err)
	}

	// Rollback must leave no trace of the mutation.
	after := e.BalanceOf(testCurrency0, testPayer)
	if before.Cmp(after) != 0 {
		t.Fatalf("balance changed despite rollback: %s -> %s", before, after)
	}
	if _, tick, _ := e.Slot0(testPoolKey().ID()); tick != 0 {
		t.Fatalf("pool state changed despite rollback")
	}
}

func TestUnlockRollsBackOnCallbackError(t *testing.T) {
	e := newTestEngine(t)
	rng := testRange()
	boom := errors.New("boom")

	err := e.Unlock(context.Background(), func(lk *Lock) error {
		delta, _, err := lk.ModifyLiquidity(rng, big.NewInt(500_000), common.HexToHash("0x02"))
		if err != nil {
			return err
		}
		if err := lk.Settle(testCurrency0, testPayer, new(big.Int).Neg(delta.Amount0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("inner failure must propagate verbatim, got %v", err)
	}

	if e.ReserveOf(testCurrency0).Sign() != 0 {
		t.Fatalf("reserve mutation survived rollback")
	}
	if e.BalanceOf(testCurrency0, testPayer).Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("payer balance mutation survived rollback")
	}
}

func TestNestedUnlockRejected(t *testing.T) {
	e := newTestEngine(t)

	err := e.Unlock(context.Background(), func(lk *Lock) error {
		return e.Unlock(context.Background(), func(*Lock) error { return nil })
	})
	if !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("want ErrAlreadyLocked, got %v", err)
	}
}

func TestLockCapabilityDiesWithWindow(t *testing.T) {
	e := newTestEngine(t)

	var escaped *Lock
	if err := e.Unlock(context.Background(), func(lk *Lock) error {
		escaped = lk
		return nil
	}); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	err := escaped.Take(testCurrency0, testPayer, big.NewInt(1))
	if !errors.Is(err, ErrNotLocked) {
		t.Fatalf("escaped lock must be dead, got %v", err)
	}
}

func TestDonateAccruesFees(t *testing.T) {
	e := newTestEngine(t)
	rng := testRange()
	salt := common.HexToHash("0x03")

	// Provide liquidity so the donation has someone to accrue to.
	if err := e.Unlock(context.Background(), func(lk *Lock) error {
		delta, _, err := lk.ModifyLiquidity(rng, big.NewInt(1_000_000), salt)
		if err != nil {
			return err
		}
		if err := lk.Settle(testCurrency0, testPayer, new(big.Int).Neg(delta.Amount0)); err != nil {
			return err
		}
		return lk.Settle(testCurrency1, testPayer, new(big.Int).Neg(delta.Amount1))
	}); err != nil {
		t.Fatalf("mint unlock failed: %v", err)
	}

	if err := e.Donate(testPoolKey().ID(), big.NewInt(40_000), big.NewInt(20_000)); err != nil {
		t.Fatalf("donate failed: %v", err)
	}

	// A zero-delta modify must now report the accrued fees.
	if err := e.Unlock(context.Background(), func(lk *Lock) error {
		delta, fees, err := lk.ModifyLiquidity(rng, new(big.Int), salt)
		if err != nil {
			return err
		}
		if fees.Amount0.Cmp(big.NewInt(39_999)) < 0 || fees.Amount0.Cmp(big.NewInt(40_000)) > 0 {
			t.Fatalf("fees0 outside truncation tolerance: %s", fees.Amount0)
		}
		if fees.Amount1.Cmp(big.NewInt(19_999)) < 0 || fees.Amount1.Cmp(big.NewInt(20_000)) > 0 {
			t.Fatalf("fees1 outside truncation tolerance: %s", fees.Amount1)
		}
		if err := lk.Take(testCurrency0, testPayer, delta.Amount0); err != nil {
			return err
		}
		return lk.Take(testCurrency1, testPayer, delta.Amount1)
	}); err != nil {
		t.Fatalf("collect unlock failed: %v", err)
	}
}

func TestDonateWithoutLiquidity(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Donate(testPoolKey().ID(), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("want ErrNoLiquidity, got %v", err)
	}
}

func TestMintAndBurnCreditRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	rng := testRange()
	salt := common.HexToHash("0x04")

	// Add liquidity settling from bank, then remove it taking the payout
	// as internal credit.
	if err := e.Unlock(context.Background(), func(lk *Lock) error {
		delta, _, err := lk.ModifyLiquidity(rng, big.NewInt(2_000_000), salt)
		if err != nil {
			return err
		}
		if err := lk.Settle(testCurrency0, testPayer, new(big.Int).Neg(delta.Amount0)); err != nil {
			return err
		}
		return lk.Settle(testCurrency1, testPayer, new(big.Int).Neg(delta.Amount1))
	}); err != nil {
		t.Fatalf("mint unlock failed: %v", err)
	}

	if err := e.Unlock(context.Background(), func(lk *Lock) error {
		delta, _, err := lk.ModifyLiquidity(rng, big.NewInt(-2_000_000), salt)
		if err != nil {
			return err
		}
		if err := lk.MintCredit(testCurrency0, testPayer, delta.Amount0); err != nil {
			return err
		}
		return lk.MintCredit(testCurrency1, testPayer, delta.Amount1)
	}); err != nil {
		t.Fatalf("burn unlock failed: %v", err)
	}

	credit0 := e.CreditOf(testCurrency0, testPayer)
	if credit0.Sign() <= 0 {
		t.Fatalf("expected positive credit, got %s", credit0)
	}

	// Redeem credit for real funds.
	if err := e.Unlock(context.Background(), func(lk *Lock) error {
		if err := lk.BurnCredit(testCurrency0, testPayer, credit0); err != nil {
			return err
		}
		return lk.Take(testCurrency0, testPayer, credit0)
	}); err != nil {
		t.Fatalf("redeem unlock failed: %v", err)
	}
	if e.CreditOf(testCurrency0, testPayer).Sign() != 0 {
		t.Fatalf("credit not consumed")
	}
}

func TestDirectMutationsRejectedDuringUnlock(t *testing.T) {
	e := newTestEngine(t)

	otherKey := testPoolKey()
	otherKey.Fee = 500

	err := e.Unlock(context.Background(), func(lk *Lock) error {
		if err := e.InitializePool(otherKey, 0); !errors.Is(err, ErrAlreadyLocked) {
			t.Fatalf("initialize inside window: %v", err)
		}
		if err := e.Donate(testPoolKey().ID(), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrAlreadyLocked) {
			t.Fatalf("donate inside window: %v", err)
		}
		if err := e.Fund(testCurrency0, testPayer, big.NewInt(1)); !errors.Is(err, ErrAlreadyLocked) {
			t.Fatalf("fund inside window: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	// The window is closed; direct mutations work again.
	if err := e.InitializePool(otherKey, 0); err != nil {
		t.Fatalf("initialize after window: %v", err)
	}
	if err := e.Fund(testCurrency0, testPayer, big.NewInt(1)); err != nil {
		t.Fatalf("fund after window: %v", err)
	}
}
