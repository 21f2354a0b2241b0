package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityLedger/internal/model"
)

// Store provides Postgres persistence for ledger snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPositions inserts or updates position snapshots.
func (s *Store) UpsertPositions(ctx context.Context, positions []model.PositionSnapshot) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO positions (
				position_id, owner, operator, pool_id, range_id, tick_lower, tick_upper,
				liquidity, fee_growth_inside0_last, fee_growth_inside1_last, owed0, owed1,
				nonce, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (position_id)
			DO UPDATE SET
				owner = EXCLUDED.owner,
				operator = EXCLUDED.operator,
				liquidity = EXCLUDED.liquidity,
				fee_growth_inside0_last = EXCLUDED.fee_growth_inside0_last,
				fee_growth_inside1_last = EXCLUDED.fee_growth_inside1_last,
				owed0 = EXCLUDED.owed0,
				owed1 = EXCLUDED.owed1,
				nonce = EXCLUDED.nonce,
				updated_at = now()
		`,
			int64(p.PositionID),
			p.Owner,
			p.Operator,
			p.PoolID,
			p.RangeID,
			p.TickLower,
			p.TickUpper,
			p.Liquidity,
			p.FeeGrowthInside0,
			p.FeeGrowthInside1,
			p.Owed0,
			p.Owed1,
			int64(p.Nonce),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range positions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertOwnerLiquidity inserts or updates owner index entries.
func (s *Store) UpsertOwnerLiquidity(ctx context.Context, entries []model.OwnerLiquiditySnapshot) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO owner_liquidity (owner, range_id, liquidity, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (owner, range_id)
			DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				updated_at = now()
		`, e.Owner, e.RangeID, e.Liquidity)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_line for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var line uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_line FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&line); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return line, true, nil
}

// SaveState upserts last_processed_line for a name.
func (s *Store) SaveState(ctx context.Context, name string, line uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_processed_line, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_line = EXCLUDED.last_processed_line, updated_at = now()
	`, name, line)
	return err
}
