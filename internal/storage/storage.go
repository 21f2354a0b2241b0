package storage

import "liquidityLedger/internal/model"

// Storage defines a sink for ledger snapshots.
type Storage interface {
	PutPositionSnapshots(positions []model.PositionSnapshot) error
	PutOwnerLiquidity(entries []model.OwnerLiquiditySnapshot) error
}
