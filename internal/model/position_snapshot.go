package model

// PositionSnapshot is the storage record for one ledger position. Big values
// are serialized as decimal strings so JSON and Postgres round-trip them
// without precision loss.
type PositionSnapshot struct {
	PositionID         uint64 `json:"position_id"`
	Owner              string `json:"owner"`
	Operator           string `json:"operator,omitempty"`
	PoolID             string `json:"pool_id"`
	RangeID            string `json:"range_id"`
	TickLower          int32  `json:"tick_lower"`
	TickUpper          int32  `json:"tick_upper"`
	Liquidity          string `json:"liquidity"`
	FeeGrowthInside0   string `json:"fee_growth_inside0_last"`
	FeeGrowthInside1   string `json:"fee_growth_inside1_last"`
	Owed0              string `json:"owed0"`
	Owed1              string `json:"owed1"`
	Nonce              uint64 `json:"nonce"`
}

// OwnerLiquiditySnapshot is the storage record for one (owner, range) entry
// of the per-owner liquidity index.
type OwnerLiquiditySnapshot struct {
	Owner     string `json:"owner"`
	RangeID   string `json:"range_id"`
	Liquidity string `json:"liquidity"`
}
