package model

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Range is an immutable price interval within one pool. Multiple positions,
// possibly held by different owners, may reference the identical Range.
type Range struct {
	PoolKey   PoolKey `json:"pool_key"`
	TickLower int32   `json:"tick_lower"`
	TickUpper int32   `json:"tick_upper"`
}

// ID returns the stable hash of the range fields, used as the secondary
// index key for per-owner liquidity aggregation.
func (r Range) ID() common.Hash {
	buf := make([]byte, 0, common.HashLength+8)
	poolID := r.PoolKey.ID()
	buf = append(buf, poolID.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.TickLower))
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.TickUpper))
	return crypto.Keccak256Hash(buf)
}

// Valid reports whether the tick boundaries are ordered.
func (r Range) Valid() bool {
	return r.TickLower < r.TickUpper
}
