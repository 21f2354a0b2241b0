package model

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKey identifies a two-currency pool and its fee tier.
type PoolKey struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
}

// ID returns the deterministic pool identifier derived from the key fields.
func (k PoolKey) ID() common.Hash {
	buf := make([]byte, 0, 2*common.AddressLength+8)
	buf = append(buf, k.Currency0.Bytes()...)
	buf = append(buf, k.Currency1.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, k.Fee)
	buf = binary.BigEndian.AppendUint32(buf, uint32(k.TickSpacing))
	return crypto.Keccak256Hash(buf)
}
