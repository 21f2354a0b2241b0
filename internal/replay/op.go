package replay

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Op is one scenario line. Which fields are required depends on the op name;
// big values are decimal strings.
type Op struct {
	Op          string `json:"op"`
	Pool        string `json:"pool,omitempty"`
	Currency0   string `json:"currency0,omitempty"`
	Currency1   string `json:"currency1,omitempty"`
	Fee         uint32 `json:"fee,omitempty"`
	TickSpacing int32  `json:"tick_spacing,omitempty"`
	Tick        int32  `json:"tick,omitempty"`
	TickLower   int32  `json:"tick_lower,omitempty"`
	TickUpper   int32  `json:"tick_upper,omitempty"`
	Caller      string `json:"caller,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Operator    string `json:"operator,omitempty"`
	To          string `json:"to,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Amount0     string `json:"amount0,omitempty"`
	Amount1     string `json:"amount1,omitempty"`
	Liquidity   string `json:"liquidity,omitempty"`
	Min0        string `json:"min0,omitempty"`
	Min1        string `json:"min1,omitempty"`
	Deadline    int64  `json:"deadline,omitempty"`
	UseClaims   bool   `json:"use_claims,omitempty"`
	Position    uint64 `json:"position,omitempty"`
}

func parseAddress(input string) (common.Address, error) {
	if input == "" {
		return common.Address{}, fmt.Errorf("address is required")
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// parseOptionalAddress returns the zero address for empty input, which the
// ledger treats as "pay the owner".
func parseOptionalAddress(input string) (common.Address, error) {
	if input == "" {
		return common.Address{}, nil
	}
	return parseAddress(input)
}

func parseAmount(input string) (*big.Int, error) {
	if input == "" {
		return new(big.Int), nil
	}
	val, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	return val, nil
}

func parseLiquidity(input string) (*uint256.Int, error) {
	if input == "" {
		return nil, fmt.Errorf("liquidity is required")
	}
	val, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid liquidity %s: %w", input, err)
	}
	return val, nil
}
