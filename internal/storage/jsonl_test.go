package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"liquidityLedger/internal/model"
)

func TestJsonlStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "positions.jsonl")
	sink := NewJsonlStorage(path)

	positions := []model.PositionSnapshot{
		{
			PositionID:       1,
			Owner:            "0x00000000000000000000000000000000000000Aa",
			PoolID:           "0xabc",
			RangeID:          "0xdef",
			TickLower:        -600,
			TickUpper:        600,
			Liquidity:        "1000000",
			FeeGrowthInside0: "0",
			FeeGrowthInside1: "0",
			Owed0:            "42",
			Owed1:            "0",
			Nonce:            1,
		},
	}
	owners := []model.OwnerLiquiditySnapshot{
		{Owner: "0x00000000000000000000000000000000000000Aa", RangeID: "0xdef", Liquidity: "1000000"},
	}

	if err := sink.PutPositionSnapshots(positions); err != nil {
		t.Fatalf("put positions: %v", err)
	}
	if err := sink.PutOwnerLiquidity(owners); err != nil {
		t.Fatalf("put owner liquidity: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan output: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}

	var gotPos model.PositionSnapshot
	if err := json.Unmarshal([]byte(lines[0]), &gotPos); err != nil {
		t.Fatalf("unmarshal position: %v", err)
	}
	if gotPos != positions[0] {
		t.Fatalf("position round trip mismatch: got %+v", gotPos)
	}

	var gotOwner model.OwnerLiquiditySnapshot
	if err := json.Unmarshal([]byte(lines[1]), &gotOwner); err != nil {
		t.Fatalf("unmarshal owner entry: %v", err)
	}
	if gotOwner != owners[0] {
		t.Fatalf("owner round trip mismatch: got %+v", gotOwner)
	}
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.jsonl")
	sink := NewJsonlStorage(path)

	entry := []model.OwnerLiquiditySnapshot{{Owner: "0x1", RangeID: "0x2", Liquidity: "3"}}
	if err := sink.PutOwnerLiquidity(entry); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := sink.PutOwnerLiquidity(entry); err != nil {
		t.Fatalf("second put: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("appended line count = %d, want 2", count)
	}
}
