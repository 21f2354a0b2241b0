package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"liquidityLedger/internal/model"
)

// JsonlStorage writes ledger snapshots to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutPositionSnapshots appends position records as JSON lines.
func (s *JsonlStorage) PutPositionSnapshots(positions []model.PositionSnapshot) error {
	records := make([]interface{}, len(positions))
	for i, p := range positions {
		records[i] = p
	}
	return s.appendRecords(records)
}

// PutOwnerLiquidity appends owner-index records as JSON lines.
func (s *JsonlStorage) PutOwnerLiquidity(entries []model.OwnerLiquiditySnapshot) error {
	records := make([]interface{}, len(entries))
	for i, e := range entries {
		records[i] = e
	}
	return s.appendRecords(records)
}

func (s *JsonlStorage) appendRecords(records []interface{}) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

var _ Storage = (*JsonlStorage)(nil)
