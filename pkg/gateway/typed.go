package gateway

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
)

// FetchAll selects rows and decodes each into T. Rows that do not decode or fail
// Validate are dropped and logged, so callers only see well-formed records.
func FetchAll[T models.Record](ctx context.Context, q *Query) ([]T, error) {
	var raw []jsoniter.RawMessage
	if err := q.Fetch(ctx, &raw); err != nil {
		return nil, err
	}
	return DecodeRows[T](q.Table(), raw), nil
}

// FetchOne selects a single row into T
func FetchOne[T models.Record](ctx context.Context, q *Query) (T, error) {
	var row T
	if err := q.Single().Fetch(ctx, &row); err != nil {
		return row, err
	}
	if err := row.Validate(); err != nil {
		return row, fmt.Errorf("%s row rejected: %w", q.Table(), err)
	}
	return row, nil
}

// DecodeRows decodes raw rows into T, dropping any that are malformed
func DecodeRows[T models.Record](table string, raw []jsoniter.RawMessage) []T {
	rows := make([]T, 0, len(raw))
	for _, r := range raw {
		row, err := DecodeRow[T](r)
		if err != nil {
			logger.Warn("Dropping malformed row", "table", table, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// DecodeRow decodes and validates one row
func DecodeRow[T models.Record](raw []byte) (T, error) {
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, err
	}
	if err := row.Validate(); err != nil {
		return row, err
	}
	return row, nil
}
