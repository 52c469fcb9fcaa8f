// ABOUTME: Decoding and validation of raw backend rows into typed shapes
// ABOUTME: Every row is validated right after decoding so bad data stops at the boundary

package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRow is returned when a row does not match its table shape.
var ErrInvalidRow = errors.New("invalid row")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode decodes and validates a single row.
func Decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: decoding %T: %v", ErrInvalidRow, v, err)
	}
	if err := validate.Struct(&v); err != nil {
		return nil, fmt.Errorf("%w: validating %T: %v", ErrInvalidRow, v, err)
	}
	return &v, nil
}

// DecodeAll decodes and validates every row. Returns an empty slice (not nil)
// when rows is empty.
func DecodeAll[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, raw := range rows {
		v, err := Decode[T](raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, *v)
	}
	return out, nil
}

// One decodes the single row of a Single select.
func One[T any](rows []json.RawMessage) (*T, error) {
	if len(rows) != 1 {
		return nil, fmt.Errorf("%w: expected 1 row, got %d", ErrInvalidRow, len(rows))
	}
	return Decode[T](rows[0])
}
