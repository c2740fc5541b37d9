package snapshot

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var errOutOfRange = errors.New("value out of int64 range")

// ParseAmount parses a decimal USD amount and truncates it toward zero.
// "1234.999" -> 1234.
func ParseAmount(field, raw string) (int64, error) {
	d, err := parseDecimal(field, raw)
	if err != nil {
		return 0, err
	}
	whole := d.Truncate(0)
	if !whole.BigInt().IsInt64() {
		return 0, &CoercionError{Field: field, Value: raw, Err: errOutOfRange}
	}
	return whole.IntPart(), nil
}

// ParseFloat parses a decimal string into a float64 without truncation.
func ParseFloat(field, raw string) (float64, error) {
	d, err := parseDecimal(field, raw)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// ParseBlock parses a block number.
func ParseBlock(raw string) (int64, error) {
	return parseInt("blockNumber", raw)
}

// ParseUnix parses a Unix timestamp in seconds.
func ParseUnix(raw string) (int64, error) {
	return parseInt("timestamp", raw)
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, &CoercionError{Field: field, Value: raw, Err: err}
	}
	return d, nil
}

func parseInt(field, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &CoercionError{Field: field, Value: raw, Err: err}
	}
	return v, nil
}
