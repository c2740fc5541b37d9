package snapshot

import (
	"fmt"
	"time"
)

// Rate sides and rate types as reported by the subgraph.
const (
	SideLender   = "LENDER"
	SideBorrower = "BORROWER"

	TypeStable   = "STABLE"
	TypeVariable = "VARIABLE"
)

// Joined rate types carried by RateRow.Type.
const (
	LenderStable     = SideLender + "-" + TypeStable
	LenderVariable   = SideLender + "-" + TypeVariable
	BorrowerStable   = SideBorrower + "-" + TypeStable
	BorrowerVariable = SideBorrower + "-" + TypeVariable
)

// RateTypes lists every joined rate type in display order.
var RateTypes = []string{LenderStable, LenderVariable, BorrowerStable, BorrowerVariable}

// RawSnapshot is one lending market on one day, exactly as the source returned it.
// Numeric fields are kept as strings until normalization.
type RawSnapshot struct {
	BlockNumber string
	Timestamp   string
	Market      RawMarket

	TotalValueLockedUSD string
	DailyDepositUSD     string
	DailyWithdrawUSD    string
	DailyBorrowUSD      string
	DailyLiquidateUSD   string
	DailyRepayUSD       string

	DailySupplySideRevenueUSD   string
	DailyProtocolSideRevenueUSD string

	Rates []RawRate
}

// RawMarket identifies the asset a snapshot belongs to.
type RawMarket struct {
	ID   string
	Name string
}

// RawRate is a single nested interest-rate observation.
type RawRate struct {
	Rate string
	Side string
	Type string
}

// MetricRow is the normalized per-snapshot metrics row.
type MetricRow struct {
	Day                         time.Time
	TVL                         int64
	DailyDepositUSD             int64
	DailyWithdrawUSD            int64
	Asset                       string
	DailyBorrowUSD              int64
	DailyLiquidateUSD           int64
	DailyRepayUSD               int64
	DailySupplySideRevenueUSD   float64
	DailyProtocolSideRevenueUSD float64
}

// RateRow is the normalized per-observation rate row.
type RateRow struct {
	Day   time.Time
	Type  string
	Asset string
	Rate  float64
}

// Tables bundles both normalized tables of one fetch session.
type Tables struct {
	Rates   []RateRow
	Metrics []MetricRow
}

// Empty reports whether the session produced no rows at all.
func (t Tables) Empty() bool {
	return len(t.Rates) == 0 && len(t.Metrics) == 0
}

// JoinRateType builds the "SIDE-TYPE" label for a rate observation.
func JoinRateType(side, typ string) (string, error) {
	switch side {
	case SideLender, SideBorrower:
	default:
		return "", &SchemaError{Field: "rates.side", Err: fmt.Errorf("unexpected value %q", side)}
	}
	switch typ {
	case TypeStable, TypeVariable:
	default:
		return "", &SchemaError{Field: "rates.type", Err: fmt.Errorf("unexpected value %q", typ)}
	}
	return side + "-" + typ, nil
}

// DayOf returns the calendar day of a Unix timestamp as midnight in loc.
func DayOf(unix int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := time.Unix(unix, 0).In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayLayout is the textual form of a Day column.
const DayLayout = "2006-01-02"
