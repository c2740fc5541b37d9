package snapshot

import (
	"errors"
	"testing"
	"time"
)

func TestParseAmountTruncates(t *testing.T) {
	cases := map[string]int64{
		"1234.999":       1234,
		"0.9":            0,
		"42":             42,
		"1e3":            1000,
		" 77.5 ":         77,
		"98765432101.01": 98765432101,
	}
	for raw, want := range cases {
		got, err := ParseAmount("dailyDepositUSD", raw)
		if err != nil {
			t.Fatalf("%q 不应报错: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%q 期望 %d, 实际 %d", raw, want, got)
		}
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not-a-number", "", "NaN", "12,5"} {
		_, err := ParseAmount("totalValueLockedUSD", raw)
		var coerceErr *CoercionError
		if !errors.As(err, &coerceErr) {
			t.Fatalf("%q 应返回 CoercionError, 实际 %v", raw, err)
		}
		if coerceErr.Field != "totalValueLockedUSD" {
			t.Fatalf("字段名不正确: %s", coerceErr.Field)
		}
	}
}

func TestParseAmountOutOfRange(t *testing.T) {
	if _, err := ParseAmount("totalValueLockedUSD", "99999999999999999999999"); err == nil {
		t.Fatal("超出 int64 范围应报错")
	}
}

func TestParseFloatKeepsFraction(t *testing.T) {
	got, err := ParseFloat("rate", "3.25")
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if got != 3.25 {
		t.Fatalf("期望 3.25, 实际 %v", got)
	}
}

func TestParseBlock(t *testing.T) {
	if v, err := ParseBlock("15"); err != nil || v != 15 {
		t.Fatalf("期望 15, 实际 %d (%v)", v, err)
	}
	if _, err := ParseBlock("15.5"); err == nil {
		t.Fatal("小数区块号应报错")
	}
}

func TestJoinRateTypeAllCombinations(t *testing.T) {
	cases := []struct {
		side, typ, want string
	}{
		{"LENDER", "STABLE", "LENDER-STABLE"},
		{"LENDER", "VARIABLE", "LENDER-VARIABLE"},
		{"BORROWER", "STABLE", "BORROWER-STABLE"},
		{"BORROWER", "VARIABLE", "BORROWER-VARIABLE"},
	}
	for _, c := range cases {
		got, err := JoinRateType(c.side, c.typ)
		if err != nil {
			t.Fatalf("%s/%s 不应报错: %v", c.side, c.typ, err)
		}
		if got != c.want {
			t.Fatalf("期望 %s, 实际 %s", c.want, got)
		}
	}
}

func TestJoinRateTypeUnknown(t *testing.T) {
	_, err := JoinRateType("BORROWER", "FIXED")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("未知类型应返回 SchemaError, 实际 %v", err)
	}
}

func TestDayOfUsesLocation(t *testing.T) {
	// 2024-03-01T23:30:00Z
	ts := int64(1709335800)

	utcDay := DayOf(ts, nil)
	if got := utcDay.Format(DayLayout); got != "2024-03-01" {
		t.Fatalf("UTC 日期应为 2024-03-01, 实际 %s", got)
	}

	tokyo := time.FixedZone("UTC+9", 9*3600)
	if got := DayOf(ts, tokyo).Format(DayLayout); got != "2024-03-02" {
		t.Fatalf("UTC+9 日期应为 2024-03-02, 实际 %s", got)
	}
}
