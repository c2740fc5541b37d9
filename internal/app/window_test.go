package app

import (
	"testing"
	"time"
)

func TestParseWindowDefaults(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	w, err := ParseWindow("", "", now, 30, time.UTC)
	if err != nil {
		t.Fatalf("默认窗口不应报错: %v", err)
	}
	if !w.To.Equal(now) || !w.From.Equal(now.AddDate(0, 0, -30)) {
		t.Fatalf("默认窗口应为最近 30 天: %s - %s", w.From, w.To)
	}
}

func TestParseWindowDates(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*3600)
	w, err := ParseWindow("2024-03-01", "2024-03-02", time.Now(), 30, tokyo)
	if err != nil {
		t.Fatalf("日期格式应被接受: %v", err)
	}
	if !w.From.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, tokyo)) {
		t.Fatalf("起点应为所在时区的零点: %s", w.From)
	}
	if !w.To.Equal(time.Date(2024, 3, 2, 23, 59, 59, 0, tokyo)) {
		t.Fatalf("仅日期的终点应覆盖整天: %s", w.To)
	}
}

func TestParseWindowRFC3339(t *testing.T) {
	w, err := ParseWindow("2024-03-01T06:00:00Z", "2024-03-01T18:00:00+02:00", time.Now(), 30, time.UTC)
	if err != nil {
		t.Fatalf("RFC3339 应被接受: %v", err)
	}
	if w.To.Unix()-w.From.Unix() != 10*3600 {
		t.Fatalf("窗口长度不正确: %s - %s", w.From, w.To)
	}
}

func TestParseWindowFromOnlyUsesNow(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	w, err := ParseWindow("2024-03-01", "", now, 30, time.UTC)
	if err != nil {
		t.Fatalf("只给 --from 不应报错: %v", err)
	}
	if !w.To.Equal(now) {
		t.Fatalf("终点应默认为当前时间: %s", w.To)
	}
}

func TestParseWindowErrors(t *testing.T) {
	now := time.Now()
	cases := []struct{ from, to string }{
		{"yesterday", ""},
		{"", "03/01/2024"},
		{"2024-03-05", "2024-03-01"},
	}
	for _, tc := range cases {
		if _, err := ParseWindow(tc.from, tc.to, now, 30, time.UTC); err == nil {
			t.Fatalf("%q/%q 应报错", tc.from, tc.to)
		}
	}
}
