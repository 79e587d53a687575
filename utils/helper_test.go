package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWithinTolerance(t *testing.T) {
	a := decimal.NewFromFloat(100.000)
	if !WithinTolerance(a, decimal.NewFromFloat(100.005)) {
		t.Error("0.005 drift is within the money tolerance")
	}
	if WithinTolerance(a, decimal.NewFromFloat(100.02)) {
		t.Error("0.02 drift is outside the money tolerance")
	}
	if !WithinTolerance(a, decimal.NewFromFloat(99.995)) {
		t.Error("tolerance is symmetric")
	}
}

func TestConvertToDate_AgencyTimezone(t *testing.T) {
	// 23:30 UTC is already the next day in Africa/Tunis (UTC+1).
	utc := time.Date(2024, time.June, 1, 23, 30, 0, 0, time.UTC)
	got, err := ConvertToDate(utc, "")
	if err != nil {
		t.Fatalf("ConvertToDate: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.June || got.Day() != 2 {
		t.Fatalf("got %s, want 2024-06-02 in agency timezone", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Fatalf("expected midnight, got %s", got)
	}
}

func TestDayRange(t *testing.T) {
	start, end, err := DayRange(time.Date(2024, time.June, 15, 13, 45, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("DayRange: %v", err)
	}
	if start.Hour() != 0 {
		t.Errorf("start should be midnight, got %s", start)
	}
	if !end.After(start) {
		t.Errorf("end %s should follow start %s", end, start)
	}
	if end.Sub(start) >= 24*time.Hour {
		t.Errorf("range should stay inside one day, got %s", end.Sub(start))
	}
}

func TestSameDay(t *testing.T) {
	morning := time.Date(2024, time.June, 15, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, time.June, 15, 20, 0, 0, 0, time.UTC)
	if !SameDay(morning, evening) {
		t.Error("same calendar day should match")
	}
	// 23:30 UTC crosses into the next Tunis day.
	lateUTC := time.Date(2024, time.June, 15, 23, 30, 0, 0, time.UTC)
	if SameDay(morning, lateUTC) {
		t.Error("23:30 UTC falls on the next agency day")
	}
}

func TestEndOfMonth(t *testing.T) {
	cases := []struct {
		in   time.Time
		want int
	}{
		{time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC), 29},
		{time.Date(2023, time.February, 3, 0, 0, 0, 0, time.UTC), 28},
		{time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC), 30},
		{time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), 31},
	}
	for _, tc := range cases {
		if got := EndOfMonth(tc.in); got.Day() != tc.want {
			t.Errorf("EndOfMonth(%s) = day %d, want %d", tc.in.Format("2006-01"), got.Day(), tc.want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 120.500 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if !d.Equal(decimal.NewFromFloat(120.5)) {
		t.Fatalf("got %s, want 120.5", d)
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Error("empty string should fail")
	}
	if _, err := ParseDecimal("12,5"); err == nil {
		t.Error("comma decimal separator should fail")
	}
}
