package models_test

import (
	"testing"
	"time"

	"bitbucket.org/assurdata/agence_backend/models"
	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestListQuinzaines_Windows(t *testing.T) {
	windows := models.ListQuinzaines(day(2024, time.January, 10), day(2024, time.February, 20))

	if len(windows) != 4 {
		t.Fatalf("expected 4 fortnights over Jan-Feb, got %d", len(windows))
	}

	expected := []struct{ start, end time.Time }{
		{day(2024, time.January, 1), day(2024, time.January, 15)},
		{day(2024, time.January, 16), day(2024, time.January, 31)},
		{day(2024, time.February, 1), day(2024, time.February, 15)},
		{day(2024, time.February, 16), day(2024, time.February, 29)}, // leap year
	}
	for i, want := range expected {
		if !windows[i].Start.Equal(want.start) || !windows[i].End.Equal(want.end) {
			t.Errorf("window %d: got [%s, %s], want [%s, %s]", i,
				windows[i].Start.Format("2006-01-02"), windows[i].End.Format("2006-01-02"),
				want.start.Format("2006-01-02"), want.end.Format("2006-01-02"))
		}
	}
}

func TestListQuinzaines_StartAfterToday(t *testing.T) {
	windows := models.ListQuinzaines(day(2024, time.March, 1), day(2024, time.February, 1))
	if len(windows) != 0 {
		t.Fatalf("expected no windows when start is after today, got %d", len(windows))
	}
}

func TestQuinzaineWindowFor(t *testing.T) {
	first := models.QuinzaineWindowFor(day(2024, time.April, 7))
	if !first.Start.Equal(day(2024, time.April, 1)) || !first.End.Equal(day(2024, time.April, 15)) {
		t.Errorf("first half: got [%s, %s]", first.Start, first.End)
	}

	second := models.QuinzaineWindowFor(day(2024, time.April, 16))
	if !second.Start.Equal(day(2024, time.April, 16)) || !second.End.Equal(day(2024, time.April, 30)) {
		t.Errorf("second half: got [%s, %s]", second.Start, second.End)
	}

	boundary := models.QuinzaineWindowFor(day(2024, time.April, 15))
	if !boundary.End.Equal(day(2024, time.April, 15)) {
		t.Errorf("the 15th belongs to the first half, got end %s", boundary.End)
	}
}

func TestQuinzaineNet(t *testing.T) {
	net := models.QuinzaineNet(
		decimal.NewFromFloat(5000),
		decimal.NewFromFloat(1250.500),
		decimal.NewFromFloat(730.250),
	)
	if !net.Equal(decimal.NewFromFloat(3019.250)) {
		t.Fatalf("net = %s, want 3019.250", net)
	}

	// Net can go negative when expenses outrun commission.
	net = models.QuinzaineNet(decimal.NewFromInt(100), decimal.NewFromInt(80), decimal.NewFromInt(50))
	if !net.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("net = %s, want -30", net)
	}
}
