package models_test

import (
	"testing"
	"time"

	"bitbucket.org/assurdata/agence_backend/models"
	"github.com/shopspring/decimal"
)

func TestGenerateTermes_QuarterlySchedule(t *testing.T) {
	effective := day(2024, time.January, 10)
	termes := models.GenerateTermes("CTR-001", decimal.NewFromInt(1200), effective, models.PeriodicityQuarterly)

	if len(termes) != 4 {
		t.Fatalf("expected 4 quarterly termes, got %d", len(termes))
	}
	for i, terme := range termes {
		if !terme.Premium.Equal(decimal.NewFromInt(300)) {
			t.Errorf("terme %d premium = %s, want 300", i, terme.Premium)
		}
		want := effective.AddDate(0, i*3, 0)
		if !terme.DueDate.Equal(want) {
			t.Errorf("terme %d due %s, want %s", i, terme.DueDate, want)
		}
		if terme.IsCollected() {
			t.Errorf("terme %d should start pending", i)
		}
	}
}

func TestGenerateTermes_LastAbsorbsRounding(t *testing.T) {
	annual := decimal.NewFromInt(1000)
	termes := models.GenerateTermes("CTR-002", annual, day(2024, time.March, 1), models.PeriodicityMonthly)

	if len(termes) != 12 {
		t.Fatalf("expected 12 monthly termes, got %d", len(termes))
	}

	sum := decimal.Zero
	for _, terme := range termes {
		sum = sum.Add(terme.Premium)
	}
	if !sum.Equal(annual) {
		t.Fatalf("termes sum to %s, want exactly %s", sum, annual)
	}

	// 1000/12 rounds to 83.3333; the final installment differs.
	if termes[0].Premium.Equal(termes[11].Premium) {
		t.Fatalf("last terme should absorb the rounding remainder, got uniform %s", termes[0].Premium)
	}
}

func TestTermesPerYear(t *testing.T) {
	cases := map[models.ContractPeriodicity]int{
		models.PeriodicityAnnual:     1,
		models.PeriodicitySemiAnnual: 2,
		models.PeriodicityQuarterly:  4,
		models.PeriodicityMonthly:    12,
	}
	for periodicity, want := range cases {
		if got := periodicity.TermesPerYear(); got != want {
			t.Errorf("%s: %d termes per year, want %d", periodicity, got, want)
		}
	}
}
