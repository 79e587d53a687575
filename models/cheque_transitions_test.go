package models_test

import (
	"testing"

	"bitbucket.org/assurdata/agence_backend/models"
	"github.com/shopspring/decimal"
)

func TestCanTransitionCheque(t *testing.T) {
	allowed := []struct{ from, to models.ChequeStatus }{
		{models.ChequeStatusReceived, models.ChequeStatusRemitted},
		{models.ChequeStatusReceived, models.ChequeStatusBounced},
		{models.ChequeStatusRemitted, models.ChequeStatusCleared},
		{models.ChequeStatusRemitted, models.ChequeStatusBounced},
	}
	for _, tc := range allowed {
		if !models.CanTransitionCheque(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to models.ChequeStatus }{
		{models.ChequeStatusReceived, models.ChequeStatusCleared}, // must remit first
		{models.ChequeStatusCleared, models.ChequeStatusBounced},  // terminal
		{models.ChequeStatusBounced, models.ChequeStatusRemitted}, // terminal
		{models.ChequeStatusRemitted, models.ChequeStatusReceived},
		{models.ChequeStatusReceived, models.ChequeStatusReceived},
	}
	for _, tc := range forbidden {
		if models.CanTransitionCheque(tc.from, tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestDeriveCreditStatus(t *testing.T) {
	cases := []struct {
		paid, balance float64
		want          models.CreditStatus
	}{
		{0, 500, models.CreditStatusUnpaid},
		{200, 300, models.CreditStatusPartiallyPaid},
		{500, 0, models.CreditStatusFullyPaid},
		{600, -100, models.CreditStatusFullyPaid}, // floored balances still read as fully paid
	}
	for _, tc := range cases {
		got := models.DeriveCreditStatus(decimal.NewFromFloat(tc.paid), decimal.NewFromFloat(tc.balance))
		if got != tc.want {
			t.Errorf("paid=%v balance=%v: got %s, want %s", tc.paid, tc.balance, got, tc.want)
		}
	}
}

func TestCashTotal(t *testing.T) {
	total := models.CashTotal(
		decimal.NewFromFloat(850.500),  // cash receipts
		decimal.NewFromFloat(120.000),  // exceptional receipts
		decimal.NewFromFloat(1000.750), // disbursements
	)
	if !total.Equal(decimal.NewFromFloat(-30.250)) {
		t.Fatalf("cash total = %s, want -30.250 (heavy disbursement days go negative)", total)
	}
}
