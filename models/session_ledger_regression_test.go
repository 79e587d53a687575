package models_test

// Daily ledger regression harness.
//
// Covers the invariants that must never drift:
// - cash_total derives from the movement log (cash receipts + exceptional
//   receipts - disbursements)
// - EnsureSession is idempotent and never overwrites an existing row
// - the movement log is append-only
// - RecordDeposit touches only still-undeposited sessions and is a no-op
//   when re-invoked
//
// Run (requires Docker): INTEGRATION_TESTS=1 go test ./models -run SessionLedger -v

import (
	"testing"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/shopspring/decimal"
)

func TestSessionLedger_CashTotalAndDeposit(t *testing.T) {
	ctx := integrationSetup(t)
	businessDate := day(2023, time.May, 10)
	ctx = withBusinessDate(ctx, t, businessDate)

	if _, err := models.RecordExceptionalReceipt(ctx, &models.NewCashMovement{
		Kind:   models.CashMovementKindExceptionalReceipt,
		Mode:   models.PaymentModeCash,
		Amount: decimal.NewFromInt(100),
		Label:  "Récupération avance",
	}); err != nil {
		t.Fatalf("RecordExceptionalReceipt: %v", err)
	}
	if _, err := models.RecordDisbursement(ctx, &models.NewCashMovement{
		Kind:   models.CashMovementKindDisbursement,
		Mode:   models.PaymentModeCash,
		Amount: decimal.NewFromInt(40),
		Label:  "Fournitures",
	}); err != nil {
		t.Fatalf("RecordDisbursement: %v", err)
	}

	session, err := models.EnsureSession(ctx, businessDate)
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if !session.CashTotal.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("cash_total = %s, want 60 (100 exceptional - 40 disbursed)", session.CashTotal)
	}
	if session.Status != models.SessionStatusNotDeposited {
		t.Fatalf("new session status = %s, want NotDeposited", session.Status)
	}

	// Idempotent: a second ensure returns the same row untouched, even after
	// new activity lands.
	if _, err := models.RecordDisbursement(ctx, &models.NewCashMovement{
		Kind:   models.CashMovementKindDisbursement,
		Mode:   models.PaymentModeCash,
		Amount: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("RecordDisbursement: %v", err)
	}
	again, err := models.EnsureSession(ctx, businessDate)
	if err != nil {
		t.Fatalf("EnsureSession (again): %v", err)
	}
	if again.ID != session.ID {
		t.Fatalf("EnsureSession created a second row: %d != %d", again.ID, session.ID)
	}
	if !again.CashTotal.Equal(session.CashTotal) {
		t.Fatalf("EnsureSession overwrote cash_total: %s", again.CashTotal)
	}

	// The drift shows up in verification and SyncSession repairs it.
	discrepancies, err := models.VerifyAndReconcile(ctx)
	if err != nil {
		t.Fatalf("VerifyAndReconcile: %v", err)
	}
	found := false
	for _, d := range discrepancies {
		if utils.SameDay(d.SessionDate, businessDate) {
			found = true
			if !d.Delta.Equal(decimal.NewFromInt(10)) {
				t.Errorf("delta = %s, want 10", d.Delta)
			}
		}
	}
	if !found {
		t.Fatalf("VerifyAndReconcile missed the drifted session")
	}

	synced, err := models.SyncSession(ctx, businessDate)
	if err != nil {
		t.Fatalf("SyncSession: %v", err)
	}
	if !synced.CashTotal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("synced cash_total = %s, want 50", synced.CashTotal)
	}

	// Deposit: amount = cash_total - charges.
	if _, err := models.SetSessionCharges(ctx, businessDate, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("SetSessionCharges: %v", err)
	}
	results, err := models.RecordDeposit(ctx, &models.DepositInput{
		ThroughDate: businessDate,
		Bank:        "BIAT",
	})
	if err != nil {
		t.Fatalf("RecordDeposit: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 deposited session, got %d", len(results))
	}
	if !results[0].DepositAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("deposit_amount = %s, want 40 (50 - 10 charges)", results[0].DepositAmount)
	}

	// Re-invocation deposits nothing.
	results, err = models.RecordDeposit(ctx, &models.DepositInput{
		ThroughDate: businessDate,
		Bank:        "BIAT",
	})
	if err != nil {
		t.Fatalf("RecordDeposit (again): %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("re-invocation deposited %d sessions, want 0", len(results))
	}

	// Charges are frozen once deposited.
	if _, err := models.SetSessionCharges(ctx, businessDate, decimal.NewFromInt(5)); err == nil {
		t.Fatal("SetSessionCharges on a deposited session should fail")
	}
}

func TestSessionLedger_MovementLogIsAppendOnly(t *testing.T) {
	ctx := integrationSetup(t)
	businessDate := day(2023, time.May, 11)
	ctx = withBusinessDate(ctx, t, businessDate)

	movement, err := models.RecordExceptionalReceipt(ctx, &models.NewCashMovement{
		Kind:   models.CashMovementKindExceptionalReceipt,
		Mode:   models.PaymentModeCash,
		Amount: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("RecordExceptionalReceipt: %v", err)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(movement).Update("amount", decimal.NewFromInt(999)).Error; err == nil {
		t.Fatal("updating a cash movement should be rejected")
	}
	if err := db.WithContext(ctx).Delete(movement).Error; err == nil {
		t.Fatal("deleting a cash movement should be rejected")
	}
}

func TestPeriodBalance_CarryForwardAndPrevious(t *testing.T) {
	ctx := integrationSetup(t)

	d1 := day(2023, time.June, 1)
	d4 := day(2023, time.June, 4)

	// Lazy creation starts at zero.
	balance, err := models.EnsurePeriodBalance(ctx, d1)
	if err != nil {
		t.Fatalf("EnsurePeriodBalance: %v", err)
	}
	if !balance.Payment.IsZero() || !balance.CarryForward.IsZero() {
		t.Fatalf("fresh balance should be zero, got payment=%s carry=%s", balance.Payment, balance.CarryForward)
	}

	// Carry-forward is stored as supplied; difference is always recomputed.
	balance, err = models.UpdatePeriodBalance(ctx, d1, &models.PeriodBalanceInput{
		Payment:      decimal.NewFromInt(700),
		Collection:   decimal.NewFromInt(500),
		CarryForward: decimal.NewFromInt(123),
	})
	if err != nil {
		t.Fatalf("UpdatePeriodBalance: %v", err)
	}
	if !balance.Difference.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("difference = %s, want 200 (recomputed, never trusted)", balance.Difference)
	}
	if !balance.CarryForward.Equal(decimal.NewFromInt(123)) {
		t.Fatalf("carry_forward = %s, want 123 (stored as supplied)", balance.CarryForward)
	}

	if _, err := models.EnsurePeriodBalance(ctx, d4); err != nil {
		t.Fatalf("EnsurePeriodBalance d4: %v", err)
	}

	// Previous skips the gap days and lands on the closest earlier record.
	prev, err := models.PreviousPeriodBalance(ctx, d4)
	if err != nil {
		t.Fatalf("PreviousPeriodBalance: %v", err)
	}
	if !utils.SameDay(prev.SessionDate, d1) {
		t.Fatalf("previous of %s = %s, want %s", d4.Format("2006-01-02"),
			prev.SessionDate.Format("2006-01-02"), d1.Format("2006-01-02"))
	}

	if _, err := models.PreviousPeriodBalance(ctx, d1); err != utils.ErrorRecordNotFound {
		t.Fatalf("previous of the earliest record should be RecordNotFound, got %v", err)
	}
}
