package models_test

// Credit and terme collection regression harness.
//
// Run (requires Docker): INTEGRATION_TESTS=1 go test ./models -run 'CreditLedger|TermeCollection|QuinzainePosition' -v

import (
	"testing"
	"time"

	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/shopspring/decimal"
)

func TestCreditLedger_PaymentLifecycle(t *testing.T) {
	ctx := integrationSetup(t)
	ctx = withBusinessDate(ctx, t, day(2023, time.July, 3))

	credit, err := models.CreateCredit(ctx, &models.NewCredit{
		ContractNumber: "CR-2023-001",
		ClientName:     "Ben Salah",
		CreditAmount:   decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("CreateCredit: %v", err)
	}
	if credit.Status != models.CreditStatusUnpaid || !credit.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("fresh credit: status=%s balance=%s", credit.Status, credit.Balance)
	}

	credit, err = models.ApplyCreditPayment(ctx, credit.ID, &models.NewCreditPayment{
		Amount: decimal.NewFromInt(200),
		Mode:   models.PaymentModeCash,
	})
	if err != nil {
		t.Fatalf("ApplyCreditPayment: %v", err)
	}
	if credit.Status != models.CreditStatusPartiallyPaid {
		t.Fatalf("status = %s, want PartiallyPaid", credit.Status)
	}
	if !credit.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance = %s, want 300", credit.Balance)
	}

	// Overpayment is rejected with zero mutation.
	if _, err := models.ApplyCreditPayment(ctx, credit.ID, &models.NewCreditPayment{
		Amount: decimal.NewFromInt(400),
		Mode:   models.PaymentModeCash,
	}); err == nil {
		t.Fatal("overpayment should be rejected")
	}
	verification, err := models.VerifyCredit(ctx, credit.ID, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("VerifyCredit: %v", err)
	}
	if !verification.BalanceConsistent {
		t.Fatal("rejected overpayment must not corrupt the balance")
	}
	if !verification.AuditEntryFound {
		t.Fatal("the 200 payment should have an audit row")
	}

	credit, err = models.ApplyCreditPayment(ctx, credit.ID, &models.NewCreditPayment{
		Amount: decimal.NewFromInt(300),
		Mode:   models.PaymentModeTransfer,
	})
	if err != nil {
		t.Fatalf("ApplyCreditPayment (final): %v", err)
	}
	if credit.Status != models.CreditStatusFullyPaid || !credit.Balance.IsZero() {
		t.Fatalf("settled credit: status=%s balance=%s", credit.Status, credit.Balance)
	}

	payments, err := models.ListCreditPayments(ctx, credit.ID)
	if err != nil {
		t.Fatalf("ListCreditPayments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(payments))
	}
}

func TestTermeCollection_OnceOnly(t *testing.T) {
	ctx := integrationSetup(t)
	businessDate := day(2023, time.August, 1)
	ctx = withBusinessDate(ctx, t, businessDate)

	contract, err := models.CreateContract(ctx, &models.NewContract{
		ContractNumber: "CTR-2023-777",
		ClientName:     "Trabelsi",
		ClientPhone:    "+21671234567",
		AnnualPremium:  decimal.NewFromInt(1200),
		EffectiveDate:  businessDate,
		Periodicity:    models.PeriodicityQuarterly,
	})
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	if len(contract.Termes) != 4 {
		t.Fatalf("expected 4 termes, got %d", len(contract.Termes))
	}

	// Duplicate contract numbers are rejected.
	if _, err := models.CreateContract(ctx, &models.NewContract{
		ContractNumber: "CTR-2023-777",
		ClientName:     "Trabelsi",
		AnnualPremium:  decimal.NewFromInt(900),
		EffectiveDate:  businessDate,
		Periodicity:    models.PeriodicityAnnual,
	}); err == nil {
		t.Fatal("duplicate contract number should be rejected")
	}

	due, err := models.ListTermesDue(ctx, businessDate)
	if err != nil {
		t.Fatalf("ListTermesDue: %v", err)
	}
	var first *models.Terme
	for _, terme := range due {
		if terme.ContractNumber == "CTR-2023-777" {
			first = terme
			break
		}
	}
	if first == nil {
		t.Fatal("the first terme should be due on the effective date")
	}

	// Cheque mode demands cheque details.
	if _, err := models.CollectTerme(ctx, first.ID, &models.CollectTermeInput{
		Mode: models.PaymentModeCheque,
	}); err == nil {
		t.Fatal("cheque collection without cheque details should fail")
	}

	collected, err := models.CollectTerme(ctx, first.ID, &models.CollectTermeInput{
		Mode: models.PaymentModeCash,
	})
	if err != nil {
		t.Fatalf("CollectTerme: %v", err)
	}
	if !collected.IsCollected() {
		t.Fatal("terme should be collected")
	}
	if collected.CollectionDate == nil || !utils.SameDay(*collected.CollectionDate, businessDate) {
		t.Fatal("collection date should be the operating day")
	}

	// The flip is once-only; there is no reversal path.
	if _, err := models.CollectTerme(ctx, first.ID, &models.CollectTermeInput{
		Mode: models.PaymentModeCash,
	}); err == nil {
		t.Fatal("second collection should be rejected")
	}

	// Collection fed the session's cash ledger.
	movements, err := models.ListCashMovements(ctx, businessDate)
	if err != nil {
		t.Fatalf("ListCashMovements: %v", err)
	}
	found := false
	for _, m := range movements {
		if m.ReferenceType == models.ReferenceTypeTerme && m.ReferenceId == first.ID {
			found = true
			if !m.Amount.Equal(first.Premium) {
				t.Errorf("movement amount = %s, want %s", m.Amount, first.Premium)
			}
			if m.Kind != models.CashMovementKindReceipt {
				t.Errorf("movement kind = %s, want Receipt", m.Kind)
			}
		}
	}
	if !found {
		t.Fatal("collecting a terme must log a cash movement")
	}
}

func TestTermeCollection_ByChequeRegistersCheque(t *testing.T) {
	ctx := integrationSetup(t)
	businessDate := day(2023, time.September, 5)
	ctx = withBusinessDate(ctx, t, businessDate)

	contract, err := models.CreateContract(ctx, &models.NewContract{
		ContractNumber: "CTR-2023-888",
		ClientName:     "Gharbi",
		AnnualPremium:  decimal.NewFromInt(600),
		EffectiveDate:  businessDate,
		Periodicity:    models.PeriodicityAnnual,
	})
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}

	terme := contract.Termes[0]
	if _, err := models.CollectTerme(ctx, terme.ID, &models.CollectTermeInput{
		Mode: models.PaymentModeCheque,
		Cheque: &models.NewCheque{
			ChequeNumber: "0001234",
			DraweeBank:   "STB",
			Drawer:       "Gharbi",
		},
	}); err != nil {
		t.Fatalf("CollectTerme by cheque: %v", err)
	}

	status := models.ChequeStatusReceived
	cheques, err := models.ListCheques(ctx, &status)
	if err != nil {
		t.Fatalf("ListCheques: %v", err)
	}
	var cheque *models.Cheque
	for _, c := range cheques {
		if c.ChequeNumber == "0001234" {
			cheque = c
			break
		}
	}
	if cheque == nil {
		t.Fatal("cheque collection should register the cheque as Received")
	}
	if !cheque.Amount.Equal(terme.Premium) {
		t.Fatalf("cheque amount = %s, want %s", cheque.Amount, terme.Premium)
	}

	// Received -> Remitted -> Cleared; skipping remittance is rejected.
	if _, err := models.TransitionCheque(ctx, cheque.ID, models.ChequeStatusCleared); err == nil {
		t.Fatal("Received -> Cleared must be rejected")
	}
	if _, err := models.TransitionCheque(ctx, cheque.ID, models.ChequeStatusRemitted); err != nil {
		t.Fatalf("TransitionCheque to Remitted: %v", err)
	}
	cleared, err := models.TransitionCheque(ctx, cheque.ID, models.ChequeStatusCleared)
	if err != nil {
		t.Fatalf("TransitionCheque to Cleared: %v", err)
	}
	if cleared.Status != models.ChequeStatusCleared {
		t.Fatalf("status = %s, want Cleared", cleared.Status)
	}
}

func TestQuinzainePosition_UpsertAndSettle(t *testing.T) {
	ctx := integrationSetup(t)
	businessDate := day(2023, time.October, 5)
	ctx = withBusinessDate(ctx, t, businessDate)

	// One session with charges and one operating expense inside the window;
	// a non-operating expense label must stay out of the totals.
	if _, err := models.EnsureSession(ctx, businessDate); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if _, err := models.SetSessionCharges(ctx, businessDate, decimal.NewFromInt(80)); err != nil {
		t.Fatalf("SetSessionCharges: %v", err)
	}
	if _, err := models.CreateExpense(ctx, &models.NewExpense{
		Label:       "Loyer",
		Amount:      decimal.NewFromInt(150),
		ExpenseDate: businessDate,
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := models.CreateExpense(ctx, &models.NewExpense{
		Label:       "Versement Bancaire",
		Amount:      decimal.NewFromInt(999),
		ExpenseDate: businessDate,
	}); err != nil {
		t.Fatalf("CreateExpense (non-operating): %v", err)
	}

	window := models.QuinzaineWindowFor(businessDate)
	quinzaine, err := models.UpsertQuinzaine(ctx, window, &models.QuinzaineInput{
		Gross: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("UpsertQuinzaine: %v", err)
	}
	if !quinzaine.Charges.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("charges = %s, want 80 (from sessions)", quinzaine.Charges)
	}
	if !quinzaine.Expenses.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expenses = %s, want 150 (bank deposits excluded)", quinzaine.Expenses)
	}
	if !quinzaine.Net.Equal(decimal.NewFromInt(770)) {
		t.Fatalf("net = %s, want 770", quinzaine.Net)
	}

	settled, err := models.SettleQuinzaine(ctx, quinzaine.ID, &models.SettleQuinzaineInput{
		SettlementDate: day(2023, time.October, 20),
		Bank:           "BNA",
		Mode:           models.PaymentModeTransfer,
	})
	if err != nil {
		t.Fatalf("SettleQuinzaine: %v", err)
	}
	if settled.Status != models.QuinzaineStatusSettled {
		t.Fatalf("status = %s, want Settled", settled.Status)
	}

	// One-way: settling twice is rejected.
	if _, err := models.SettleQuinzaine(ctx, quinzaine.ID, &models.SettleQuinzaineInput{
		SettlementDate: day(2023, time.October, 21),
		Bank:           "BNA",
		Mode:           models.PaymentModeTransfer,
	}); err == nil {
		t.Fatal("settling an already-settled quinzaine should fail")
	}
}
