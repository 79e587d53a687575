package models

import (
	"bitbucket.org/assurdata/agence_backend/config"
)

// Migrate auto-migrates the schema and installs the server-side
// ensure_period_balance procedure.
func Migrate() error {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Session{},
		&CashMovement{},
		&PeriodBalance{},
		&Credit{},
		&CreditPayment{},
		&Contract{},
		&Terme{},
		&Cheque{},
		&Expense{},
		&Quinzaine{},
		&ChangeRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		return err
	}

	return installEnsurePeriodBalance()
}

// installEnsurePeriodBalance (re)creates the procedure behind
// EnsurePeriodBalance. INSERT IGNORE against the unique date index makes
// the lazy creation race-free without a client round-trip.
func installEnsurePeriodBalance() error {
	db := config.GetDB()
	if err := db.Exec("DROP PROCEDURE IF EXISTS ensure_period_balance").Error; err != nil {
		return err
	}
	return db.Exec(`
CREATE PROCEDURE ensure_period_balance(IN p_date DATE)
BEGIN
	INSERT IGNORE INTO period_balances
		(session_date, payment, collection, difference, carry_forward, created_at, updated_at)
	VALUES
		(p_date, 0, 0, 0, 0, NOW(), NOW());
END`).Error
}
