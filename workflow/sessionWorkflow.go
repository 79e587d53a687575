package workflow

import (
	"encoding/json"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessCashMovementWorkflow is the reducer behind cash-movement change
// events: it makes sure the movement's day has a session row, resyncs that
// session's cash total from the log, and lazily creates the period balance.
// Safe under at-least-once delivery: every step is idempotent.
func ProcessCashMovementWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ChangeMessage) error {
	ctx := tx.Statement.Context

	var movement models.CashMovement
	if len(msg.NewObj) > 0 {
		if err := json.Unmarshal(msg.NewObj, &movement); err != nil {
			config.LogError(logger, "workflow", "ProcessCashMovementWorkflow",
				"Cannot unmarshal cash movement", msg.ID, err)
			return err
		}
	}
	date := movement.MovementDate
	if date.IsZero() {
		date = msg.EventDateTime
	}

	if _, err := models.SyncSession(ctx, date); err != nil {
		return err
	}
	if _, err := models.EnsurePeriodBalance(ctx, date); err != nil {
		return err
	}
	return nil
}

// ProcessSessionWorkflow handles session change events. Deposits and charge
// edits feed the quinzaine totals, which are recomputed on read, so the
// reducer only refreshes the lazily created period balance for the day.
func ProcessSessionWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ChangeMessage) error {
	ctx := tx.Statement.Context

	var session models.Session
	if len(msg.NewObj) > 0 {
		if err := json.Unmarshal(msg.NewObj, &session); err != nil {
			config.LogError(logger, "workflow", "ProcessSessionWorkflow",
				"Cannot unmarshal session", msg.ID, err)
			return err
		}
	}
	date := session.SessionDate
	if date.IsZero() {
		date = msg.EventDateTime
	}

	if _, err := models.EnsurePeriodBalance(ctx, date); err != nil {
		return err
	}
	return nil
}

// ProcessExpenseWorkflow resyncs the session of the expense's day. Cash-paid
// expenses already emitted a movement event, but the expense event also
// covers the day the expense was backdated to.
func ProcessExpenseWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ChangeMessage) error {
	ctx := tx.Statement.Context

	var expense models.Expense
	if len(msg.NewObj) > 0 {
		if err := json.Unmarshal(msg.NewObj, &expense); err != nil {
			config.LogError(logger, "workflow", "ProcessExpenseWorkflow",
				"Cannot unmarshal expense", msg.ID, err)
			return err
		}
	}
	date := expense.ExpenseDate
	if date.IsZero() {
		date = msg.EventDateTime
	}

	if _, err := models.SyncSession(ctx, date); err != nil {
		return err
	}
	return nil
}

// ProcessTermeWorkflow checks a collected terme left its cash movement in
// the log; a missing one means the multi-step collection failed partway.
// The finding is a warning, never a retry loop.
func ProcessTermeWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ChangeMessage) error {
	ctx := tx.Statement.Context

	var terme models.Terme
	if len(msg.NewObj) > 0 {
		if err := json.Unmarshal(msg.NewObj, &terme); err != nil {
			config.LogError(logger, "workflow", "ProcessTermeWorkflow",
				"Cannot unmarshal terme", msg.ID, err)
			return err
		}
	}
	if !terme.IsCollected() {
		return nil
	}

	var count int64
	err := tx.Model(&models.CashMovement{}).
		Where("reference_type = ? AND reference_id = ?", models.ReferenceTypeTerme, terme.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 && logger != nil {
		logger.WithFields(logrus.Fields{
			"field":           "TermeWorkflow",
			"terme_id":        terme.ID,
			"contract_number": terme.ContractNumber,
		}).Warn("collected terme has no cash movement")
	}

	date := msg.EventDateTime
	if terme.CollectionDate != nil {
		date = *terme.CollectionDate
	}
	if date.IsZero() {
		date = time.Now()
	}
	if _, err := models.SyncSession(ctx, date); err != nil {
		return err
	}
	return nil
}
