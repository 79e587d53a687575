package workflow

import (
	"encoding/json"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessCreditPaymentWorkflow verifies a payment landed consistently: the
// credit invariant holds and the audit row exists. Inconsistencies are
// recorded as warnings for the operator, not retried — the write already
// happened, only the bookkeeping around it may be missing.
func ProcessCreditPaymentWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ChangeMessage) error {
	ctx := tx.Statement.Context

	var payment models.CreditPayment
	if len(msg.NewObj) > 0 {
		if err := json.Unmarshal(msg.NewObj, &payment); err != nil {
			config.LogError(logger, "workflow", "ProcessCreditPaymentWorkflow",
				"Cannot unmarshal credit payment", msg.ID, err)
			return err
		}
	}
	if payment.CreditId == 0 {
		return nil
	}

	verification, err := models.VerifyCredit(ctx, payment.CreditId, payment.Amount)
	if err != nil {
		return err
	}

	if logger != nil && (!verification.BalanceConsistent || !verification.AuditEntryFound) {
		logger.WithFields(logrus.Fields{
			"field":              "CreditPaymentWorkflow",
			"credit_id":          payment.CreditId,
			"payment_id":         payment.ID,
			"balance_consistent": verification.BalanceConsistent,
			"audit_entry_found":  verification.AuditEntryFound,
			"correlation_id":     msg.CorrelationId,
		}).Warn("credit payment verification found an inconsistency")
	}
	return nil
}
