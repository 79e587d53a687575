package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Credit tracks money a client still owes on a contract. balance never goes
// below zero; status is derived from paid_total vs credit_amount.
type Credit struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ContractNumber string          `gorm:"size:50;not null;index" json:"contract_number"`
	ClientName     string          `gorm:"size:255" json:"client_name"`
	CreditAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"credit_amount"`
	PaidTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_total"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	Status         CreditStatus    `gorm:"type:enum('Unpaid','PartiallyPaid','FullyPaid');not null;default:'Unpaid';index" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Credit) GetId() int {
	return c.ID
}

// DeriveCreditStatus maps the paid/balance position to a status. Pure.
func DeriveCreditStatus(paidTotal, balance decimal.Decimal) CreditStatus {
	switch {
	case balance.LessThanOrEqual(decimal.Zero):
		return CreditStatusFullyPaid
	case paidTotal.GreaterThan(decimal.Zero):
		return CreditStatusPartiallyPaid
	default:
		return CreditStatusUnpaid
	}
}

type NewCredit struct {
	ContractNumber string          `json:"contract_number" binding:"required"`
	ClientName     string          `json:"client_name"`
	CreditAmount   decimal.Decimal `json:"credit_amount" binding:"required"`
}

func CreateCredit(ctx context.Context, input *NewCredit) (*Credit, error) {
	if input.CreditAmount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.NewValidationError("credit amount must be positive")
	}

	credit := Credit{
		ContractNumber: input.ContractNumber,
		ClientName:     input.ClientName,
		CreditAmount:   input.CreditAmount,
		PaidTotal:      decimal.Zero,
		Balance:        input.CreditAmount,
		Status:         CreditStatusUnpaid,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&credit).Error; err != nil {
		return nil, err
	}
	return &credit, nil
}

type NewCreditPayment struct {
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Mode         PaymentMode     `json:"mode" binding:"required"`
	ChequeNumber *string         `json:"cheque_number"`
}

// ApplyCreditPayment applies a payment against a credit.
//
// Validation runs before any write: a non-positive amount or an amount above
// the outstanding balance rejects the call with zero mutation. The row is
// re-read at apply time, so the arithmetic always starts from the current
// stored position, then paid_total, balance (floored at zero) and the derived
// status update together.
//
// The audit row is appended after the balance update and its failure does NOT
// roll the update back; the change-record verification pass flags the missing
// entry instead.
func ApplyCreditPayment(ctx context.Context, creditId int, input *NewCreditPayment) (*Credit, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.NewValidationError("payment amount must be positive")
	}
	if !input.Mode.IsValid() {
		return nil, utils.NewValidationError("invalid payment mode")
	}

	db := config.GetDB()
	var credit Credit
	if err := db.WithContext(ctx).First(&credit, creditId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if input.Amount.GreaterThan(credit.Balance) {
		return nil, utils.NewValidationError("payment exceeds outstanding balance")
	}

	credit.PaidTotal = credit.PaidTotal.Add(input.Amount)
	credit.Balance = credit.Balance.Sub(input.Amount)
	if credit.Balance.IsNegative() {
		credit.Balance = decimal.Zero
	}
	credit.Status = DeriveCreditStatus(credit.PaidTotal, credit.Balance)

	if err := db.WithContext(ctx).Model(&Credit{}).Where("id = ?", credit.ID).
		Updates(map[string]interface{}{
			"paid_total": credit.PaidTotal,
			"balance":    credit.Balance,
			"status":     credit.Status,
		}).Error; err != nil {
		return nil, err
	}

	businessDate, err := businessDateOrNow(ctx)
	if err != nil {
		businessDate = time.Now()
	}

	payment := CreditPayment{
		CreditId:       credit.ID,
		ContractNumber: credit.ContractNumber,
		Amount:         input.Amount,
		Mode:           input.Mode,
		ChequeNumber:   input.ChequeNumber,
		PaidAt:         time.Now(),
	}
	if err := db.WithContext(ctx).Create(&payment).Error; err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "ApplyCreditPayment",
			"Balance updated but audit entry failed", credit.ID, err)
	} else {
		if err := PublishChange(ctx, db.WithContext(ctx), businessDate, payment.ID,
			ReferenceTypeCreditPayment, &payment, nil, ChangeActionCreate); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "models", "ApplyCreditPayment",
				"Cannot queue change record", payment.ID, err)
		}
	}

	return &credit, nil
}

// CreditVerification is the read-after-write consistency check result.
type CreditVerification struct {
	BalanceConsistent bool `json:"balance_consistent"`
	AuditEntryFound   bool `json:"audit_entry_found"`
}

// VerifyCredit re-reads a credit and checks (a) the invariant
// credit_amount = paid_total + balance within tolerance and (b) that the
// latest payment of expectedAmount left an audit row.
func VerifyCredit(ctx context.Context, creditId int, expectedAmount decimal.Decimal) (*CreditVerification, error) {
	db := config.GetDB()
	var credit Credit
	if err := db.WithContext(ctx).First(&credit, creditId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	balanceConsistent := utils.WithinTolerance(
		credit.CreditAmount, credit.PaidTotal.Add(credit.Balance))

	var count int64
	err := db.WithContext(ctx).Model(&CreditPayment{}).
		Where("credit_id = ? AND amount = ?", creditId, expectedAmount).
		Count(&count).Error
	if err != nil {
		return nil, err
	}

	return &CreditVerification{
		BalanceConsistent: balanceConsistent,
		AuditEntryFound:   count > 0,
	}, nil
}

// ListCredits returns credits filtered by status when one is given.
func ListCredits(ctx context.Context, status *CreditStatus) ([]*Credit, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var credits []*Credit
	if err := dbCtx.Find(&credits).Error; err != nil {
		return nil, err
	}
	return credits, nil
}
