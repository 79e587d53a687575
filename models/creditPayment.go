package models

import (
	"context"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"github.com/shopspring/decimal"
)

// CreditPayment is the append-only audit trail of payments applied to
// credits.
type CreditPayment struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CreditId       int             `gorm:"not null;index" json:"credit_id"`
	ContractNumber string          `gorm:"size:50;index" json:"contract_number"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Mode           PaymentMode     `gorm:"type:enum('Cash','Cheque','Transfer','Card');not null" json:"mode"`
	ChequeNumber   *string         `gorm:"size:50" json:"cheque_number"`
	PaidAt         time.Time       `gorm:"not null;index" json:"paid_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ListCreditPayments returns a credit's audit trail, newest first.
func ListCreditPayments(ctx context.Context, creditId int) ([]*CreditPayment, error) {
	db := config.GetDB()
	var payments []*CreditPayment
	err := db.WithContext(ctx).
		Where("credit_id = ?", creditId).
		Order("paid_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
