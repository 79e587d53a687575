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

// PeriodBalance is the per-date payment/collection position.
// difference = payment - collection. carry_forward (the "report/déport")
// is supplied by the operator closing the books, never derived here.
type PeriodBalance struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SessionDate  time.Time       `gorm:"not null;uniqueIndex:uniq_period_date" json:"session_date"`
	Payment      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"payment"`
	Collection   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"collection"`
	Difference   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"difference"`
	CarryForward decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"carry_forward"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnsurePeriodBalance lazily creates the row for date through the
// ensure_period_balance procedure. Insert-if-not-exists happens entirely
// server-side, so two concurrent first reads cannot race a client-side
// check-then-insert. Returns the row after the call.
func EnsurePeriodBalance(ctx context.Context, date time.Time) (*PeriodBalance, error) {
	day, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Exec("CALL ensure_period_balance(?)", day).Error; err != nil {
		return nil, err
	}

	var balance PeriodBalance
	if err := db.WithContext(ctx).Where("session_date = ?", day).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// PreviousPeriodBalance returns the closest earlier recorded balance, not
// the previous calendar day: gaps (holidays, closures) are skipped.
// Returns RecordNotFound when date is the earliest row.
func PreviousPeriodBalance(ctx context.Context, date time.Time) (*PeriodBalance, error) {
	day, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}

	var balance PeriodBalance
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("session_date < ?", day).
		Order("session_date DESC").
		Limit(1).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &balance, nil
}

type PeriodBalanceInput struct {
	Payment      decimal.Decimal `json:"payment"`
	Collection   decimal.Decimal `json:"collection"`
	CarryForward decimal.Decimal `json:"carry_forward"`
}

// UpdatePeriodBalance stores the operator-entered figures for date.
// difference is always recomputed from payment and collection here; the
// caller's value is ignored.
func UpdatePeriodBalance(ctx context.Context, date time.Time, input *PeriodBalanceInput) (*PeriodBalance, error) {
	balance, err := EnsurePeriodBalance(ctx, date)
	if err != nil {
		return nil, err
	}

	balance.Payment = input.Payment
	balance.Collection = input.Collection
	balance.Difference = input.Payment.Sub(input.Collection)
	balance.CarryForward = input.CarryForward

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&PeriodBalance{}).Where("id = ?", balance.ID).
		Updates(map[string]interface{}{
			"payment":       balance.Payment,
			"collection":    balance.Collection,
			"difference":    balance.Difference,
			"carry_forward": balance.CarryForward,
		}).Error
	if err != nil {
		return nil, err
	}
	return balance, nil
}
