package models

import (
	"context"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/shopspring/decimal"
)

// Expense is one entry of the agency's expense log. Non-operating labels
// (bank carries, owner drawings, advance recoveries) stay in the log but are
// excluded from quinzaine expense totals.
type Expense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Label       string          `gorm:"size:255;not null;index" json:"label"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ExpenseDate time.Time       `gorm:"not null;index" json:"expense_date"`
	Notes       string          `gorm:"type:text" json:"notes"`
	CreatedBy   int             `gorm:"index" json:"created_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e Expense) GetId() int {
	return e.ID
}

type NewExpense struct {
	Label       string          `json:"label" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	ExpenseDate time.Time       `json:"expense_date"`
	Notes       string          `json:"notes"`
	// Cash expenses also disburse from the drawer and lower the session total.
	PaidFromCash bool `json:"paid_from_cash"`
}

func CreateExpense(ctx context.Context, input *NewExpense) (*Expense, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.NewValidationError("expense amount must be positive")
	}

	expenseDate := input.ExpenseDate
	if expenseDate.IsZero() {
		d, err := businessDateOrNow(ctx)
		if err != nil {
			return nil, err
		}
		expenseDate = d
	} else {
		d, err := utils.ConvertToDate(expenseDate, "")
		if err != nil {
			return nil, err
		}
		expenseDate = d
	}

	expense := Expense{
		Label:       input.Label,
		Amount:      input.Amount,
		ExpenseDate: expenseDate,
		Notes:       input.Notes,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		expense.CreatedBy = userId
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := tx.Create(&expense).Error; err != nil {
		return nil, err
	}
	if input.PaidFromCash {
		movement := CashMovement{
			Kind:          CashMovementKindDisbursement,
			Mode:          PaymentModeCash,
			Amount:        input.Amount,
			MovementDate:  expenseDate,
			Label:         input.Label,
			ReferenceId:   expense.ID,
			ReferenceType: ReferenceTypeExpense,
		}
		if err := appendCashMovement(ctx, tx, &movement); err != nil {
			return nil, err
		}
	}
	if err := PublishChange(ctx, tx, expenseDate, expense.ID,
		ReferenceTypeExpense, &expense, nil, ChangeActionCreate); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

// SumOperatingExpenses totals the log over [start, end] excluding the
// non-operating labels.
func SumOperatingExpenses(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	db := config.GetDB()
	var total decimal.NullDecimal
	err := db.WithContext(ctx).Model(&Expense{}).
		Where("expense_date BETWEEN ? AND ?", start, end).
		Where("label NOT IN ?", NonOperatingExpenseLabels).
		Select("SUM(amount)").Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// ListExpenses returns the log over a date range, oldest first.
func ListExpenses(ctx context.Context, from, to time.Time) ([]*Expense, error) {
	var expenses []*Expense
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("expense_date BETWEEN ? AND ?", from, to).
		Order("expense_date ASC, id ASC").
		Find(&expenses).Error
	if err != nil {
		return nil, err
	}
	return expenses, nil
}
