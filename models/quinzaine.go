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

// QuinzaineWindow is one commission fortnight: the 1st–15th or the 16th to
// the end of the month.
type QuinzaineWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Quinzaine is the persisted commission position of one fortnight.
// Gross commission is entered manually from the carrier's statement;
// charges and expenses are always recomputed from the ledgers.
type Quinzaine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	StartDate      time.Time       `gorm:"not null;uniqueIndex:uniq_quinzaine_start" json:"start_date"`
	EndDate        time.Time       `gorm:"not null" json:"end_date"`
	Gross          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gross"`
	Charges        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"charges"`
	Expenses       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"expenses"`
	Net            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net"`
	Status         QuinzaineStatus `gorm:"type:enum('NotSettled','Settled');not null;default:'NotSettled';index" json:"status"`
	SettlementDate *time.Time      `json:"settlement_date"`
	SettlementBank *string         `gorm:"size:100" json:"settlement_bank"`
	SettlementMode *PaymentMode    `gorm:"type:enum('Cash','Cheque','Transfer','Card')" json:"settlement_mode"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (q Quinzaine) GetId() int {
	return q.ID
}

// ListQuinzaines generates the deterministic fortnight windows from the
// first day of start's month through the month of today, inclusive. Pure:
// same inputs, same windows, regardless of what is persisted.
func ListQuinzaines(start, today time.Time) []QuinzaineWindow {
	var windows []QuinzaineWindow
	if today.Before(start) {
		return windows
	}

	month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	lastMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())

	for !month.After(lastMonth) {
		mid := time.Date(month.Year(), month.Month(), 15, 0, 0, 0, 0, month.Location())
		windows = append(windows, QuinzaineWindow{Start: month, End: mid})
		windows = append(windows, QuinzaineWindow{
			Start: mid.AddDate(0, 0, 1),
			End:   utils.EndOfMonth(month),
		})
		month = month.AddDate(0, 1, 0)
	}
	return windows
}

// QuinzaineWindowFor normalizes any date to the fortnight containing it.
func QuinzaineWindowFor(date time.Time) QuinzaineWindow {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	mid := time.Date(date.Year(), date.Month(), 15, 0, 0, 0, 0, date.Location())
	if date.Day() <= 15 {
		return QuinzaineWindow{Start: first, End: mid}
	}
	return QuinzaineWindow{Start: mid.AddDate(0, 0, 1), End: utils.EndOfMonth(date)}
}

// QuinzaineNet is the settlement arithmetic: what the carrier owes the
// agency after charges and running expenses. Pure.
func QuinzaineNet(gross, charges, expenses decimal.Decimal) decimal.Decimal {
	return gross.Sub(charges).Sub(expenses)
}

type QuinzaineTotals struct {
	Charges  decimal.Decimal `json:"charges"`
	Expenses decimal.Decimal `json:"expenses"`
}

// ComputeQuinzaineTotals aggregates the window from the ledgers: charges
// come from the daily sessions, expenses from the expense log minus the
// non-operating labels.
func ComputeQuinzaineTotals(ctx context.Context, window QuinzaineWindow) (*QuinzaineTotals, error) {
	db := config.GetDB()

	var charges decimal.NullDecimal
	err := db.WithContext(ctx).Model(&Session{}).
		Where("session_date BETWEEN ? AND ?", window.Start, window.End).
		Select("SUM(charges)").Scan(&charges).Error
	if err != nil {
		return nil, err
	}

	expenses, err := SumOperatingExpenses(ctx, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	totals := &QuinzaineTotals{Expenses: expenses}
	if charges.Valid {
		totals.Charges = charges.Decimal
	}
	return totals, nil
}

type QuinzaineInput struct {
	Gross decimal.Decimal `json:"gross"`
}

// UpsertQuinzaine persists the window's position. Charges and expenses are
// recomputed fresh from the ledgers on every call; caller-supplied
// aggregates are never trusted.
func UpsertQuinzaine(ctx context.Context, window QuinzaineWindow, input *QuinzaineInput) (*Quinzaine, error) {
	totals, err := ComputeQuinzaineTotals(ctx, window)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var quinzaine Quinzaine
	err = db.WithContext(ctx).Where("start_date = ?", window.Start).First(&quinzaine).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	quinzaine.StartDate = window.Start
	quinzaine.EndDate = window.End
	quinzaine.Gross = input.Gross
	quinzaine.Charges = totals.Charges
	quinzaine.Expenses = totals.Expenses
	quinzaine.Net = QuinzaineNet(input.Gross, totals.Charges, totals.Expenses)
	if quinzaine.Status == "" {
		quinzaine.Status = QuinzaineStatusNotSettled
	}

	if quinzaine.ID == 0 {
		err = db.WithContext(ctx).Create(&quinzaine).Error
		if IsDuplicateKeyError(err) {
			// Concurrent upsert created it first; retry as update.
			if err := db.WithContext(ctx).Where("start_date = ?", window.Start).First(&quinzaine).Error; err != nil {
				return nil, err
			}
			return UpsertQuinzaine(ctx, window, input)
		}
	} else {
		err = db.WithContext(ctx).Model(&Quinzaine{}).Where("id = ?", quinzaine.ID).
			Updates(map[string]interface{}{
				"end_date": quinzaine.EndDate,
				"gross":    quinzaine.Gross,
				"charges":  quinzaine.Charges,
				"expenses": quinzaine.Expenses,
				"net":      quinzaine.Net,
			}).Error
	}
	if err != nil {
		return nil, err
	}
	return &quinzaine, nil
}

func GetQuinzaineByStart(ctx context.Context, start time.Time) (*Quinzaine, error) {
	db := config.GetDB()
	var quinzaine Quinzaine
	err := db.WithContext(ctx).Where("start_date = ?", start).First(&quinzaine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quinzaine, nil
}

type SettleQuinzaineInput struct {
	SettlementDate time.Time   `json:"settlement_date" binding:"required"`
	Bank           string      `json:"bank" binding:"required"`
	Mode           PaymentMode `json:"mode" binding:"required"`
}

// SettleQuinzaine moves a fortnight NotSettled → Settled. One-way: a settled
// quinzaine cannot be reopened through the API.
func SettleQuinzaine(ctx context.Context, quinzaineId int, input *SettleQuinzaineInput) (*Quinzaine, error) {
	if !input.Mode.IsValid() {
		return nil, utils.NewValidationError("invalid payment mode")
	}

	quinzaine, err := utils.FetchModel[Quinzaine](ctx, quinzaineId)
	if err != nil {
		return nil, err
	}
	if quinzaine.Status == QuinzaineStatusSettled {
		return nil, utils.NewValidationError("quinzaine already settled")
	}

	settlementDate, err := utils.ConvertToDate(input.SettlementDate, "")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Quinzaine{}).
		Where("id = ? AND status = ?", quinzaineId, QuinzaineStatusNotSettled).
		Updates(map[string]interface{}{
			"status":          QuinzaineStatusSettled,
			"settlement_date": settlementDate,
			"settlement_bank": input.Bank,
			"settlement_mode": input.Mode,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewValidationError("quinzaine already settled")
	}

	quinzaine.Status = QuinzaineStatusSettled
	quinzaine.SettlementDate = &settlementDate
	quinzaine.SettlementBank = &input.Bank
	quinzaine.SettlementMode = &input.Mode
	return quinzaine, nil
}
