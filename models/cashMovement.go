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

// CashMovement is the append-only cash log and the source of truth for every
// session's cash_total. Rows are never updated or deleted; a correction is a
// new inverse entry.
type CashMovement struct {
	ID            int              `gorm:"primary_key" json:"id"`
	Kind          CashMovementKind `gorm:"type:enum('Receipt','ExceptionalReceipt','Disbursement');not null;index:idx_cm_day,priority:2" json:"kind"`
	Mode          PaymentMode      `gorm:"type:enum('Cash','Cheque','Transfer','Card');not null" json:"mode"`
	Amount        decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	MovementDate  time.Time        `gorm:"not null;index;index:idx_cm_day,priority:1" json:"movement_date"`
	Label         string           `gorm:"size:255" json:"label"`
	ReferenceId   int              `gorm:"index:idx_cm_ref,priority:2" json:"reference_id"`
	ReferenceType ReferenceType    `gorm:"size:10;index:idx_cm_ref,priority:1" json:"reference_type"`
	CreatedBy     int              `gorm:"index" json:"created_by"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (m *CashMovement) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable log: cash_movements cannot be updated")
}

func (m *CashMovement) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable log: cash_movements cannot be deleted")
}

type NewCashMovement struct {
	Kind         CashMovementKind `json:"kind" binding:"required"`
	Mode         PaymentMode      `json:"mode" binding:"required"`
	Amount       decimal.Decimal  `json:"amount" binding:"required"`
	MovementDate time.Time        `json:"movement_date"`
	Label        string           `json:"label"`
}

// appendCashMovement inserts a movement inside the caller's transaction and
// queues the change record that will resync the affected session.
func appendCashMovement(ctx context.Context, tx *gorm.DB, movement *CashMovement) error {
	if movement.Amount.LessThanOrEqual(decimal.Zero) {
		return utils.NewValidationError("amount must be positive")
	}
	if !movement.Mode.IsValid() {
		return utils.NewValidationError("invalid payment mode")
	}
	if movement.MovementDate.IsZero() {
		date, err := businessDateOrNow(ctx)
		if err != nil {
			return err
		}
		movement.MovementDate = date
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		movement.CreatedBy = userId
	}
	if err := tx.Create(movement).Error; err != nil {
		return err
	}
	return PublishChange(ctx, tx, movement.MovementDate, movement.ID,
		ReferenceTypeCashMovement, movement, nil, ChangeActionCreate)
}

// RecordExceptionalReceipt logs cash entering the drawer outside normal
// premium collection (recovered advances, corrections in the till's favor).
func RecordExceptionalReceipt(ctx context.Context, input *NewCashMovement) (*CashMovement, error) {
	movement := CashMovement{
		Kind:         CashMovementKindExceptionalReceipt,
		Mode:         input.Mode,
		Amount:       input.Amount,
		MovementDate: input.MovementDate,
		Label:        input.Label,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := appendCashMovement(ctx, tx, &movement); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// RecordDisbursement logs cash leaving the drawer. The expense row carries
// the category; the movement feeds the session's cash total.
func RecordDisbursement(ctx context.Context, input *NewCashMovement) (*CashMovement, error) {
	movement := CashMovement{
		Kind:         CashMovementKindDisbursement,
		Mode:         input.Mode,
		Amount:       input.Amount,
		MovementDate: input.MovementDate,
		Label:        input.Label,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := appendCashMovement(ctx, tx, &movement); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// ComputeDailyCashTotal recomputes a date's cash position from the movement
// log: cash-mode receipts plus exceptional receipts minus disbursements.
// The result is signed; a day of heavy disbursements can go negative.
func ComputeDailyCashTotal(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	return computeDailyCashTotalTx(ctx, config.GetDB(), date)
}

func computeDailyCashTotalTx(ctx context.Context, tx *gorm.DB, date time.Time) (decimal.Decimal, error) {
	start, end, err := utils.DayRange(date, "")
	if err != nil {
		return decimal.Zero, err
	}

	sum := func(query string, args ...interface{}) (decimal.Decimal, error) {
		var total decimal.NullDecimal
		err := tx.WithContext(ctx).Model(&CashMovement{}).
			Where("movement_date BETWEEN ? AND ?", start, end).
			Where(query, args...).
			Select("SUM(amount)").Scan(&total).Error
		if err != nil {
			return decimal.Zero, err
		}
		if !total.Valid {
			return decimal.Zero, nil
		}
		return total.Decimal, nil
	}

	receipts, err := sum("kind = ? AND mode = ?", CashMovementKindReceipt, PaymentModeCash)
	if err != nil {
		return decimal.Zero, err
	}
	exceptional, err := sum("kind = ?", CashMovementKindExceptionalReceipt)
	if err != nil {
		return decimal.Zero, err
	}
	disbursed, err := sum("kind = ?", CashMovementKindDisbursement)
	if err != nil {
		return decimal.Zero, err
	}

	return CashTotal(receipts, exceptional, disbursed), nil
}

// CashTotal is the pure arithmetic behind the daily recomputation.
func CashTotal(receipts, exceptional, disbursed decimal.Decimal) decimal.Decimal {
	return receipts.Add(exceptional).Sub(disbursed)
}

// ListCashMovements returns a date's movements in insertion order.
func ListCashMovements(ctx context.Context, date time.Time) ([]*CashMovement, error) {
	start, end, err := utils.DayRange(date, "")
	if err != nil {
		return nil, err
	}
	var movements []*CashMovement
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("movement_date BETWEEN ? AND ?", start, end).
		Order("id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
