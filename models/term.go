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

// Terme is one premium installment of a contract. Status is NULL while
// pending and becomes Encaissé exactly once, on collection. Termes are never
// hard-deleted; history stays queryable.
type Terme struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ContractNumber string          `gorm:"size:50;not null;uniqueIndex:uniq_terme,priority:1" json:"contract_number"`
	DueDate        time.Time       `gorm:"not null;uniqueIndex:uniq_terme,priority:2;index" json:"due_date"`
	Premium        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"premium"`
	Status         *TermeStatus    `gorm:"size:20;default:null;index" json:"status"`
	CollectionDate *time.Time      `json:"collection_date"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t Terme) GetId() int {
	return t.ID
}

func (t *Terme) IsCollected() bool {
	return t.Status != nil && *t.Status == TermeStatusCollected
}

type CollectTermeInput struct {
	Mode   PaymentMode `json:"mode" binding:"required"`
	Cheque *NewCheque  `json:"cheque"`
}

// CollectTerme collects one pending installment: flips NULL → Encaissé,
// stamps the collection date, logs the matching cash-movement receipt (cash
// mode feeds the session ledger) and, for cheque payments, registers the
// cheque. The guarded UPDATE makes the flip once-only under concurrent
// collectors; there is no reversal path.
func CollectTerme(ctx context.Context, termeId int, input *CollectTermeInput) (*Terme, error) {
	if !input.Mode.IsValid() {
		return nil, utils.NewValidationError("invalid payment mode")
	}
	if input.Mode == PaymentModeCheque && input.Cheque == nil {
		return nil, utils.NewValidationError("cheque details are required for cheque payments")
	}

	db := config.GetDB()
	var terme Terme
	if err := db.WithContext(ctx).First(&terme, termeId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if terme.IsCollected() {
		return nil, utils.NewValidationError("terme already collected")
	}

	collectionDate, err := businessDateOrNow(ctx)
	if err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	res := tx.Model(&Terme{}).
		Where("id = ? AND status IS NULL", termeId).
		Updates(map[string]interface{}{
			"status":          TermeStatusCollected,
			"collection_date": collectionDate,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewValidationError("terme already collected")
	}

	movement := CashMovement{
		Kind:          CashMovementKindReceipt,
		Mode:          input.Mode,
		Amount:        terme.Premium,
		MovementDate:  collectionDate,
		Label:         "Encaissement terme " + terme.ContractNumber,
		ReferenceId:   terme.ID,
		ReferenceType: ReferenceTypeTerme,
	}
	if err := appendCashMovement(ctx, tx, &movement); err != nil {
		return nil, err
	}

	if input.Mode == PaymentModeCheque {
		cheque := input.Cheque.toCheque(terme.Premium, collectionDate)
		cheque.ReferenceId = terme.ID
		cheque.ReferenceType = ReferenceTypeTerme
		if err := tx.Create(cheque).Error; err != nil {
			return nil, err
		}
	}

	status := TermeStatusCollected
	terme.Status = &status
	terme.CollectionDate = &collectionDate

	if err := PublishChange(ctx, tx, collectionDate, terme.ID,
		ReferenceTypeTerme, &terme, nil, ChangeActionUpdate); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &terme, nil
}

// ListTermesDue returns pending termes due on or before date, oldest first.
func ListTermesDue(ctx context.Context, date time.Time) ([]*Terme, error) {
	day, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}
	var termes []*Terme
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("status IS NULL AND due_date <= ?", day).
		Order("due_date ASC").
		Find(&termes).Error
	if err != nil {
		return nil, err
	}
	return termes, nil
}
