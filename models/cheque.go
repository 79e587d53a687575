package models

import (
	"context"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/shopspring/decimal"
)

// Cheque tracks a received cheque through its lifecycle:
// Received → Remitted → Cleared, or Bounced at any point after receipt.
type Cheque struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ChequeNumber   string          `gorm:"size:50;not null;index" json:"cheque_number"`
	DraweeBank     string          `gorm:"size:100" json:"drawee_bank"`
	Drawer         string          `gorm:"size:255" json:"drawer"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ReceivedDate   time.Time       `gorm:"not null;index" json:"received_date"`
	Status         ChequeStatus    `gorm:"type:enum('Received','Remitted','Cleared','Bounced');not null;default:'Received';index" json:"status"`
	RemittanceDate *time.Time      `json:"remittance_date"`
	ScanObjectKey  *string         `gorm:"size:255" json:"scan_object_key"`
	ReferenceId    int             `gorm:"index:idx_cheque_ref,priority:2" json:"reference_id"`
	ReferenceType  ReferenceType   `gorm:"size:10;index:idx_cheque_ref,priority:1" json:"reference_type"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Cheque) GetId() int {
	return c.ID
}

type NewCheque struct {
	ChequeNumber string `json:"cheque_number" binding:"required"`
	DraweeBank   string `json:"drawee_bank"`
	Drawer       string `json:"drawer"`
}

func (input *NewCheque) toCheque(amount decimal.Decimal, receivedDate time.Time) *Cheque {
	return &Cheque{
		ChequeNumber: input.ChequeNumber,
		DraweeBank:   input.DraweeBank,
		Drawer:       input.Drawer,
		Amount:       amount,
		ReceivedDate: receivedDate,
		Status:       ChequeStatusReceived,
	}
}

// chequeTransitions holds the allowed status edges.
var chequeTransitions = map[ChequeStatus][]ChequeStatus{
	ChequeStatusReceived: {ChequeStatusRemitted, ChequeStatusBounced},
	ChequeStatusRemitted: {ChequeStatusCleared, ChequeStatusBounced},
}

// CanTransitionCheque reports whether from → to is a legal lifecycle edge.
func CanTransitionCheque(from, to ChequeStatus) bool {
	for _, allowed := range chequeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionCheque advances a cheque along its lifecycle. Remittance stamps
// the remittance date. Terminal states (Cleared, Bounced) are final.
func TransitionCheque(ctx context.Context, chequeId int, to ChequeStatus) (*Cheque, error) {
	cheque, err := utils.FetchModel[Cheque](ctx, chequeId)
	if err != nil {
		return nil, err
	}
	if !CanTransitionCheque(cheque.Status, to) {
		return nil, utils.NewValidationError(
			"cannot move cheque from " + string(cheque.Status) + " to " + string(to))
	}

	updates := map[string]interface{}{"status": to}
	if to == ChequeStatusRemitted {
		remittanceDate, err := businessDateOrNow(ctx)
		if err != nil {
			return nil, err
		}
		updates["remittance_date"] = remittanceDate
		cheque.RemittanceDate = &remittanceDate
	}

	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Cheque{}).
		Where("id = ? AND status = ?", chequeId, cheque.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewValidationError("cheque status changed concurrently")
	}

	cheque.Status = to
	return cheque, nil
}

// AttachChequeScan links an uploaded scan to a cheque.
func AttachChequeScan(ctx context.Context, chequeId int, objectKey string) (*Cheque, error) {
	cheque, err := utils.FetchModel[Cheque](ctx, chequeId)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Cheque{}).Where("id = ?", chequeId).
		Update("scan_object_key", objectKey).Error; err != nil {
		return nil, err
	}
	cheque.ScanObjectKey = &objectKey
	return cheque, nil
}

func GetCheque(ctx context.Context, chequeId int) (*Cheque, error) {
	return utils.FetchModel[Cheque](ctx, chequeId)
}

// ListCheques returns cheques filtered by status when one is given, newest
// received first.
func ListCheques(ctx context.Context, status *ChequeStatus) ([]*Cheque, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Order("received_date DESC, id DESC")
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var cheques []*Cheque
	if err := dbCtx.Find(&cheques).Error; err != nil {
		return nil, err
	}
	return cheques, nil
}
