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

// Session is the daily cash-reconciliation row: one per calendar date.
// cash_total is derived from the cash_movements log and can always be
// recomputed; the stored value is a cache the verification pass audits.
type Session struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SessionDate   time.Time       `gorm:"not null;uniqueIndex:uniq_session_date" json:"session_date"`
	CashTotal     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_total"`
	Charges       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"charges"`
	DepositAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deposit_amount"`
	DepositDate   *time.Time      `json:"deposit_date"`
	Bank          *string         `gorm:"size:100" json:"bank"`
	Status        SessionStatus   `gorm:"type:enum('NotDeposited','Deposited');not null;default:'NotDeposited';index" json:"status"`
	Remarks       *string         `gorm:"type:text" json:"remarks"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s Session) GetId() int {
	return s.ID
}

// EnsureSession returns the session row for date, creating it with a freshly
// computed cash total when absent. Idempotent under concurrent callers: the
// unique index on session_date arbitrates, the loser re-reads and must not
// overwrite the winner's cash_total. Zero-activity days still get a row.
func EnsureSession(ctx context.Context, date time.Time) (*Session, error) {
	day, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var session Session
	err = db.WithContext(ctx).Where("session_date = ?", day).First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cashTotal, err := ComputeDailyCashTotal(ctx, day)
	if err != nil {
		return nil, err
	}

	session = Session{
		SessionDate: day,
		CashTotal:   cashTotal,
		Status:      SessionStatusNotDeposited,
	}
	err = db.WithContext(ctx).Create(&session).Error
	if err != nil {
		if IsDuplicateKeyError(err) {
			// Lost the race; the existing row wins untouched.
			var existing Session
			if err := db.WithContext(ctx).Where("session_date = ?", day).First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	if err := PublishChange(ctx, db.WithContext(ctx), day, session.ID,
		ReferenceTypeSession, &session, nil, ChangeActionCreate); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "EnsureSession", "Cannot queue change record", session.ID, err)
	}
	return &session, nil
}

// GetSessionByDate returns the session row for date, nil error + RecordNotFound when absent.
func GetSessionByDate(ctx context.Context, date time.Time) (*Session, error) {
	day, err := utils.ConvertToDate(date, "")
	if err != nil {
		return nil, err
	}
	var session Session
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("session_date = ?", day).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions returns sessions in a date range, oldest first.
func ListSessions(ctx context.Context, from, to time.Time) ([]*Session, error) {
	fromDay, err := utils.ConvertToDate(from, "")
	if err != nil {
		return nil, err
	}
	toDay, err := utils.ConvertToDate(to, "")
	if err != nil {
		return nil, err
	}
	var sessions []*Session
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("session_date BETWEEN ? AND ?", fromDay, toDay).
		Order("session_date ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

type DepositInput struct {
	ThroughDate time.Time `json:"through_date" binding:"required"`
	Bank        string    `json:"bank" binding:"required"`
}

type DepositResult struct {
	SessionDate   time.Time       `json:"session_date"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
}

// RecordDeposit marks every still-undeposited session up to throughDate as
// deposited: deposit_amount = cash_total - charges, deposit_date = the
// operating day, carrying the bank. Already-deposited sessions are never
// touched; calling again with nothing pending affects zero rows.
//
// Updates run per row, not in one multi-row transaction. A failure mid-way
// leaves the earlier rows deposited; the change records surface the partial
// run for verification instead of rolling it back.
func RecordDeposit(ctx context.Context, input *DepositInput) ([]*DepositResult, error) {
	throughDay, err := utils.ConvertToDate(input.ThroughDate, "")
	if err != nil {
		return nil, err
	}
	depositDate, err := businessDateOrNow(ctx)
	if err != nil {
		return nil, err
	}

	release, err := utils.AgencyLock(ctx, "deposit", "models", "RecordDeposit")
	if err == nil {
		defer release()
	}

	db := config.GetDB()
	var pending []*Session
	err = db.WithContext(ctx).
		Where("status = ? AND session_date <= ?", SessionStatusNotDeposited, throughDay).
		Order("session_date ASC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}

	results := make([]*DepositResult, 0, len(pending))
	for _, session := range pending {
		old := *session
		session.DepositAmount = session.CashTotal.Sub(session.Charges)
		session.DepositDate = &depositDate
		session.Bank = &input.Bank
		session.Status = SessionStatusDeposited

		tx := db.WithContext(ctx).Begin()
		res := tx.Model(&Session{}).
			Where("id = ? AND status = ?", session.ID, SessionStatusNotDeposited).
			Updates(map[string]interface{}{
				"deposit_amount": session.DepositAmount,
				"deposit_date":   session.DepositDate,
				"bank":           session.Bank,
				"status":         SessionStatusDeposited,
			})
		if res.Error != nil {
			tx.Rollback()
			return results, res.Error
		}
		if res.RowsAffected == 0 {
			// Deposited concurrently; skip.
			tx.Rollback()
			continue
		}
		if err := PublishChange(ctx, tx, depositDate, session.ID,
			ReferenceTypeSession, session, &old, ChangeActionUpdate); err != nil {
			tx.Rollback()
			return results, err
		}
		if err := tx.Commit().Error; err != nil {
			return results, err
		}
		results = append(results, &DepositResult{
			SessionDate:   session.SessionDate,
			DepositAmount: session.DepositAmount,
		})
	}
	return results, nil
}

// SessionDiscrepancy reports one date where the stored cash_total drifted
// from the recomputed value beyond the money tolerance.
type SessionDiscrepancy struct {
	SessionDate time.Time       `json:"session_date"`
	Stored      decimal.Decimal `json:"stored"`
	Recomputed  decimal.Decimal `json:"recomputed"`
	Delta       decimal.Decimal `json:"delta"`
}

// VerifyAndReconcile recomputes every session's cash total from the movement
// log and reports the dates that drifted. It never auto-corrects; SyncSession
// is the explicit repair.
func VerifyAndReconcile(ctx context.Context) ([]*SessionDiscrepancy, error) {
	db := config.GetDB()
	var sessions []*Session
	if err := db.WithContext(ctx).Order("session_date ASC").Find(&sessions).Error; err != nil {
		return nil, err
	}

	var discrepancies []*SessionDiscrepancy
	for _, session := range sessions {
		recomputed, err := ComputeDailyCashTotal(ctx, session.SessionDate)
		if err != nil {
			return nil, err
		}
		if !utils.WithinTolerance(session.CashTotal, recomputed) {
			discrepancies = append(discrepancies, &SessionDiscrepancy{
				SessionDate: session.SessionDate,
				Stored:      session.CashTotal,
				Recomputed:  recomputed,
				Delta:       session.CashTotal.Sub(recomputed),
			})
		}
	}
	return discrepancies, nil
}

// SyncSession overwrites a session's stored cash_total with the value
// recomputed from the movement log. The repair half of VerifyAndReconcile.
func SyncSession(ctx context.Context, date time.Time) (*Session, error) {
	session, err := EnsureSession(ctx, date)
	if err != nil {
		return nil, err
	}

	recomputed, err := ComputeDailyCashTotal(ctx, session.SessionDate)
	if err != nil {
		return nil, err
	}
	if utils.WithinTolerance(session.CashTotal, recomputed) {
		return session, nil
	}

	old := *session
	session.CashTotal = recomputed

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := tx.Model(&Session{}).Where("id = ?", session.ID).
		Update("cash_total", recomputed).Error; err != nil {
		return nil, err
	}
	if err := PublishChange(ctx, tx, session.SessionDate, session.ID,
		ReferenceTypeSession, session, &old, ChangeActionUpdate); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return session, nil
}

// SetSessionRemark attaches free text to a session. Nil clears it.
func SetSessionRemark(ctx context.Context, date time.Time, remark *string) (*Session, error) {
	session, err := EnsureSession(ctx, date)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Session{}).Where("id = ?", session.ID).
		Update("remarks", remark).Error; err != nil {
		return nil, err
	}
	session.Remarks = remark
	return session, nil
}

// SetSessionCharges records the day's charges figure, entered by the
// operator. Deposits and quinzaine totals both read it.
func SetSessionCharges(ctx context.Context, date time.Time, charges decimal.Decimal) (*Session, error) {
	if charges.IsNegative() {
		return nil, utils.NewValidationError("charges cannot be negative")
	}
	session, err := EnsureSession(ctx, date)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionStatusDeposited {
		return nil, utils.NewValidationError("session already deposited")
	}

	old := *session
	session.Charges = charges

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := tx.Model(&Session{}).Where("id = ?", session.ID).
		Update("charges", charges).Error; err != nil {
		return nil, err
	}
	if err := PublishChange(ctx, tx, session.SessionDate, session.ID,
		ReferenceTypeSession, session, &old, ChangeActionUpdate); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return session, nil
}
