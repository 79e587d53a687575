package models

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublishChange implements the transactional outbox: it writes the change
// record inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing happens asynchronously, after commit, in the outbox dispatcher.
func PublishChange(ctx context.Context, db *gorm.DB, transactionDateTime time.Time, refId int, refType ReferenceType, obj interface{}, oldObj interface{}, action ChangeAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if action == ChangeActionCreate || action == ChangeActionUpdate {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if action == ChangeActionUpdate || action == ChangeActionDelete {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := ChangeRecord{
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              action,
		NewObj:              objInByte,
		OldObj:              oldObjInByte,
		IsProcessed:         false,
		PublishStatus:       OutboxPublishStatusPending,
		ProcessingStatus:    OutboxProcessStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return db.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// IsDuplicateKeyError reports whether err is a MySQL duplicate-entry error
// (1062). Idempotent inserts race on unique indexes and treat this as
// "someone else already did it".
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}

// businessDateOrNow resolves the operating day: the context value placed by
// the auth layer when present, otherwise today in the agency timezone.
func businessDateOrNow(ctx context.Context) (time.Time, error) {
	if d, ok := utils.GetBusinessDateFromContext(ctx); ok {
		return d, nil
	}
	return utils.ConvertToDate(time.Now(), "")
}
