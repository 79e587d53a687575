package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"gorm.io/gorm"
)

// Publish-side lifecycle (dispatcher → Pub/Sub).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Processing-side lifecycle (reducers consuming the change).
type OutboxProcessStatus string

const (
	OutboxProcessStatusPending    OutboxProcessStatus = "PENDING"
	OutboxProcessStatusProcessing OutboxProcessStatus = "PROCESSING"
	OutboxProcessStatusSucceeded  OutboxProcessStatus = "SUCCEEDED"
	OutboxProcessStatusFailed     OutboxProcessStatus = "FAILED"
	OutboxProcessStatusDead       OutboxProcessStatus = "DEAD"
)

const (
	OutboxMaxPublishAttempts = 10
	OutboxMaxProcessAttempts = 8
)

// ChangeRecord is the transactional outbox: every write that affects a
// derived aggregate appends one of these inside the same DB transaction.
// Publishing to Pub/Sub happens after commit, via the dispatcher; the
// direct processor consumes rows in-process when Pub/Sub is not configured.
type ChangeRecord struct {
	ID                  int           `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	TransactionDateTime time.Time     `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int           `json:"reference_id"`
	ReferenceType       ReferenceType `gorm:"type:enum('CM','SN','CRP','TR','EXP','CHQ','QZ');index:idx_outbox_ref,priority:1" json:"reference_type"`
	Action              ChangeAction  `gorm:"type:enum('C','U','D')" json:"action"`
	OldObj              []byte        `gorm:"type:blob" json:"old_obj"`
	NewObj              []byte        `gorm:"type:blob" json:"new_obj"`
	IsProcessed         bool          `gorm:"index;not null" json:"is_processed"`
	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	// Processing metadata (reducer side).
	ProcessingStatus     OutboxProcessStatus `gorm:"size:20;index;default:'PENDING'" json:"processing_status"`
	ProcessAttempts      int                 `gorm:"not null;default:0" json:"process_attempts"`
	NextProcessAttemptAt *time.Time          `gorm:"index" json:"next_process_attempt_at"`
	LastProcessError     *string             `gorm:"type:text" json:"last_process_error"`
	ProcessedAt          *time.Time          `gorm:"index" json:"processed_at"`
	CorrelationId        string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToChangeMessage(record ChangeRecord) config.ChangeMessage {
	return config.ChangeMessage{
		ID:            record.ID,
		EventDateTime: record.TransactionDateTime,
		ReferenceId:   record.ReferenceId,
		ReferenceType: string(record.ReferenceType),
		Action:        string(record.Action),
		OldObj:        record.OldObj,
		NewObj:        record.NewObj,
		CorrelationId: record.CorrelationId,
	}
}

// OutboxStatus is an operator-facing view of the latest outbox row for a
// document, answering "did the derived ledgers catch up with this write".
type OutboxStatus struct {
	RecordId             int                 `json:"record_id"`
	ReferenceType        ReferenceType       `json:"reference_type"`
	ReferenceId          int                 `json:"reference_id"`
	PublishStatus        string              `json:"publish_status"`
	ProcessingStatus     OutboxProcessStatus `json:"processing_status"`
	IsProcessed          bool                `json:"is_processed"`
	PublishAttempts      int                 `json:"publish_attempts"`
	ProcessAttempts      int                 `json:"process_attempts"`
	NextAttemptAt        *time.Time          `json:"next_attempt_at"`
	NextProcessAttemptAt *time.Time          `json:"next_process_attempt_at"`
	LastPublishError     *string             `json:"last_publish_error"`
	LastProcessError     *string             `json:"last_process_error"`
	CreatedAt            time.Time           `json:"created_at"`
	PublishedAt          *time.Time          `json:"published_at"`
	ProcessedAt          *time.Time          `json:"processed_at"`
}

func GetOutboxStatus(ctx context.Context, referenceType ReferenceType, referenceId int) (*OutboxStatus, error) {
	db := config.GetDB()
	var rec ChangeRecord
	if err := db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	processing := rec.ProcessingStatus
	if processing == "" {
		if rec.IsProcessed {
			processing = OutboxProcessStatusSucceeded
		} else {
			processing = OutboxProcessStatusPending
		}
	}

	return &OutboxStatus{
		RecordId:             rec.ID,
		ReferenceType:        rec.ReferenceType,
		ReferenceId:          rec.ReferenceId,
		PublishStatus:        rec.PublishStatus,
		ProcessingStatus:     processing,
		IsProcessed:          rec.IsProcessed,
		PublishAttempts:      rec.PublishAttempts,
		ProcessAttempts:      rec.ProcessAttempts,
		NextAttemptAt:        rec.NextAttemptAt,
		NextProcessAttemptAt: rec.NextProcessAttemptAt,
		LastPublishError:     rec.LastPublishError,
		LastProcessError:     rec.LastProcessError,
		CreatedAt:            rec.CreatedAt,
		PublishedAt:          rec.PublishedAt,
		ProcessedAt:          rec.ProcessedAt,
	}, nil
}

// ReprocessOutbox resets every unprocessed row of a document so the
// dispatcher and reducers pick it up again. Used after fixing a DEAD row.
func ReprocessOutbox(ctx context.Context, referenceType ReferenceType, referenceId int) (*OutboxStatus, error) {
	now := time.Now().UTC()
	db := config.GetDB()

	res := db.WithContext(ctx).
		Model(&ChangeRecord{}).
		Where("reference_type = ? AND reference_id = ? AND is_processed = 0", referenceType, referenceId).
		Updates(map[string]interface{}{
			"locked_at":               nil,
			"locked_by":               nil,
			"publish_status":          OutboxPublishStatusPending,
			"next_attempt_at":         nil,
			"processing_status":       OutboxProcessStatusPending,
			"next_process_attempt_at": &now,
			"process_attempts":        0,
			"last_process_error":      nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrorRecordNotFound
	}

	return GetOutboxStatus(ctx, referenceType, referenceId)
}
