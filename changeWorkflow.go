package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
	"bitbucket.org/assurdata/agence_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunChangeWorkflow subscribes to the change topic and feeds messages into
// ProcessMessage. Only started when Pub/Sub is configured; the direct
// processor covers the rest.
func RunChangeWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.ChangeMessage{}
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			config.LogError(logger, "changeWorkflow", "RunChangeWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			// Poison payload; retrying cannot fix it.
			msg.Ack()
			return
		}

		ctx = systemContext(ctx, m.CorrelationId)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "ChangeWorkflow",
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
				"correlation_id": m.CorrelationId,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "changeWorkflow", "RunChangeWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

func systemContext(ctx context.Context, correlationId string) context.Context {
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")
	if correlationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}
	return ctx
}

// ProcessMessage runs one change message through its reducer under the
// posting lock and a durable idempotency key. Returning an error rolls the
// whole attempt back and triggers a retry; a skip commits nothing.
func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.ChangeMessage) error {
	markOutboxProcessing(ctx, m.ID)

	db := config.GetDB()
	err := db.Transaction(func(tx *gorm.DB) error {
		// Strict ordering across instances.
		if err := workflow.AcquirePostingLock(tx.WithContext(ctx)); err != nil {
			return err
		}
		defer workflow.ReleasePostingLock(tx.WithContext(ctx))

		handlerName := m.ReferenceType
		messageId := strconv.Itoa(m.ID)

		skip, err := workflow.BeginIdempotency(tx.WithContext(ctx), handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := ProcessWorkflow(tx.WithContext(ctx), logger, m); err != nil {
			_ = workflow.MarkIdempotencyFailed(tx.WithContext(ctx), handlerName, messageId, err)
			return err
		}
		return workflow.MarkIdempotencySucceeded(tx.WithContext(ctx), handlerName, messageId)
	})
	if err != nil {
		if dead := markOutboxProcessFailure(ctx, logger, m, err); dead {
			flagSessionOnDead(ctx, logger, m)
		}
		return err
	}

	markOutboxProcessSuccess(ctx, logger, m)
	markOutboxRecordProcessed(ctx, m.ID)
	return nil
}

func markOutboxRecordProcessed(ctx context.Context, id int) {
	if id <= 0 {
		return
	}
	db := config.GetDB()
	_ = db.WithContext(ctx).Model(&models.ChangeRecord{}).
		Where("id = ?", id).
		Update("is_processed", true).Error
}

// ProcessWorkflow dispatches a change message to its reducer by reference
// type. Unknown types are acked silently.
func ProcessWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ChangeMessage) error {
	switch msg.ReferenceType {
	case string(models.ReferenceTypeCashMovement):
		return workflow.ProcessCashMovementWorkflow(tx, logger, msg)
	case string(models.ReferenceTypeSession):
		return workflow.ProcessSessionWorkflow(tx, logger, msg)
	case string(models.ReferenceTypeExpense):
		return workflow.ProcessExpenseWorkflow(tx, logger, msg)
	case string(models.ReferenceTypeTerme):
		return workflow.ProcessTermeWorkflow(tx, logger, msg)
	case string(models.ReferenceTypeCreditPayment):
		return workflow.ProcessCreditPaymentWorkflow(tx, logger, msg)
	}
	return nil
}
