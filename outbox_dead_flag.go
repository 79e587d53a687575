package main

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"github.com/sirupsen/logrus"
)

// flagSessionOnDead marks the affected session when a cash-movement change
// goes DEAD: the stored cash_total can no longer be trusted for that day, so
// the operator gets a visible remark instead of a silently stale figure.
func flagSessionOnDead(ctx context.Context, logger *logrus.Logger, msg config.ChangeMessage) {
	if msg.ReferenceType != string(models.ReferenceTypeCashMovement) {
		return
	}

	var movement models.CashMovement
	if len(msg.NewObj) > 0 {
		if err := json.Unmarshal(msg.NewObj, &movement); err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":        "OutboxDeadFlag",
					"reference_id": msg.ReferenceId,
				}).Warn("cannot decode dead cash movement: " + err.Error())
			}
			return
		}
	}
	date := movement.MovementDate
	if date.IsZero() {
		date = msg.EventDateTime
	}
	if date.IsZero() {
		return
	}

	remark := "Vérification caisse requise (mouvement " +
		msg.CorrelationId + " non traité, " + time.Now().Format("2006-01-02") + ")"
	if _, err := models.SetSessionRemark(ctx, date, &remark); err != nil {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":        "OutboxDeadFlag",
				"reference_id": msg.ReferenceId,
				"date":         date.Format("2006-01-02"),
			}).Warn("failed to flag session after DEAD processing: " + err.Error())
		}
		return
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "OutboxDeadFlag",
			"reference_id":   msg.ReferenceId,
			"date":           date.Format("2006-01-02"),
			"correlation_id": msg.CorrelationId,
		}).Info("flagged session for manual verification after DEAD processing")
	}
}
