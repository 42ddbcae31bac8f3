package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/order"
	"gorm.io/datatypes"
)

// Sources of a status update, recorded on the status_updated log.
const (
	SourceWebhook   = "webhook"
	SourcePoll      = "status_check"
	SourceReconcile = "reconcile_worker"
	SourceManual    = "manual"
)

type StatusUpdate struct {
	Status                string
	GatewayData           map[string]interface{}
	ProviderTransactionID string
	PaymentMode           string
	Source                string
}

type RefundUpdate struct {
	Status           string
	ProviderRefundID string
	GatewayData      map[string]interface{}
}

// Engine applies status changes to a payment and everything hanging off it
// in one transaction, under the payment row lock.
type Engine struct {
	repo      RepositoryAPI
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

// UpdatePaymentStatus is the only writer of payment status outside the refund
// flow. Re-applying the current status is allowed and logged again; moving a
// terminal payment to another status is recorded as ignored.
func (e *Engine) UpdatePaymentStatus(ctx context.Context, paymentID int64, update StatusUpdate) (*paymentDatamodel.Payment, error) {
	if !IsValidStatus(update.Status) {
		return nil, internal.NewValidationFieldError("status", "unknown payment status: "+update.Status, internal.ErrCodeInvalidStatus)
	}

	var (
		result    *paymentDatamodel.Payment
		oldStatus string
		changed   bool
	)

	err := e.repo.WithTransaction(ctx, func(tx RepositoryAPI) error {
		p, err := tx.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return internal.ErrPaymentNotFound
		}
		result = p
		oldStatus = p.Status
		now := e.now()

		if IsTerminal(oldStatus) && update.Status != oldStatus {
			e.logger.Warn("status update ignored for terminal payment",
				"payment_id", p.ID,
				"current_status", oldStatus,
				"attempted_status", update.Status,
				"source", update.Source)
			return tx.AppendLog(ctx, newLog(p.ID, nil, paymentDatamodel.ActionStatusUpdateIgnored, paymentDatamodel.LogLevelWarning, map[string]interface{}{
				"current_status":   oldStatus,
				"attempted_status": update.Status,
				"source":           update.Source,
				"has_gateway_data": update.GatewayData != nil,
			}))
		}

		p.Status = update.Status
		switch update.Status {
		case paymentDatamodel.StatusCompleted:
			if p.CompletedAt == nil {
				p.CompletedAt = &now
			}
		case paymentDatamodel.StatusFailed:
			if p.FailedAt == nil {
				p.FailedAt = &now
			}
		}
		if update.PaymentMode != "" && p.PaymentMethod == "" {
			p.PaymentMethod = update.PaymentMode
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		txn, err := e.applyToTransaction(ctx, tx, p, update, now)
		if err != nil {
			return err
		}

		details := map[string]interface{}{
			"old_status":       oldStatus,
			"new_status":       update.Status,
			"source":           update.Source,
			"has_gateway_data": update.GatewayData != nil,
		}
		if update.GatewayData != nil {
			details["gateway_data"] = update.GatewayData
		}

		changed = oldStatus != update.Status
		if changed && p.OrderID != nil {
			link, err := order.Link(ctx, tx.Orders(), *p.OrderID, update.Status)
			if err != nil {
				return err
			}
			if link != nil {
				details["order_id"] = link.OrderID
				details["order_status"] = link.NewStatus
				if link.Changed {
					e.logger.Info("order status updated from payment",
						"order_id", link.OrderID,
						"old_status", link.OldStatus,
						"new_status", link.NewStatus)
				}
			}
		}

		return tx.AppendLog(ctx, newLog(p.ID, &txn.ID, paymentDatamodel.ActionStatusUpdated, paymentDatamodel.LogLevelInfo, details))
	})
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		e.logger.Error("UpdatePaymentStatus: failed to apply status",
			"payment_id", paymentID,
			"status", update.Status,
			"error", err)
		return nil, internal.NewPersistenceError("failed to update payment status", err)
	}

	if changed {
		e.logger.Info("payment status updated",
			"payment_id", result.ID,
			"merchant_transaction_id", result.MerchantTransactionID,
			"old_status", oldStatus,
			"new_status", result.Status,
			"source", update.Source)
		e.publish(ctx, result, oldStatus)
	}
	return result, nil
}

// applyToTransaction updates the latest attempt, creating one when the payment has none.
func (e *Engine) applyToTransaction(ctx context.Context, tx RepositoryAPI, p *paymentDatamodel.Payment, update StatusUpdate, now time.Time) (*paymentDatamodel.Transaction, error) {
	txn, err := tx.LatestTransaction(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	isNew := txn == nil
	if isNew {
		txn = &paymentDatamodel.Transaction{
			PaymentID: p.ID,
			Amount:    p.Amount,
		}
	}

	txn.Status = update.Status
	if update.GatewayData != nil {
		txn.GatewayResponse = datatypes.JSONMap(jsonSafeMap(update.GatewayData))
	}
	if update.ProviderTransactionID != "" {
		txn.TransactionID = update.ProviderTransactionID
	}
	if update.PaymentMode != "" {
		txn.PaymentMode = update.PaymentMode
	}
	if update.Source == SourceWebhook {
		txn.CallbackReceivedAt = &now
		txn.ChecksumVerified = true
	}
	if IsTerminal(update.Status) && txn.VerificationCompletedAt == nil {
		txn.VerificationCompletedAt = &now
	}

	if isNew {
		err = tx.CreateTransaction(ctx, txn)
	} else {
		err = tx.UpdateTransaction(ctx, txn)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ApplyRefundStatus moves the payment's refund forward. A completed refund
// turns the payment into refunded.
func (e *Engine) ApplyRefundStatus(ctx context.Context, paymentID int64, update RefundUpdate) (*paymentDatamodel.RefundTransaction, *paymentDatamodel.Payment, error) {
	var (
		refund    *paymentDatamodel.RefundTransaction
		result    *paymentDatamodel.Payment
		oldStatus string
	)

	err := e.repo.WithTransaction(ctx, func(tx RepositoryAPI) error {
		p, err := tx.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return internal.ErrPaymentNotFound
		}
		result = p
		oldStatus = p.Status

		refund, err = tx.GetRefundByPaymentID(ctx, p.ID)
		if err != nil {
			return err
		}
		if refund == nil {
			return internal.ErrRefundNotFound
		}
		if isRefundTerminal(refund.Status) || update.Status == "" || update.Status == refund.Status {
			return nil
		}

		now := e.now()
		previous := refund.Status
		refund.Status = update.Status
		if update.ProviderRefundID != "" {
			refund.ProviderRefundID = update.ProviderRefundID
		}
		if update.GatewayData != nil {
			refund.GatewayResponse = datatypes.JSONMap(jsonSafeMap(update.GatewayData))
		}
		if update.Status == paymentDatamodel.RefundStatusCompleted {
			refund.CompletedAt = &now
		}
		if err := tx.UpdateRefund(ctx, refund); err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, newLog(p.ID, refund.TransactionID, paymentDatamodel.ActionRefundStatusUpdated, paymentDatamodel.LogLevelInfo, map[string]interface{}{
			"refund_id":          refund.RefundID,
			"provider_refund_id": refund.ProviderRefundID,
			"old_status":         previous,
			"new_status":         refund.Status,
		})); err != nil {
			return err
		}

		if refund.Status != paymentDatamodel.RefundStatusCompleted || p.Status != paymentDatamodel.StatusCompleted {
			return nil
		}
		p.Status = paymentDatamodel.StatusRefunded
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		return tx.AppendLog(ctx, newLog(p.ID, refund.TransactionID, paymentDatamodel.ActionRefundCompleted, paymentDatamodel.LogLevelInfo, map[string]interface{}{
			"refund_id": refund.RefundID,
			"amount":    refund.Amount.StringFixed(2),
		}))
	})
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, nil, err
		}
		e.logger.Error("ApplyRefundStatus: failed to apply refund status",
			"payment_id", paymentID,
			"status", update.Status,
			"error", err)
		return nil, nil, internal.NewPersistenceError("failed to update refund status", err)
	}

	if result.Status != oldStatus {
		e.publish(ctx, result, oldStatus)
	}
	return refund, result, nil
}

func (e *Engine) publish(ctx context.Context, p *paymentDatamodel.Payment, oldStatus string) {
	eventType := events.EventTypeForStatus(p.Status)
	if eventType == "" || e.publisher == nil {
		return
	}
	event := events.NewPaymentStatusEvent(eventType, p.ID, p.MerchantTransactionID, p.UserID, p.OrderID, p.Amount.StringFixed(2), oldStatus, p.Status)
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error("failed to publish payment event",
			"event_type", eventType,
			"payment_id", p.ID,
			"error", err)
	}
}
