package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentRefunded  = "payment.refunded"
)

// PaymentStatusEvent is published after a status transition has been committed.
type PaymentStatusEvent struct {
	BaseEvent
	PaymentID             int64  `json:"payment_id"`
	MerchantTransactionID string `json:"merchant_transaction_id"`
	UserID                int64  `json:"user_id"`
	OrderID               *int64 `json:"order_id,omitempty"`
	Amount                string `json:"amount"`
	OldStatus             string `json:"old_status"`
	NewStatus             string `json:"new_status"`
}

func NewPaymentStatusEvent(eventType string, paymentID int64, merchantTransactionID string, userID int64, orderID *int64, amount, oldStatus, newStatus string) *PaymentStatusEvent {
	data := map[string]interface{}{
		"payment_id":              paymentID,
		"merchant_transaction_id": merchantTransactionID,
		"user_id":                 userID,
		"amount":                  amount,
		"old_status":              oldStatus,
		"new_status":              newStatus,
	}
	if orderID != nil {
		data["order_id"] = *orderID
	}

	return &PaymentStatusEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		PaymentID:             paymentID,
		MerchantTransactionID: merchantTransactionID,
		UserID:                userID,
		OrderID:               orderID,
		Amount:                amount,
		OldStatus:             oldStatus,
		NewStatus:             newStatus,
	}
}

// EventTypeForStatus returns the event published for a payment status, or "" when none is.
func EventTypeForStatus(status string) string {
	switch status {
	case "completed":
		return EventTypePaymentCompleted
	case "failed":
		return EventTypePaymentFailed
	case "refunded":
		return EventTypePaymentRefunded
	}
	return ""
}
