package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
)

// EventHandler turns committed payment transitions into customer notifications.
// Delivery itself is handled outside this service; the handler records what
// would be sent.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentStatus(ctx context.Context, event events.Event) error {
	statusEvent, ok := event.(*events.PaymentStatusEvent)
	if !ok {
		h.logger.Error("invalid event type for payment status handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentStatusEvent, got %T", event)
	}

	h.logger.Info("payment notification queued",
		"event_type", statusEvent.EventType(),
		"event_id", statusEvent.EventID(),
		"payment_id", statusEvent.PaymentID,
		"merchant_transaction_id", statusEvent.MerchantTransactionID,
		"user_id", statusEvent.UserID,
		"amount", statusEvent.Amount,
		"old_status", statusEvent.OldStatus,
		"new_status", statusEvent.NewStatus)
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	types := []string{
		events.EventTypePaymentCompleted,
		events.EventTypePaymentFailed,
		events.EventTypePaymentRefunded,
	}
	for _, t := range types {
		eventBus.Subscribe(t, h.HandlePaymentStatus)
	}

	h.logger.Info("payment event handlers registered", "handlers", types)
}
