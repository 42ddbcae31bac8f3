package order

import (
	"context"
	"fmt"

	orderDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
)

// RepositoryAPI returns (nil, nil) for orders that do not exist.
type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*orderDatamodel.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// TargetStatus is the order status a payment status implies, or "" when the
// payment status leaves orders alone.
func TargetStatus(paymentStatus string) string {
	switch paymentStatus {
	case paymentDatamodel.StatusCompleted:
		return orderDatamodel.StatusProcessing
	case paymentDatamodel.StatusFailed:
		return orderDatamodel.StatusCancelled
	default:
		return ""
	}
}

// isFulfilled orders have left the warehouse and no payment event may move them.
func isFulfilled(status string) bool {
	return status == orderDatamodel.StatusShipped || status == orderDatamodel.StatusDelivered
}

type LinkResult struct {
	OrderID   int64
	OldStatus string
	NewStatus string
	Changed   bool
}

// Link moves the order to the status implied by paymentStatus. It must run
// inside the same transaction that changed the payment.
func Link(ctx context.Context, repo RepositoryAPI, orderID int64, paymentStatus string) (*LinkResult, error) {
	target := TargetStatus(paymentStatus)
	if target == "" {
		return nil, nil
	}

	o, err := repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if o == nil {
		return nil, nil
	}

	result := &LinkResult{
		OrderID:   o.ID,
		OldStatus: o.Status,
		NewStatus: o.Status,
	}
	if o.Status == target || isFulfilled(o.Status) {
		return result, nil
	}

	if err := repo.UpdateStatus(ctx, o.ID, target); err != nil {
		return nil, fmt.Errorf("update order %d status: %w", orderID, err)
	}
	result.NewStatus = target
	result.Changed = true
	return result, nil
}
