package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/order"
	"github.com/shopspring/decimal"
)

// RepositoryAPI returns (nil, nil) for rows that do not exist.
type RepositoryAPI interface {
	// WithTransaction runs fn against a repository bound to one database transaction.
	WithTransaction(ctx context.Context, fn func(tx RepositoryAPI) error) error

	CreatePayment(ctx context.Context, p *paymentDatamodel.Payment) error
	GetByID(ctx context.Context, id int64) (*paymentDatamodel.Payment, error)
	// GetByIDForUpdate takes a row lock held until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*paymentDatamodel.Payment, error)
	GetByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*paymentDatamodel.Payment, error)
	UpdatePayment(ctx context.Context, p *paymentDatamodel.Payment) error
	// ListStale orders by the last provider check, falling back to updated_at.
	ListStale(ctx context.Context, statuses []string, olderThan time.Time, limit int) ([]*paymentDatamodel.Payment, error)
	// MarkChecked records a provider status check without touching updated_at.
	MarkChecked(ctx context.Context, paymentID int64, at time.Time) error

	LatestTransaction(ctx context.Context, paymentID int64) (*paymentDatamodel.Transaction, error)
	CreateTransaction(ctx context.Context, t *paymentDatamodel.Transaction) error
	UpdateTransaction(ctx context.Context, t *paymentDatamodel.Transaction) error

	GetRefundByPaymentID(ctx context.Context, paymentID int64) (*paymentDatamodel.RefundTransaction, error)
	CreateRefund(ctx context.Context, r *paymentDatamodel.RefundTransaction) error
	UpdateRefund(ctx context.Context, r *paymentDatamodel.RefundTransaction) error

	AppendLog(ctx context.Context, log *paymentDatamodel.PaymentLog) error
	ListLogs(ctx context.Context, paymentID int64) ([]*paymentDatamodel.PaymentLog, error)

	// Orders is bound to the same transaction as the repository.
	Orders() order.RepositoryAPI
}

// StatsRepository aggregates payments per status.
type StatsRepository interface {
	StatusTotals(ctx context.Context, userID int64) ([]StatusTotal, error)
}

type StatusTotal struct {
	Status string          `db:"status" json:"status"`
	Count  int64           `db:"count" json:"count"`
	Total  decimal.Decimal `db:"total" json:"total"`
}

// IsTerminal statuses never move again through status updates. completed may
// still become refunded through the refund flow.
func IsTerminal(status string) bool {
	switch status {
	case paymentDatamodel.StatusCompleted,
		paymentDatamodel.StatusFailed,
		paymentDatamodel.StatusRefunded,
		paymentDatamodel.StatusCancelled:
		return true
	}
	return false
}

func IsValidStatus(status string) bool {
	for _, s := range paymentDatamodel.AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func isRetryable(status string) bool {
	return status == paymentDatamodel.StatusFailed || status == paymentDatamodel.StatusCancelled
}

func isRefundTerminal(status string) bool {
	switch status {
	case paymentDatamodel.RefundStatusCompleted,
		paymentDatamodel.RefundStatusFailed,
		paymentDatamodel.RefundStatusCancelled:
		return true
	}
	return false
}

// DisplayAmount renders an amount as rupees with thousands separators, e.g. ₹1,234.50.
func DisplayAmount(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s₹%s.%s", sign, b.String(), frac)
}

// StatusMessage is the user-facing text for a payment status.
func StatusMessage(status string, amount decimal.Decimal) string {
	switch status {
	case paymentDatamodel.StatusCompleted:
		return fmt.Sprintf("Payment of %s completed successfully!", DisplayAmount(amount))
	case paymentDatamodel.StatusFailed:
		return "Payment failed. Please try again or contact support."
	case paymentDatamodel.StatusPending, paymentDatamodel.StatusInitiated:
		return "Payment is being processed. Please wait..."
	case paymentDatamodel.StatusRefunded:
		return fmt.Sprintf("Payment of %s has been refunded.", DisplayAmount(amount))
	case paymentDatamodel.StatusCancelled:
		return "Payment was cancelled."
	default:
		return "Payment status is being verified. Please wait..."
	}
}

// ToJSONSafe converts v into values encoding/json can always store. Values
// json cannot marshal are kept as their string form rather than dropped.
func ToJSONSafe(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return ToJSONSafe(float64(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Sprintf("%v", val)
		}
		return val
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = ToJSONSafe(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = ToJSONSafe(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return val.String()
	case error:
		return val.Error()
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

// jsonSafeMap is ToJSONSafe for gateway payloads; nil stays nil.
func jsonSafeMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	return ToJSONSafe(data).(map[string]interface{})
}
