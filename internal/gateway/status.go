package gateway

import (
	"strings"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
)

// genericStatusMap covers providers that report our own vocabulary or close to it.
var genericStatusMap = map[string]string{
	"completed": paymentDatamodel.StatusCompleted,
	"success":   paymentDatamodel.StatusCompleted,
	"failed":    paymentDatamodel.StatusFailed,
	"cancelled": paymentDatamodel.StatusFailed,
	"pending":   paymentDatamodel.StatusPending,
	"created":   paymentDatamodel.StatusInitiated,
}

var statusMaps = map[Name]map[string]string{
	NamePhonePe: {
		"completed":       paymentDatamodel.StatusCompleted,
		"success":         paymentDatamodel.StatusCompleted,
		"payment_success": paymentDatamodel.StatusCompleted,
		"failed":          paymentDatamodel.StatusFailed,
		"payment_error":   paymentDatamodel.StatusFailed,
		"cancelled":       paymentDatamodel.StatusFailed,
		"pending":         paymentDatamodel.StatusPending,
		"payment_pending": paymentDatamodel.StatusPending,
		"created":         paymentDatamodel.StatusInitiated,
	},
	NameRazorpay: {
		"created":    paymentDatamodel.StatusInitiated,
		"attempted":  paymentDatamodel.StatusPending,
		"authorized": paymentDatamodel.StatusPending,
		"paid":       paymentDatamodel.StatusCompleted,
		"captured":   paymentDatamodel.StatusCompleted,
		"failed":     paymentDatamodel.StatusFailed,
	},
	NameStripe: {
		"open":                paymentDatamodel.StatusInitiated,
		"unpaid":              paymentDatamodel.StatusPending,
		"paid":                paymentDatamodel.StatusCompleted,
		"no_payment_required": paymentDatamodel.StatusCompleted,
		"succeeded":           paymentDatamodel.StatusCompleted,
		"expired":             paymentDatamodel.StatusFailed,
		"canceled":            paymentDatamodel.StatusFailed,
		"failed":              paymentDatamodel.StatusFailed,
	},
}

// NormalizeStatus maps a provider status into the canonical payment vocabulary.
// It returns "" for states it does not know, which callers treat as "leave unchanged".
func NormalizeStatus(name Name, providerStatus string) string {
	key := strings.ToLower(strings.TrimSpace(providerStatus))
	if key == "" {
		return ""
	}
	if table, ok := statusMaps[name]; ok {
		if status, ok := table[key]; ok {
			return status
		}
	}
	return genericStatusMap[key]
}

var refundStatusMaps = map[Name]map[string]string{
	NamePhonePe: {
		"pending":   paymentDatamodel.RefundStatusProcessing,
		"accepted":  paymentDatamodel.RefundStatusProcessing,
		"confirmed": paymentDatamodel.RefundStatusProcessing,
		"completed": paymentDatamodel.RefundStatusCompleted,
		"failed":    paymentDatamodel.RefundStatusFailed,
	},
	NameRazorpay: {
		"pending":   paymentDatamodel.RefundStatusProcessing,
		"processed": paymentDatamodel.RefundStatusCompleted,
		"failed":    paymentDatamodel.RefundStatusFailed,
	},
	NameStripe: {
		"pending":         paymentDatamodel.RefundStatusProcessing,
		"requires_action": paymentDatamodel.RefundStatusProcessing,
		"succeeded":       paymentDatamodel.RefundStatusCompleted,
		"failed":          paymentDatamodel.RefundStatusFailed,
		"canceled":        paymentDatamodel.RefundStatusCancelled,
	},
}

// NormalizeRefundStatus defaults to processing: a refund the provider accepted is in flight.
func NormalizeRefundStatus(name Name, providerStatus string) string {
	key := strings.ToLower(strings.TrimSpace(providerStatus))
	if table, ok := refundStatusMaps[name]; ok {
		if status, ok := table[key]; ok {
			return status
		}
	}
	return paymentDatamodel.RefundStatusProcessing
}
