package payment

import (
	"strings"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/common/validation"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/shopspring/decimal"
)

type InitiateRequest struct {
	Amount      decimal.Decimal        `json:"amount"`
	Gateway     string                 `json:"gateway,omitempty"`
	OrderID     *int64                 `json:"order_id,omitempty"`
	ContentType *string                `json:"content_type,omitempty"`
	ObjectID    *int64                 `json:"object_id,omitempty"`
	Description string                 `json:"description,omitempty"`
	ReturnURL   string                 `json:"return_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (r *InitiateRequest) Validate() error {
	r.Gateway = strings.ToLower(strings.TrimSpace(r.Gateway))
	if appErr := validation.ValidatePaymentAmount(r.Amount); appErr != nil {
		return appErr
	}
	v := validation.NewValidator()
	v.Field("gateway", r.Gateway).OneOf(gatewayNames()...)
	v.Field("description", r.Description).MaxLength(255)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func gatewayNames() []string {
	names := make([]string, 0, len(gateway.Names))
	for _, n := range gateway.Names {
		names = append(names, n.String())
	}
	return names
}

type InitiateResponse struct {
	Success               bool                   `json:"success"`
	PaymentID             int64                  `json:"payment_id"`
	MerchantTransactionID string                 `json:"merchant_transaction_id"`
	Status                string                 `json:"status"`
	Amount                string                 `json:"amount"`
	DisplayAmount         string                 `json:"display_amount"`
	Gateway               string                 `json:"gateway"`
	GatewayFee            string                 `json:"gateway_fee"`
	RedirectURL           string                 `json:"redirect_url,omitempty"`
	SessionID             string                 `json:"session_id,omitempty"`
	RazorpayData          map[string]interface{} `json:"razorpay_data,omitempty"`
	RetryOf               string                 `json:"retry_of,omitempty"`
}

// StatusRequest is the body form of a status check.
type StatusRequest struct {
	MerchantTransactionID string `json:"merchant_transaction_id"`
}

func (r *StatusRequest) Validate() error {
	r.MerchantTransactionID = strings.TrimSpace(r.MerchantTransactionID)
	if r.MerchantTransactionID == "" {
		return internal.NewValidationFieldError("merchant_transaction_id", "merchant_transaction_id is required", internal.ErrCodeValidationFailed)
	}
	v := validation.NewValidator()
	v.Field("merchant_transaction_id", r.MerchantTransactionID).MaxLength(100)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type StatusResponse struct {
	Success               bool    `json:"success"`
	MerchantTransactionID string  `json:"merchant_transaction_id"`
	TransactionID         string  `json:"transaction_id,omitempty"`
	Status                string  `json:"status"`
	Amount                string  `json:"amount"`
	DisplayAmount         string  `json:"display_amount"`
	Message               string  `json:"message"`
	OrderID               *int64  `json:"order_id,omitempty"`
	OrderStatus           *string `json:"order_status,omitempty"`
	Cached                bool    `json:"cached"`
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

func (r *RefundRequest) Validate() error {
	if r.Amount != nil && !r.Amount.IsPositive() {
		return internal.NewValidationFieldError("amount", "amount must be greater than zero", internal.ErrCodeInvalidAmount)
	}
	v := validation.NewValidator()
	v.Field("reason", r.Reason).MaxLength(255)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type RefundResponse struct {
	Success               bool   `json:"success"`
	MerchantTransactionID string `json:"merchant_transaction_id"`
	RefundID              string `json:"refund_id"`
	ProviderRefundID      string `json:"provider_refund_id,omitempty"`
	RefundStatus          string `json:"refund_status"`
	PaymentStatus         string `json:"payment_status"`
	Amount                string `json:"amount"`
}

type StatsResponse struct {
	Stats []StatusTotal `json:"stats"`
}

type WebhookResponse struct {
	Success          bool   `json:"success"`
	Status           string `json:"status,omitempty"`
	Message          string `json:"message,omitempty"`
	PaymentStatus    string `json:"payment_status,omitempty"`
	RefundStatus     string `json:"refund_status,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}
