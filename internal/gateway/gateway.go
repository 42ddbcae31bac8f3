package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/shopspring/decimal"
)

// Name identifies a supported payment provider.
type Name string

const (
	NamePhonePe  Name = "phonepe"
	NameRazorpay Name = "razorpay"
	NameStripe   Name = "stripe"
	NamePaytm    Name = "paytm"
	NameCashfree Name = "cashfree"
)

var Names = []Name{NamePhonePe, NameRazorpay, NameStripe, NamePaytm, NameCashfree}

func (n Name) String() string {
	return string(n)
}

func ParseName(s string) (Name, error) {
	candidate := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, n := range Names {
		if n == candidate {
			return n, nil
		}
	}
	return "", internal.NewValidationFieldError("gateway", "unsupported payment gateway: "+s, internal.ErrCodeInvalidGateway)
}

var (
	ErrMissingSignature = errors.New("gateway: webhook signature or body missing")
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
)

// Client is the capability set every provider integration implements.
type Client interface {
	Name() Name
	// SignatureHeader is the request header carrying the webhook signature.
	SignatureHeader() string
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error)
	ProcessWebhook(ctx context.Context, req WebhookRequest) (*Callback, error)
	InitiateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type InitiateRequest struct {
	PaymentID             int64
	MerchantTransactionID string
	Amount                decimal.Decimal
	ReturnURL             string
	CallbackURL           string
	Description           string
	Customer              Customer
}

type InitiateResult struct {
	ProviderOrderID string
	RedirectURL     string
	SessionID       string
	ProviderStatus  string
	// ProviderData carries client-side checkout parameters (e.g. razorpay_data).
	ProviderData    map[string]interface{}
	Raw             map[string]interface{}
}

type StatusRequest struct {
	PaymentID             int64
	MerchantTransactionID string
	ProviderOrderID       string
}

type StatusResult struct {
	ProviderStatus        string
	// Status is the canonical payment status, empty when the provider state is unmapped.
	Status                string
	ProviderTransactionID string
	PaymentMode           string
	Raw                   map[string]interface{}
}

type WebhookRequest struct {
	Headers http.Header
	Body    []byte
}

type CallbackType string

const (
	CallbackPaymentCompleted CallbackType = "payment_completed"
	CallbackPaymentFailed    CallbackType = "payment_failed"
	CallbackPaymentPending   CallbackType = "payment_pending"
	CallbackRefundAccepted   CallbackType = "refund_accepted"
	CallbackRefundCompleted  CallbackType = "refund_completed"
	CallbackRefundFailed     CallbackType = "refund_failed"
	CallbackUnknown          CallbackType = "unknown"
)

func (t CallbackType) IsPayment() bool {
	return t == CallbackPaymentCompleted || t == CallbackPaymentFailed || t == CallbackPaymentPending
}

func (t CallbackType) IsRefund() bool {
	return t == CallbackRefundAccepted || t == CallbackRefundCompleted || t == CallbackRefundFailed
}

// Callback is a verified webhook, normalized across providers.
type Callback struct {
	Type                  CallbackType
	ProviderType          string
	MerchantTransactionID string
	ProviderOrderID       string
	ProviderTransactionID string
	State                 string
	Status                string
	PaymentMode           string
	MerchantRefundID      string
	ProviderRefundID      string
	// Data is the gateway payload handed to the reconciliation engine.
	Data                  map[string]interface{}
}

type RefundRequest struct {
	PaymentID             int64
	MerchantTransactionID string
	ProviderOrderID       string
	ProviderTransactionID string
	RefundID              string
	Amount                decimal.Decimal
	Reason                string
}

type RefundResult struct {
	ProviderRefundID string
	ProviderStatus   string
	Status           string
	Raw              map[string]interface{}
}

// minorUnits converts a rupee/dollar amount into paise/cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
