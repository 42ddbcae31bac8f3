package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
)

const razorpayDefaultBaseURL = "https://api.razorpay.com"

type RazorpaySettings struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

type RazorpayClient struct {
	settings RazorpaySettings
	http     HTTPDoer
	logger   *slog.Logger
}

func NewRazorpayClient(settings RazorpaySettings, httpClient HTTPDoer, logger *slog.Logger) (*RazorpayClient, error) {
	switch {
	case settings.KeyID == "":
		return nil, missingCredentials(NameRazorpay, "key_id")
	case settings.KeySecret == "":
		return nil, missingCredentials(NameRazorpay, "key_secret")
	case settings.WebhookSecret == "":
		return nil, missingCredentials(NameRazorpay, "webhook_secret")
	}
	if settings.BaseURL == "" {
		settings.BaseURL = razorpayDefaultBaseURL
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")

	return &RazorpayClient{settings: settings, http: httpClient, logger: logger}, nil
}

func (c *RazorpayClient) Name() Name {
	return NameRazorpay
}

func (c *RazorpayClient) SignatureHeader() string {
	return "X-Razorpay-Signature"
}

func (c *RazorpayClient) headers() map[string]string {
	credentials := base64.StdEncoding.EncodeToString([]byte(c.settings.KeyID + ":" + c.settings.KeySecret))
	return map[string]string{"Authorization": "Basic " + credentials}
}

func (c *RazorpayClient) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	notes := map[string]string{
		"merchant_transaction_id": req.MerchantTransactionID,
		"payment_id":              strconv.FormatInt(req.PaymentID, 10),
	}
	payload := map[string]interface{}{
		"amount":   minorUnits(req.Amount),
		"currency": "INR",
		"receipt":  req.MerchantTransactionID,
		"notes":    notes,
	}

	resp, err := doJSON(ctx, c.http, http.MethodPost, c.settings.BaseURL+"/v1/orders", payload, c.headers())
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	orderID := str(resp, "id")
	if orderID == "" {
		return nil, fmt.Errorf("razorpay create order: response missing id")
	}

	c.logger.Info("razorpay order created",
		"merchant_transaction_id", req.MerchantTransactionID,
		"razorpay_order_id", orderID)

	return &InitiateResult{
		ProviderOrderID: orderID,
		ProviderStatus:  str(resp, "status"),
		ProviderData: map[string]interface{}{
			"key":         c.settings.KeyID,
			"order_id":    orderID,
			"amount":      minorUnits(req.Amount),
			"currency":    "INR",
			"description": req.Description,
			"prefill": map[string]string{
				"name":    req.Customer.Name,
				"email":   req.Customer.Email,
				"contact": req.Customer.Phone,
			},
			"notes":        notes,
			"callback_url": req.ReturnURL,
		},
		Raw: resp,
	}, nil
}

func (c *RazorpayClient) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	if req.ProviderOrderID == "" {
		return nil, fmt.Errorf("razorpay order status: provider order id is required")
	}

	orderURL := fmt.Sprintf("%s/v1/orders/%s", c.settings.BaseURL, url.PathEscape(req.ProviderOrderID))
	order, err := doJSON(ctx, c.http, http.MethodGet, orderURL, nil, c.headers())
	if err != nil {
		return nil, fmt.Errorf("razorpay order status: %w", err)
	}

	state := str(order, "status")
	result := &StatusResult{
		ProviderStatus: state,
		Status:         NormalizeStatus(NameRazorpay, state),
		Raw:            order,
	}

	payments, err := doJSON(ctx, c.http, http.MethodGet, orderURL+"/payments", nil, c.headers())
	if err != nil {
		c.logger.Warn("razorpay order payments lookup failed",
			"razorpay_order_id", req.ProviderOrderID,
			"error", err)
		return result, nil
	}

	// Prefer a captured attempt, otherwise report the latest one.
	items, _ := payments["items"].([]interface{})
	var chosen map[string]interface{}
	for _, item := range items {
		p, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if chosen == nil || str(p, "status") == "captured" {
			chosen = p
		}
		if str(p, "status") == "captured" {
			break
		}
	}
	if chosen != nil {
		result.ProviderTransactionID = str(chosen, "id")
		result.PaymentMode = str(chosen, "method")
		if state != "paid" {
			if status := NormalizeStatus(NameRazorpay, str(chosen, "status")); status != "" {
				result.Status = status
			}
		}
	}
	return result, nil
}

func (c *RazorpayClient) InitiateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.ProviderTransactionID == "" {
		return nil, fmt.Errorf("razorpay refund: provider payment id is required")
	}

	payload := map[string]interface{}{
		"amount":  minorUnits(req.Amount),
		"receipt": req.RefundID,
		"notes": map[string]string{
			"merchant_transaction_id": req.MerchantTransactionID,
			"merchant_refund_id":      req.RefundID,
			"reason":                  req.Reason,
		},
	}

	endpoint := fmt.Sprintf("%s/v1/payments/%s/refund", c.settings.BaseURL, url.PathEscape(req.ProviderTransactionID))
	resp, err := doJSON(ctx, c.http, http.MethodPost, endpoint, payload, c.headers())
	if err != nil {
		return nil, fmt.Errorf("razorpay refund: %w", err)
	}

	state := str(resp, "status")
	return &RefundResult{
		ProviderRefundID: str(resp, "id"),
		ProviderStatus:   state,
		Status:           NormalizeRefundStatus(NameRazorpay, state),
		Raw:              resp,
	}, nil
}

func (c *RazorpayClient) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.settings.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (c *RazorpayClient) ProcessWebhook(ctx context.Context, req WebhookRequest) (*Callback, error) {
	signature := req.Headers.Get(c.SignatureHeader())
	if signature == "" || len(req.Body) == 0 {
		return nil, ErrMissingSignature
	}
	if !c.verifySignature(req.Body, signature) {
		return nil, ErrInvalidSignature
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, fmt.Errorf("razorpay webhook: invalid JSON: %w", err)
	}

	event := str(envelope, "event")
	payment := obj(envelope, "payload", "payment", "entity")
	order := obj(envelope, "payload", "order", "entity")
	refund := obj(envelope, "payload", "refund", "entity")

	callback := &Callback{ProviderType: event}

	switch event {
	case "payment.captured", "order.paid", "payment.failed":
		callback.Type = CallbackPaymentCompleted
		callback.State = str(payment, "status")
		if event == "payment.failed" {
			callback.Type = CallbackPaymentFailed
		}
		if event == "order.paid" && callback.State == "" {
			callback.State = str(order, "status")
		}
		callback.Status = NormalizeStatus(NameRazorpay, callback.State)
		if callback.Status == "" {
			callback.Status = paymentDatamodel.StatusCompleted
			if callback.Type == CallbackPaymentFailed {
				callback.Status = paymentDatamodel.StatusFailed
			}
		}

		callback.MerchantTransactionID = str(payment, "notes", "merchant_transaction_id")
		if callback.MerchantTransactionID == "" {
			callback.MerchantTransactionID = str(order, "notes", "merchant_transaction_id")
		}
		if callback.MerchantTransactionID == "" {
			callback.MerchantTransactionID = str(order, "receipt")
		}
		callback.ProviderOrderID = str(payment, "order_id")
		if callback.ProviderOrderID == "" {
			callback.ProviderOrderID = str(order, "id")
		}
		callback.ProviderTransactionID = str(payment, "id")
		callback.PaymentMode = str(payment, "method")

		data := map[string]interface{}{
			"callback_type":     event,
			"state":             callback.State,
			"razorpay_order_id": callback.ProviderOrderID,
			"transaction_id":    callback.ProviderTransactionID,
			"payment_mode":      callback.PaymentMode,
			"amount":            payment["amount"],
			"webhook_timestamp": envelope["created_at"],
		}
		if callback.Type == CallbackPaymentFailed {
			data["error_code"] = str(payment, "error_code")
			data["error_description"] = str(payment, "error_description")
		}
		callback.Data = data
	case "refund.created", "refund.processed", "refund.failed":
		callback.Type = map[string]CallbackType{
			"refund.created":   CallbackRefundAccepted,
			"refund.processed": CallbackRefundCompleted,
			"refund.failed":    CallbackRefundFailed,
		}[event]
		callback.State = str(refund, "status")
		callback.Status = NormalizeRefundStatus(NameRazorpay, callback.State)
		callback.MerchantTransactionID = str(refund, "notes", "merchant_transaction_id")
		callback.MerchantRefundID = str(refund, "notes", "merchant_refund_id")
		callback.ProviderRefundID = str(refund, "id")
		callback.ProviderTransactionID = str(refund, "payment_id")
		callback.Data = map[string]interface{}{
			"callback_type":      event,
			"state":              callback.State,
			"merchant_refund_id": callback.MerchantRefundID,
			"refund_id":          callback.ProviderRefundID,
			"amount":             refund["amount"],
		}
	default:
		callback.Type = CallbackUnknown
	}

	return callback, nil
}
