package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
)

const (
	stripeDefaultBaseURL     = "https://api.stripe.com"
	stripeSignatureTolerance = 5 * time.Minute
)

type StripeSettings struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Currency      string
}

type StripeClient struct {
	settings StripeSettings
	api      *client.API
	logger   *slog.Logger
}

func NewStripeClient(settings StripeSettings, httpClient HTTPDoer, logger *slog.Logger) (*StripeClient, error) {
	switch {
	case settings.SecretKey == "":
		return nil, missingCredentials(NameStripe, "secret_key")
	case settings.WebhookSecret == "":
		return nil, missingCredentials(NameStripe, "webhook_secret")
	}
	if settings.BaseURL == "" {
		settings.BaseURL = stripeDefaultBaseURL
	}
	if settings.Currency == "" {
		settings.Currency = "inr"
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	settings.Currency = strings.ToLower(settings.Currency)

	config := &stripe.BackendConfig{
		URL:           stripe.String(settings.BaseURL),
		LeveledLogger: stripeLogger{logger},
	}
	if hc, ok := httpClient.(*http.Client); ok {
		config.HTTPClient = hc
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, config)

	api := &client.API{}
	api.Init(settings.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeClient{settings: settings, api: api, logger: logger}, nil
}

func (c *StripeClient) Name() Name {
	return NameStripe
}

func (c *StripeClient) SignatureHeader() string {
	return "Stripe-Signature"
}

func (c *StripeClient) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	description := req.Description
	if description == "" {
		description = "Payment " + req.MerchantTransactionID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.MerchantTransactionID),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.ReturnURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.settings.Currency),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"merchant_transaction_id": req.MerchantTransactionID},
		},
	}
	params.Context = ctx
	params.AddMetadata("merchant_transaction_id", req.MerchantTransactionID)
	params.AddMetadata("payment_id", strconv.FormatInt(req.PaymentID, 10))
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("stripe create checkout session: response missing id")
	}

	c.logger.Info("stripe checkout session created",
		"merchant_transaction_id", req.MerchantTransactionID,
		"session_id", session.ID)

	return &InitiateResult{
		ProviderOrderID: session.ID,
		SessionID:       session.ID,
		RedirectURL:     session.URL,
		ProviderStatus:  string(session.Status),
		Raw:             rawResponse(session.LastResponse),
	}, nil
}

func (c *StripeClient) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	if req.ProviderOrderID == "" {
		return nil, fmt.Errorf("stripe session status: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := c.api.CheckoutSessions.Get(req.ProviderOrderID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe session status: %w", err)
	}

	state := sessionState(string(session.Status), string(session.PaymentStatus))
	result := &StatusResult{
		ProviderStatus: state,
		Status:         NormalizeStatus(NameStripe, state),
		Raw:            rawResponse(session.LastResponse),
	}
	if session.PaymentIntent != nil {
		result.ProviderTransactionID = session.PaymentIntent.ID
	}
	return result, nil
}

// sessionState folds session.status and payment_status into one provider state.
func sessionState(status, paymentStatus string) string {
	if status == "expired" {
		return "expired"
	}
	if paymentStatus != "" {
		return paymentStatus
	}
	return status
}

func (c *StripeClient) InitiateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.ProviderTransactionID == "" {
		return nil, fmt.Errorf("stripe refund: payment intent is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ProviderTransactionID),
		Amount:        stripe.Int64(minorUnits(req.Amount)),
	}
	params.Context = ctx
	params.AddMetadata("merchant_transaction_id", req.MerchantTransactionID)
	params.AddMetadata("merchant_refund_id", req.RefundID)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	refund, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}

	state := string(refund.Status)
	return &RefundResult{
		ProviderRefundID: refund.ID,
		ProviderStatus:   state,
		Status:           NormalizeRefundStatus(NameStripe, state),
		Raw:              rawResponse(refund.LastResponse),
	}, nil
}

func (c *StripeClient) ProcessWebhook(ctx context.Context, req WebhookRequest) (*Callback, error) {
	header := req.Headers.Get(c.SignatureHeader())
	if header == "" || len(req.Body) == 0 {
		return nil, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(req.Body, header, c.settings.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                stripeSignatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return nil, ErrMissingSignature
	case errors.Is(err, webhook.ErrNoValidSignature), errors.Is(err, webhook.ErrTooOld), errors.Is(err, webhook.ErrInvalidHeader):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, fmt.Errorf("stripe webhook: %w", err)
	}

	eventType := string(event.Type)
	var object map[string]interface{}
	if event.Data != nil {
		object = event.Data.Object
	}
	callback := &Callback{ProviderType: eventType}

	switch eventType {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
		callback.State = sessionState(str(object, "status"), str(object, "payment_status"))
		callback.Status = NormalizeStatus(NameStripe, callback.State)
		switch {
		case eventType == "checkout.session.async_payment_failed" || eventType == "checkout.session.expired":
			callback.Type = CallbackPaymentFailed
			callback.Status = paymentDatamodel.StatusFailed
		case callback.Status == paymentDatamodel.StatusCompleted:
			callback.Type = CallbackPaymentCompleted
		default:
			callback.Type = CallbackPaymentPending
			callback.Status = paymentDatamodel.StatusPending
		}

		callback.MerchantTransactionID = str(object, "client_reference_id")
		if callback.MerchantTransactionID == "" {
			callback.MerchantTransactionID = str(object, "metadata", "merchant_transaction_id")
		}
		callback.ProviderOrderID = str(object, "id")
		callback.ProviderTransactionID = str(object, "payment_intent")
		if types, ok := object["payment_method_types"].([]interface{}); ok && len(types) > 0 {
			callback.PaymentMode, _ = types[0].(string)
		}
		callback.Data = map[string]interface{}{
			"callback_type":     eventType,
			"state":             callback.State,
			"session_id":        callback.ProviderOrderID,
			"transaction_id":    callback.ProviderTransactionID,
			"payment_mode":      callback.PaymentMode,
			"amount":            object["amount_total"],
			"currency":          str(object, "currency"),
			"webhook_timestamp": event.Created,
		}
	case "charge.refunded", "refund.created", "refund.updated", "refund.failed":
		callback.State = str(object, "status")
		if eventType == "charge.refunded" {
			callback.State = "succeeded"
		}
		callback.Status = NormalizeRefundStatus(NameStripe, callback.State)
		switch {
		case eventType == "refund.failed" || callback.Status == paymentDatamodel.RefundStatusFailed:
			callback.Type = CallbackRefundFailed
		case callback.Status == paymentDatamodel.RefundStatusCompleted:
			callback.Type = CallbackRefundCompleted
		default:
			callback.Type = CallbackRefundAccepted
		}
		callback.MerchantTransactionID = str(object, "metadata", "merchant_transaction_id")
		callback.MerchantRefundID = str(object, "metadata", "merchant_refund_id")
		callback.ProviderRefundID = str(object, "id")
		callback.ProviderTransactionID = str(object, "payment_intent")
		callback.Data = map[string]interface{}{
			"callback_type":      eventType,
			"state":              callback.State,
			"merchant_refund_id": callback.MerchantRefundID,
			"refund_id":          callback.ProviderRefundID,
			"amount":             object["amount"],
		}
	default:
		callback.Type = CallbackUnknown
	}

	return callback, nil
}

func rawResponse(resp *stripe.APIResponse) map[string]interface{} {
	if resp == nil || len(resp.RawJSON) == 0 {
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(resp.RawJSON, &raw); err != nil {
		return nil
	}
	return raw
}

// stripeLogger routes stripe-go's leveled logging into slog.
type stripeLogger struct {
	logger *slog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "gateway", NameStripe)
}

func (l stripeLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "gateway", NameStripe)
}

func (l stripeLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "gateway", NameStripe)
}

func (l stripeLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "gateway", NameStripe)
}
