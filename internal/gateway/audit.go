package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"gorm.io/datatypes"
)

const (
	ActionInitiatePayment = "initiate_payment"
	ActionCheckStatus     = "check_status"
	ActionProcessWebhook  = "process_webhook"
	ActionInitiateRefund  = "initiate_refund"
)

// AuditSink persists one PaymentGatewayLog row per provider call.
type AuditSink interface {
	CreateGatewayLog(ctx context.Context, log *gatewayDatamodel.PaymentGatewayLog) error
}

// auditedClient wraps a provider client so every call leaves an audit row.
type auditedClient struct {
	next      Client
	gatewayID *int64
	sink      AuditSink
	logger    *slog.Logger
	now       func() time.Time
}

func withAudit(next Client, gatewayID *int64, sink AuditSink, logger *slog.Logger) Client {
	if sink == nil {
		return next
	}
	return &auditedClient{
		next:      next,
		gatewayID: gatewayID,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *auditedClient) Name() Name {
	return c.next.Name()
}

func (c *auditedClient) SignatureHeader() string {
	return c.next.SignatureHeader()
}

func (c *auditedClient) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	result, err := c.next.InitiatePayment(ctx, req)

	request := map[string]interface{}{
		"merchant_transaction_id": req.MerchantTransactionID,
		"amount":                  req.Amount.StringFixed(2),
	}
	var response map[string]interface{}
	if result != nil {
		response = map[string]interface{}{
			"provider_order_id": result.ProviderOrderID,
			"provider_status":   result.ProviderStatus,
			"has_redirect_url":  result.RedirectURL != "",
		}
	}
	c.record(ctx, ActionInitiatePayment, paymentRef(req.PaymentID), req.MerchantTransactionID, request, response, err)
	return result, err
}

func (c *auditedClient) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	result, err := c.next.CheckStatus(ctx, req)

	request := map[string]interface{}{
		"merchant_transaction_id": req.MerchantTransactionID,
		"provider_order_id":       req.ProviderOrderID,
	}
	var response map[string]interface{}
	if result != nil {
		response = map[string]interface{}{
			"provider_status":         result.ProviderStatus,
			"status":                  result.Status,
			"provider_transaction_id": result.ProviderTransactionID,
		}
	}
	c.record(ctx, ActionCheckStatus, paymentRef(req.PaymentID), req.MerchantTransactionID, request, response, err)
	return result, err
}

func (c *auditedClient) ProcessWebhook(ctx context.Context, req WebhookRequest) (*Callback, error) {
	callback, err := c.next.ProcessWebhook(ctx, req)

	request := map[string]interface{}{
		"body_bytes": len(req.Body),
	}
	var response map[string]interface{}
	merchantID := ""
	if callback != nil {
		merchantID = callback.MerchantTransactionID
		response = map[string]interface{}{
			"callback_type":           string(callback.Type),
			"provider_type":           callback.ProviderType,
			"merchant_transaction_id": callback.MerchantTransactionID,
			"state":                   callback.State,
		}
	}
	c.record(ctx, ActionProcessWebhook, nil, merchantID, request, response, err)
	return callback, err
}

func (c *auditedClient) InitiateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	result, err := c.next.InitiateRefund(ctx, req)

	request := map[string]interface{}{
		"merchant_transaction_id": req.MerchantTransactionID,
		"refund_id":               req.RefundID,
		"amount":                  req.Amount.StringFixed(2),
	}
	var response map[string]interface{}
	if result != nil {
		response = map[string]interface{}{
			"provider_refund_id": result.ProviderRefundID,
			"provider_status":    result.ProviderStatus,
			"status":             result.Status,
		}
	}
	c.record(ctx, ActionInitiateRefund, paymentRef(req.PaymentID), req.MerchantTransactionID, request, response, err)
	return result, err
}

func (c *auditedClient) record(ctx context.Context, action string, paymentID *int64, merchantID string, request, response map[string]interface{}, callErr error) {
	client := internal.ClientInfoFromContext(ctx)
	entry := &gatewayDatamodel.PaymentGatewayLog{
		GatewayID:   c.gatewayID,
		GatewayName: c.next.Name().String(),
		PaymentID:   paymentID,
		Action:      action,
		RequestData: datatypes.JSONMap(request),
		Status:      gatewayDatamodel.LogStatusSuccess,
		IPAddress:   client.IPAddress,
		UserAgent:   client.UserAgent,
		CreatedAt:   c.now(),
	}
	if response != nil {
		entry.ResponseData = datatypes.JSONMap(response)
	}
	if callErr != nil {
		entry.Status = gatewayDatamodel.LogStatusFailed
		entry.ErrorMessage = callErr.Error()
		if merchantID != "" {
			entry.RequestData = datatypes.JSONMap{"reference": MaskReference(merchantID)}
		}
	}

	if err := c.sink.CreateGatewayLog(ctx, entry); err != nil {
		c.logger.Error("failed to write gateway audit log",
			"gateway", entry.GatewayName,
			"action", action,
			"error", err)
	}
}

// MaskReference keeps the last four characters of an identifier.
func MaskReference(ref string) string {
	if len(ref) <= 4 {
		return "****"
	}
	return "****" + ref[len(ref)-4:]
}

func paymentRef(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
