package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/shopspring/decimal"
)

type ServiceAPI interface {
	InitiatePayment(ctx context.Context, userID int64, req InitiateRequest) (*InitiateResponse, error)
	CheckStatus(ctx context.Context, userID int64, merchantTransactionID string) (*StatusResponse, error)
	RetryPayment(ctx context.Context, userID int64, merchantTransactionID string) (*InitiateResponse, error)
	RefundPayment(ctx context.Context, userID int64, merchantTransactionID string, req RefundRequest) (*RefundResponse, error)
	Stats(ctx context.Context, userID int64) (*StatsResponse, error)
	HandleWebhook(ctx context.Context, gatewayName string, headers http.Header, body []byte) (*WebhookResponse, error)
}

// GatewayResolver is the part of gateway.Manager the service needs.
type GatewayResolver interface {
	SuitableGateway(ctx context.Context, amount decimal.Decimal, name string) (*gatewayDatamodel.PaymentGateway, error)
	GatewayByID(ctx context.Context, id int64) (*gatewayDatamodel.PaymentGateway, error)
	GatewayByName(ctx context.Context, name string) (*gatewayDatamodel.PaymentGateway, error)
	ClientFor(gw *gatewayDatamodel.PaymentGateway) (gateway.Client, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, userID int64) bool
}

type Options struct {
	ReturnURL      string
	WebhookBaseURL string
}

type Service struct {
	repo     RepositoryAPI
	stats    StatsRepository
	ledger   *Ledger
	engine   *Engine
	gateways GatewayResolver
	limiter  RateLimiter
	opts     Options
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, stats StatsRepository, ledger *Ledger, engine *Engine, gateways GatewayResolver, limiter RateLimiter, opts Options, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		stats:    stats,
		ledger:   ledger,
		engine:   engine,
		gateways: gateways,
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Service) InitiatePayment(ctx context.Context, userID int64, req InitiateRequest) (*InitiateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, userID) {
		s.logger.Warn("InitiatePayment: rate limited", "user_id", userID)
		return nil, internal.NewRateLimitedError("Please wait a few seconds before initiating another payment")
	}

	gw, err := s.gateways.SuitableGateway(ctx, req.Amount, req.Gateway)
	if err != nil {
		return nil, err
	}
	return s.initiate(ctx, userID, gw, req)
}

func (s *Service) initiate(ctx context.Context, userID int64, gw *gatewayDatamodel.PaymentGateway, req InitiateRequest) (*InitiateResponse, error) {
	client, err := s.gateways.ClientFor(gw)
	if err != nil {
		return nil, err
	}

	p, err := s.ledger.CreatePayment(ctx, CreatePaymentParams{
		UserID:      userID,
		Amount:      req.Amount,
		Gateway:     gw,
		OrderID:     req.OrderID,
		ContentType: req.ContentType,
		ObjectID:    req.ObjectID,
		Metadata:    req.Metadata,
		Client:      internal.ClientInfoFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.opts.ReturnURL
	}

	result, err := client.InitiatePayment(ctx, gateway.InitiateRequest{
		PaymentID:             p.ID,
		MerchantTransactionID: p.MerchantTransactionID,
		Amount:                p.Amount,
		ReturnURL:             returnURL,
		CallbackURL:           s.webhookURL(gw.Name),
		Description:           req.Description,
		Customer: gateway.Customer{
			Name:  p.CustomerName,
			Email: p.CustomerEmail,
			Phone: p.CustomerPhone,
		},
	})
	if err != nil {
		s.logger.Error("InitiatePayment: gateway call failed",
			"payment_id", p.ID,
			"gateway", gw.Name,
			"error", err)
		s.appendLog(ctx, newLog(p.ID, nil, paymentDatamodel.ActionPaymentInitiationFailed, paymentDatamodel.LogLevelError, map[string]interface{}{
			"gateway": gw.Name,
			"error":   err.Error(),
		}))
		return nil, internal.NewGatewayError("Payment gateway error. Please try again.", err)
	}

	if _, err := s.ledger.CreateTransaction(ctx, p, TransactionParams{
		ProviderOrderID: result.ProviderOrderID,
		Status:          paymentDatamodel.StatusInitiated,
		GatewayResponse: result.Raw,
		IPAddress:       p.IPAddress,
	}); err != nil {
		return nil, err
	}

	resp := &InitiateResponse{
		Success:               true,
		PaymentID:             p.ID,
		MerchantTransactionID: p.MerchantTransactionID,
		Status:                p.Status,
		Amount:                p.Amount.StringFixed(2),
		DisplayAmount:         DisplayAmount(p.Amount),
		Gateway:               gw.Name,
		GatewayFee:            gateway.CalculateFee(gw, p.Amount).StringFixed(2),
		RedirectURL:           result.RedirectURL,
		SessionID:             result.SessionID,
	}
	if gw.Name == gateway.NameRazorpay.String() {
		resp.RazorpayData = result.ProviderData
	}
	return resp, nil
}

func (s *Service) webhookURL(gatewayName string) string {
	if s.opts.WebhookBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/webhooks/%s", strings.TrimRight(s.opts.WebhookBaseURL, "/"), gatewayName)
}

// ownedPayment loads a payment and checks it belongs to userID.
func (s *Service) ownedPayment(ctx context.Context, userID int64, merchantTransactionID string) (*paymentDatamodel.Payment, error) {
	p, err := s.repo.GetByMerchantTransactionID(ctx, merchantTransactionID)
	if err != nil {
		return nil, internal.NewPersistenceError("failed to load payment", err)
	}
	if p == nil {
		return nil, internal.ErrPaymentNotFound
	}
	if p.UserID != userID {
		s.logger.Warn("payment accessed by another user",
			"merchant_transaction_id", merchantTransactionID,
			"user_id", userID)
		return nil, internal.ErrUnauthorizedAccess
	}
	return p, nil
}

func (s *Service) CheckStatus(ctx context.Context, userID int64, merchantTransactionID string) (*StatusResponse, error) {
	p, err := s.ownedPayment(ctx, userID, merchantTransactionID)
	if err != nil {
		return nil, err
	}

	cached := IsTerminal(p.Status)
	if !cached {
		p = s.PollStatus(ctx, p, SourcePoll)
	}
	return s.statusResponse(ctx, p, cached), nil
}

// PollStatus asks the provider for p's state and reconciles on change. Provider
// failures are logged and the last known state is returned.
func (s *Service) PollStatus(ctx context.Context, p *paymentDatamodel.Payment, source string) *paymentDatamodel.Payment {
	if p.GatewayID == nil {
		return p
	}

	txn, err := s.repo.LatestTransaction(ctx, p.ID)
	if err != nil {
		s.logger.Error("PollStatus: failed to load transaction", "payment_id", p.ID, "error", err)
		return p
	}
	req := gateway.StatusRequest{PaymentID: p.ID, MerchantTransactionID: p.MerchantTransactionID}
	if txn != nil {
		req.ProviderOrderID = txn.OrderID
	}

	result, err := s.checkWithProvider(ctx, *p.GatewayID, req)
	checkedAt := time.Now()
	if markErr := s.repo.MarkChecked(ctx, p.ID, checkedAt); markErr != nil {
		s.logger.Error("PollStatus: failed to record status check", "payment_id", p.ID, "error", markErr)
	} else {
		p.LastCheckedAt = &checkedAt
	}
	if err != nil {
		s.logger.Warn("PollStatus: status check failed",
			"payment_id", p.ID,
			"merchant_transaction_id", p.MerchantTransactionID,
			"error", err)
		s.appendLog(ctx, newLog(p.ID, nil, paymentDatamodel.ActionStatusCheckFailed, paymentDatamodel.LogLevelWarning, map[string]interface{}{
			"error":  err.Error(),
			"source": source,
		}))
		return p
	}

	if result.Status == "" || result.Status == p.Status {
		return p
	}

	updated, err := s.engine.UpdatePaymentStatus(ctx, p.ID, StatusUpdate{
		Status: result.Status,
		GatewayData: map[string]interface{}{
			"provider_status": result.ProviderStatus,
			"transaction_id":  result.ProviderTransactionID,
			"payment_mode":    result.PaymentMode,
			"response":        result.Raw,
		},
		ProviderTransactionID: result.ProviderTransactionID,
		PaymentMode:           result.PaymentMode,
		Source:                source,
	})
	if err != nil {
		s.logger.Error("PollStatus: failed to apply provider status", "payment_id", p.ID, "error", err)
		return p
	}
	return updated
}

func (s *Service) checkWithProvider(ctx context.Context, gatewayID int64, req gateway.StatusRequest) (*gateway.StatusResult, error) {
	gw, err := s.gateways.GatewayByID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	client, err := s.gateways.ClientFor(gw)
	if err != nil {
		return nil, err
	}
	return client.CheckStatus(ctx, req)
}

func (s *Service) statusResponse(ctx context.Context, p *paymentDatamodel.Payment, cached bool) *StatusResponse {
	resp := &StatusResponse{
		Success:               true,
		MerchantTransactionID: p.MerchantTransactionID,
		Status:                p.Status,
		Amount:                p.Amount.StringFixed(2),
		DisplayAmount:         DisplayAmount(p.Amount),
		Message:               StatusMessage(p.Status, p.Amount),
		OrderID:               p.OrderID,
		Cached:                cached,
	}

	if txn, err := s.repo.LatestTransaction(ctx, p.ID); err == nil && txn != nil {
		resp.TransactionID = txn.TransactionID
	}
	if p.OrderID != nil {
		if o, err := s.repo.Orders().GetByID(ctx, *p.OrderID); err == nil && o != nil {
			resp.OrderStatus = &o.Status
		}
	}
	return resp
}

// RetryPayment starts a fresh payment for a failed or cancelled one.
func (s *Service) RetryPayment(ctx context.Context, userID int64, merchantTransactionID string) (*InitiateResponse, error) {
	original, err := s.ownedPayment(ctx, userID, merchantTransactionID)
	if err != nil {
		return nil, err
	}
	if !isRetryable(original.Status) {
		return nil, internal.NewValidationError("only failed or cancelled payments can be retried", internal.ErrCodePaymentNotRetryable)
	}
	if original.GatewayID == nil {
		return nil, internal.ErrGatewayNotFound
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, userID) {
		return nil, internal.NewRateLimitedError("Please wait a few seconds before initiating another payment")
	}

	gw, err := s.gateways.GatewayByID(ctx, *original.GatewayID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{}
	for k, v := range original.PaymentMetadata {
		metadata[k] = v
	}
	metadata["retry_of"] = original.MerchantTransactionID

	s.appendLog(ctx, newLog(original.ID, nil, paymentDatamodel.ActionPaymentRetry, paymentDatamodel.LogLevelInfo, map[string]interface{}{
		"previous_status": original.Status,
	}))

	resp, err := s.initiate(ctx, userID, gw, InitiateRequest{
		Amount:      original.Amount,
		Gateway:     gw.Name,
		OrderID:     original.OrderID,
		ContentType: original.ContentType,
		ObjectID:    original.ObjectID,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}
	resp.RetryOf = original.MerchantTransactionID
	return resp, nil
}

func (s *Service) RefundPayment(ctx context.Context, userID int64, merchantTransactionID string, req RefundRequest) (*RefundResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.ownedPayment(ctx, userID, merchantTransactionID)
	if err != nil {
		return nil, err
	}
	if p.GatewayID == nil {
		return nil, internal.ErrGatewayNotFound
	}
	gw, err := s.gateways.GatewayByID(ctx, *p.GatewayID)
	if err != nil {
		return nil, err
	}
	if !gw.SupportsRefund {
		return nil, internal.NewValidationError(gw.DisplayName+" does not support refunds", internal.ErrCodeRefundNotAllowed)
	}
	client, err := s.gateways.ClientFor(gw)
	if err != nil {
		return nil, err
	}

	amount := p.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}

	refund, err := s.ledger.CreateRefund(ctx, p.ID, amount, req.Reason)
	if err != nil {
		return nil, err
	}

	refundReq := gateway.RefundRequest{
		PaymentID:             p.ID,
		MerchantTransactionID: p.MerchantTransactionID,
		RefundID:              refund.RefundID,
		Amount:                refund.Amount,
		Reason:                refund.Reason,
	}
	if txn, err := s.repo.LatestTransaction(ctx, p.ID); err == nil && txn != nil {
		refundReq.ProviderOrderID = txn.OrderID
		refundReq.ProviderTransactionID = txn.TransactionID
	}

	result, err := client.InitiateRefund(ctx, refundReq)
	if err != nil {
		s.logger.Error("RefundPayment: gateway refund failed",
			"payment_id", p.ID,
			"refund_id", refund.RefundID,
			"error", err)
		if _, _, markErr := s.engine.ApplyRefundStatus(ctx, p.ID, RefundUpdate{
			Status:      paymentDatamodel.RefundStatusFailed,
			GatewayData: map[string]interface{}{"error": err.Error()},
		}); markErr != nil {
			s.logger.Error("RefundPayment: failed to mark refund failed",
				"payment_id", p.ID,
				"refund_id", refund.RefundID,
				"error", markErr)
		}
		return nil, internal.NewGatewayError("Refund request to the payment gateway failed. Please try again later.", err)
	}

	refund, p, err = s.engine.ApplyRefundStatus(ctx, p.ID, RefundUpdate{
		Status:           result.Status,
		ProviderRefundID: result.ProviderRefundID,
		GatewayData:      result.Raw,
	})
	if err != nil {
		return nil, err
	}

	return &RefundResponse{
		Success:               true,
		MerchantTransactionID: p.MerchantTransactionID,
		RefundID:              refund.RefundID,
		ProviderRefundID:      refund.ProviderRefundID,
		RefundStatus:          refund.Status,
		PaymentStatus:         p.Status,
		Amount:                refund.Amount.StringFixed(2),
	}, nil
}

func (s *Service) Stats(ctx context.Context, userID int64) (*StatsResponse, error) {
	totals, err := s.stats.StatusTotals(ctx, userID)
	if err != nil {
		s.logger.Error("Stats: failed to aggregate payments", "user_id", userID, "error", err)
		return nil, internal.NewPersistenceError("failed to load payment statistics", err)
	}
	if totals == nil {
		totals = []StatusTotal{}
	}
	return &StatsResponse{Stats: totals}, nil
}

// HandleWebhook verifies and applies a provider callback. Signature errors are
// returned as gateway.ErrMissingSignature or gateway.ErrInvalidSignature.
func (s *Service) HandleWebhook(ctx context.Context, gatewayName string, headers http.Header, body []byte) (*WebhookResponse, error) {
	started := time.Now()

	gw, err := s.gateways.GatewayByName(ctx, gatewayName)
	if err != nil {
		return nil, err
	}
	client, err := s.gateways.ClientFor(gw)
	if err != nil {
		return nil, err
	}

	callback, err := client.ProcessWebhook(ctx, gateway.WebhookRequest{Headers: headers, Body: body})
	switch {
	case errors.Is(err, gateway.ErrMissingSignature):
		return nil, err
	case errors.Is(err, gateway.ErrInvalidSignature):
		s.logger.Warn("webhook signature verification failed", "gateway", gw.Name)
		return nil, err
	case err != nil:
		return nil, internal.NewValidationError("invalid webhook payload", internal.ErrCodeValidationFailed).WithCause(err)
	}

	switch {
	case callback.Type.IsPayment():
		return s.applyPaymentCallback(ctx, gw, callback, started)
	case callback.Type.IsRefund():
		return s.recordRefundCallback(ctx, gw, callback, started)
	default:
		s.logger.Info("unknown webhook callback type", "gateway", gw.Name, "type", callback.ProviderType)
		return &WebhookResponse{
			Success:          true,
			Message:          "Unknown callback type processed",
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		}, nil
	}
}

func (s *Service) applyPaymentCallback(ctx context.Context, gw *gatewayDatamodel.PaymentGateway, callback *gateway.Callback, started time.Time) (*WebhookResponse, error) {
	if callback.MerchantTransactionID == "" {
		return nil, internal.NewValidationError("Missing required fields", internal.ErrCodeValidationFailed)
	}

	p, err := s.repo.GetByMerchantTransactionID(ctx, callback.MerchantTransactionID)
	if err != nil {
		return nil, internal.NewPersistenceError("failed to load payment", err)
	}
	if p == nil {
		s.logger.Warn("webhook for unknown payment",
			"gateway", gw.Name,
			"merchant_transaction_id", callback.MerchantTransactionID)
		return nil, internal.ErrPaymentNotFound
	}

	oldStatus := p.Status
	if callback.Status != "" && callback.Status != p.Status {
		p, err = s.engine.UpdatePaymentStatus(ctx, p.ID, StatusUpdate{
			Status:                callback.Status,
			GatewayData:           callback.Data,
			ProviderTransactionID: callback.ProviderTransactionID,
			PaymentMode:           callback.PaymentMode,
			Source:                SourceWebhook,
		})
		if err != nil {
			return nil, err
		}
	}

	elapsed := time.Since(started).Milliseconds()
	s.appendLog(ctx, newLog(p.ID, nil, paymentDatamodel.ActionCallbackProcessed, paymentDatamodel.LogLevelInfo, map[string]interface{}{
		"gateway":            gw.Name,
		"callback_type":      string(callback.Type),
		"provider_type":      callback.ProviderType,
		"payment_state":      callback.State,
		"provider_order_id":  callback.ProviderOrderID,
		"status_changed":     oldStatus != p.Status,
		"processing_time_ms": elapsed,
		"webhook_ip":         internal.ClientInfoFromContext(ctx).IPAddress,
	}))

	s.logger.Info("payment webhook processed",
		"gateway", gw.Name,
		"merchant_transaction_id", p.MerchantTransactionID,
		"old_status", oldStatus,
		"payment_status", p.Status,
		"processing_time_ms", elapsed)

	return &WebhookResponse{
		Success:          true,
		Status:           "processed",
		PaymentStatus:    p.Status,
		ProcessingTimeMs: elapsed,
	}, nil
}

// recordRefundCallback only audits refund callbacks; refund state moves
// through ApplyRefundStatus.
func (s *Service) recordRefundCallback(ctx context.Context, gw *gatewayDatamodel.PaymentGateway, callback *gateway.Callback, started time.Time) (*WebhookResponse, error) {
	if callback.MerchantTransactionID != "" {
		p, err := s.repo.GetByMerchantTransactionID(ctx, callback.MerchantTransactionID)
		if err != nil {
			return nil, internal.NewPersistenceError("failed to load payment", err)
		}
		if p != nil {
			s.appendLog(ctx, newLog(p.ID, nil, paymentDatamodel.ActionRefundCallbackReceived, paymentDatamodel.LogLevelInfo, map[string]interface{}{
				"gateway":            gw.Name,
				"callback_type":      string(callback.Type),
				"refund_state":       callback.State,
				"merchant_refund_id": callback.MerchantRefundID,
				"provider_refund_id": callback.ProviderRefundID,
				"gateway_data":       callback.Data,
			}))
		}
	}

	s.logger.Info("refund webhook received",
		"gateway", gw.Name,
		"merchant_transaction_id", callback.MerchantTransactionID,
		"refund_state", callback.State)

	return &WebhookResponse{
		Success:          true,
		Status:           "refund_callback_processed",
		RefundStatus:     callback.State,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// appendLog writes a standalone audit row; a failure here never fails the caller.
func (s *Service) appendLog(ctx context.Context, log *paymentDatamodel.PaymentLog) {
	if err := s.repo.AppendLog(ctx, log); err != nil {
		s.logger.Error("failed to append payment log",
			"payment_id", log.PaymentID,
			"action", log.Action,
			"error", err)
	}
}

// StaleCandidates lists non-terminal payments not checked with their provider
// since olderThan, least recently checked first.
func (s *Service) StaleCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*paymentDatamodel.Payment, error) {
	payments, err := s.repo.ListStale(ctx, []string{paymentDatamodel.StatusInitiated, paymentDatamodel.StatusPending}, olderThan, limit)
	if err != nil {
		return nil, internal.NewPersistenceError("failed to list stale payments", err)
	}
	return payments, nil
}
