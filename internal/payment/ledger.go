package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/common/validation"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UserService resolves the payer for a new payment.
type UserService interface {
	GetByID(ctx context.Context, userID int64) (*user.User, error)
}

type CreatePaymentParams struct {
	UserID        int64
	Amount        decimal.Decimal
	Gateway       *gatewayDatamodel.PaymentGateway
	OrderID       *int64
	ContentType   *string
	ObjectID      *int64
	Metadata      map[string]interface{}
	PaymentMethod string
	Client        internal.ClientInfo
}

type TransactionParams struct {
	ProviderOrderID       string
	ProviderTransactionID string
	Amount                decimal.Decimal
	Status                string
	PaymentMethod         string
	GatewayResponse       map[string]interface{}
	IPAddress             string
}

// Ledger owns creation of payments, transactions and refunds.
type Ledger struct {
	repo   RepositoryAPI
	users  UserService
	logger *slog.Logger
	now    func() time.Time
}

func NewLedger(repo RepositoryAPI, users UserService, logger *slog.Logger) *Ledger {
	return &Ledger{repo: repo, users: users, logger: logger, now: time.Now}
}

// CreatePayment validates the amount against global and gateway bounds, then
// stores the payment and its payment_initiated log atomically.
func (l *Ledger) CreatePayment(ctx context.Context, params CreatePaymentParams) (*paymentDatamodel.Payment, error) {
	if appErr := validation.ValidatePaymentAmount(params.Amount); appErr != nil {
		return nil, appErr
	}
	if params.Gateway != nil && !gateway.IsAmountValid(params.Gateway, params.Amount) {
		return nil, internal.NewValidationFieldError("amount", "amount is outside the limits of "+params.Gateway.DisplayName, internal.ErrCodeInvalidAmount)
	}

	payer, err := l.users.GetByID(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	customer := payer.Snapshot()

	now := l.now()
	p := &paymentDatamodel.Payment{
		UserID:                params.UserID,
		Amount:                params.Amount,
		Status:                paymentDatamodel.StatusInitiated,
		ContentType:           params.ContentType,
		ObjectID:              params.ObjectID,
		OrderID:               params.OrderID,
		MerchantTransactionID: uuid.New().String(),
		CustomerEmail:         customer.Email,
		CustomerPhone:         customer.Phone,
		CustomerName:          customer.Name,
		PaymentMethod:         params.PaymentMethod,
		InitiatedAt:           &now,
		IPAddress:             params.Client.IPAddress,
		UserAgent:             params.Client.UserAgent,
	}
	if params.Metadata != nil {
		p.PaymentMetadata = datatypes.JSONMap(jsonSafeMap(params.Metadata))
	}

	details := map[string]interface{}{
		"amount":                  params.Amount.StringFixed(2),
		"merchant_transaction_id": p.MerchantTransactionID,
	}
	if params.Gateway != nil {
		p.GatewayID = &params.Gateway.ID
		details["gateway"] = params.Gateway.Name
	}
	if params.OrderID != nil {
		details["order_id"] = *params.OrderID
	}

	err = l.repo.WithTransaction(ctx, func(tx RepositoryAPI) error {
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		return tx.AppendLog(ctx, newLog(p.ID, nil, paymentDatamodel.ActionPaymentInitiated, paymentDatamodel.LogLevelInfo, details))
	})
	if err != nil {
		l.logger.Error("CreatePayment: failed to persist payment", "user_id", params.UserID, "error", err)
		return nil, internal.NewPersistenceError("failed to create payment", err)
	}

	l.logger.Info("payment created",
		"payment_id", p.ID,
		"merchant_transaction_id", p.MerchantTransactionID,
		"amount", p.Amount.StringFixed(2))
	return p, nil
}

// CreateTransaction records a provider attempt under p. Amount defaults to the payment amount.
func (l *Ledger) CreateTransaction(ctx context.Context, p *paymentDatamodel.Payment, params TransactionParams) (*paymentDatamodel.Transaction, error) {
	txn := &paymentDatamodel.Transaction{
		PaymentID:       p.ID,
		TransactionID:   params.ProviderTransactionID,
		OrderID:         params.ProviderOrderID,
		PaymentMethod:   params.PaymentMethod,
		GatewayResponse: datatypes.JSONMap(jsonSafeMap(params.GatewayResponse)),
		Status:          params.Status,
		Amount:          params.Amount,
		IPAddress:       params.IPAddress,
	}
	if txn.Amount.IsZero() {
		txn.Amount = p.Amount
	}
	if txn.Status == "" {
		txn.Status = p.Status
	}

	err := l.repo.WithTransaction(ctx, func(tx RepositoryAPI) error {
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.AppendLog(ctx, newLog(p.ID, &txn.ID, paymentDatamodel.ActionTransactionCreated, paymentDatamodel.LogLevelInfo, map[string]interface{}{
			"provider_order_id": txn.OrderID,
			"status":            txn.Status,
		}))
	})
	if err != nil {
		l.logger.Error("CreateTransaction: failed to persist transaction", "payment_id", p.ID, "error", err)
		return nil, internal.NewPersistenceError("failed to create transaction", err)
	}
	return txn, nil
}

// CreateRefund opens the single refund a completed payment may have, or
// reopens it when the previous attempt failed. It runs under the payment row lock.
func (l *Ledger) CreateRefund(ctx context.Context, paymentID int64, amount decimal.Decimal, reason string) (*paymentDatamodel.RefundTransaction, error) {
	var refund *paymentDatamodel.RefundTransaction

	err := l.repo.WithTransaction(ctx, func(tx RepositoryAPI) error {
		p, err := tx.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return internal.ErrPaymentNotFound
		}
		if p.Status != paymentDatamodel.StatusCompleted {
			return internal.NewValidationError("only completed payments can be refunded", internal.ErrCodeRefundNotAllowed)
		}
		if !amount.IsPositive() || amount.GreaterThan(p.Amount) {
			return internal.NewValidationFieldError("amount", "refund amount must be positive and not exceed the payment amount", internal.ErrCodeInvalidAmount)
		}

		existing, err := tx.GetRefundByPaymentID(ctx, p.ID)
		if err != nil {
			return err
		}
		// a failed refund is reopened in place; payment_id stays unique
		if existing != nil && existing.Status != paymentDatamodel.RefundStatusFailed {
			return internal.NewConflictError("a refund already exists for this payment", internal.ErrCodeRefundExists)
		}

		latest, err := tx.LatestTransaction(ctx, p.ID)
		if err != nil {
			return err
		}

		details := map[string]interface{}{
			"amount": amount.StringFixed(2),
			"reason": reason,
		}
		refund = existing
		if refund == nil {
			refund = &paymentDatamodel.RefundTransaction{PaymentID: p.ID}
		} else {
			details["previous_refund_id"] = refund.RefundID
		}
		refund.RefundID = uuid.New().String()
		refund.ProviderRefundID = ""
		refund.Amount = amount
		refund.Reason = reason
		refund.Status = paymentDatamodel.RefundStatusInitiated
		refund.GatewayResponse = nil
		refund.CompletedAt = nil
		details["refund_id"] = refund.RefundID

		var txnID *int64
		if latest != nil {
			refund.TransactionID = &latest.ID
			txnID = &latest.ID
		}
		if existing == nil {
			err = tx.CreateRefund(ctx, refund)
		} else {
			err = tx.UpdateRefund(ctx, refund)
		}
		if err != nil {
			return err
		}
		return tx.AppendLog(ctx, newLog(p.ID, txnID, paymentDatamodel.ActionRefundInitiated, paymentDatamodel.LogLevelInfo, details))
	})
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		l.logger.Error("CreateRefund: failed to persist refund", "payment_id", paymentID, "error", err)
		return nil, internal.NewPersistenceError("failed to create refund", err)
	}
	return refund, nil
}

func newLog(paymentID int64, transactionID *int64, action, level string, details map[string]interface{}) *paymentDatamodel.PaymentLog {
	return &paymentDatamodel.PaymentLog{
		PaymentID:     paymentID,
		TransactionID: transactionID,
		Action:        action,
		Level:         level,
		Details:       datatypes.JSONMap(jsonSafeMap(details)),
	}
}
