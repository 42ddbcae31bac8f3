package postgres

import (
	"context"
	"errors"
	"time"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/order"
	orderPostgres "github.com/frahmantamala/payment-reconciliation/internal/order/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

var _ payment.RepositoryAPI = (*PaymentRepository)(nil)

func (r *PaymentRepository) WithTransaction(ctx context.Context, fn func(tx payment.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentRepository{db: tx})
	})
}

func (r *PaymentRepository) Orders() order.RepositoryAPI {
	return orderPostgres.NewOrderRepository(r.db)
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *paymentDatamodel.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*paymentDatamodel.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*paymentDatamodel.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *PaymentRepository) GetByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*paymentDatamodel.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("merchant_transaction_id = ?", merchantTransactionID))
}

func (r *PaymentRepository) first(query *gorm.DB) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := query.First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) UpdatePayment(ctx context.Context, p *paymentDatamodel.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *PaymentRepository) ListStale(ctx context.Context, statuses []string, olderThan time.Time, limit int) ([]*paymentDatamodel.Payment, error) {
	var payments []*paymentDatamodel.Payment
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("gateway_id IS NOT NULL").
		Where("COALESCE(last_checked_at, updated_at) < ?", olderThan).
		Order("COALESCE(last_checked_at, updated_at) ASC, id ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) MarkChecked(ctx context.Context, paymentID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&paymentDatamodel.Payment{}).
		Where("id = ?", paymentID).
		UpdateColumn("last_checked_at", at).Error
}

func (r *PaymentRepository) LatestTransaction(ctx context.Context, paymentID int64) (*paymentDatamodel.Transaction, error) {
	var t paymentDatamodel.Transaction
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at DESC, id DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PaymentRepository) CreateTransaction(ctx context.Context, t *paymentDatamodel.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *PaymentRepository) UpdateTransaction(ctx context.Context, t *paymentDatamodel.Transaction) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *PaymentRepository) GetRefundByPaymentID(ctx context.Context, paymentID int64) (*paymentDatamodel.RefundTransaction, error) {
	var refund paymentDatamodel.RefundTransaction
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

func (r *PaymentRepository) CreateRefund(ctx context.Context, refund *paymentDatamodel.RefundTransaction) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, refund *paymentDatamodel.RefundTransaction) error {
	return r.db.WithContext(ctx).Save(refund).Error
}

func (r *PaymentRepository) AppendLog(ctx context.Context, log *paymentDatamodel.PaymentLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *PaymentRepository) ListLogs(ctx context.Context, paymentID int64) ([]*paymentDatamodel.PaymentLog, error) {
	var logs []*paymentDatamodel.PaymentLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
