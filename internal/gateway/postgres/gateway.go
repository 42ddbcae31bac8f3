package postgres

import (
	"context"
	"errors"

	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"gorm.io/gorm"
)

type GatewayRepository struct {
	db *gorm.DB
}

func NewGatewayRepository(db *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

var (
	_ gateway.RepositoryAPI = (*GatewayRepository)(nil)
	_ gateway.AuditSink     = (*GatewayRepository)(nil)
)

func (r *GatewayRepository) ListActive(ctx context.Context) ([]*gatewayDatamodel.PaymentGateway, error) {
	var gateways []*gatewayDatamodel.PaymentGateway
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC, id ASC").
		Find(&gateways).Error
	return gateways, err
}

func (r *GatewayRepository) GetByID(ctx context.Context, id int64) (*gatewayDatamodel.PaymentGateway, error) {
	var gw gatewayDatamodel.PaymentGateway
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&gw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gw, nil
}

func (r *GatewayRepository) GetByName(ctx context.Context, name string) (*gatewayDatamodel.PaymentGateway, error) {
	var gw gatewayDatamodel.PaymentGateway
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&gw).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gw, nil
}

func (r *GatewayRepository) CountDefaultsExcluding(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&gatewayDatamodel.PaymentGateway{}).
		Where("is_default = ? AND id <> ?", true, id).
		Count(&count).Error
	return count, err
}

func (r *GatewayRepository) Create(ctx context.Context, gw *gatewayDatamodel.PaymentGateway) error {
	return r.db.WithContext(ctx).Create(gw).Error
}

func (r *GatewayRepository) Update(ctx context.Context, gw *gatewayDatamodel.PaymentGateway) error {
	return r.db.WithContext(ctx).Save(gw).Error
}

// CreateGatewayLog is append-only; there is no update or delete counterpart.
func (r *GatewayRepository) CreateGatewayLog(ctx context.Context, log *gatewayDatamodel.PaymentGatewayLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}
