package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/shopspring/decimal"
)

// RepositoryAPI returns (nil, nil) for rows that do not exist.
type RepositoryAPI interface {
	ListActive(ctx context.Context) ([]*gatewayDatamodel.PaymentGateway, error)
	GetByID(ctx context.Context, id int64) (*gatewayDatamodel.PaymentGateway, error)
	GetByName(ctx context.Context, name string) (*gatewayDatamodel.PaymentGateway, error)
	CountDefaultsExcluding(ctx context.Context, id int64) (int64, error)
	Create(ctx context.Context, gw *gatewayDatamodel.PaymentGateway) error
	Update(ctx context.Context, gw *gatewayDatamodel.PaymentGateway) error
}

// ClientFactory builds a provider client for a gateway row.
type ClientFactory func(gw *gatewayDatamodel.PaymentGateway) (Client, error)

type Manager struct {
	repo    RepositoryAPI
	factory ClientFactory
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[int64]Client
}

func NewManager(repo RepositoryAPI, factory ClientFactory, logger *slog.Logger) *Manager {
	return &Manager{
		repo:    repo,
		factory: factory,
		logger:  logger,
		clients: make(map[int64]Client),
	}
}

// DefaultFactory wires NewClient with process-wide settings.
func DefaultFactory(settings Settings, httpClient HTTPDoer, audit AuditSink, logger *slog.Logger) ClientFactory {
	return func(gw *gatewayDatamodel.PaymentGateway) (Client, error) {
		return NewClient(gw, settings, httpClient, audit, logger)
	}
}

// ActiveGateways are ordered by priority, lowest first.
func (m *Manager) ActiveGateways(ctx context.Context) ([]*gatewayDatamodel.PaymentGateway, error) {
	gateways, err := m.repo.ListActive(ctx)
	if err != nil {
		m.logger.Error("failed to list active gateways", "error", err)
		return nil, internal.NewPersistenceError("failed to list payment gateways", err)
	}
	return gateways, nil
}

// DefaultGateway falls back to the highest-priority active gateway.
func (m *Manager) DefaultGateway(ctx context.Context) (*gatewayDatamodel.PaymentGateway, error) {
	gateways, err := m.ActiveGateways(ctx)
	if err != nil {
		return nil, err
	}
	if len(gateways) == 0 {
		return nil, internal.ErrGatewayNotFound
	}
	for _, gw := range gateways {
		if gw.IsDefault {
			return gw, nil
		}
	}
	return gateways[0], nil
}

func (m *Manager) GatewayByName(ctx context.Context, name string) (*gatewayDatamodel.PaymentGateway, error) {
	parsed, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	gw, err := m.repo.GetByName(ctx, parsed.String())
	if err != nil {
		return nil, internal.NewPersistenceError("failed to load payment gateway", err)
	}
	if gw == nil || !gw.IsActive {
		return nil, internal.ErrGatewayNotFound
	}
	return gw, nil
}

func (m *Manager) GatewayByID(ctx context.Context, id int64) (*gatewayDatamodel.PaymentGateway, error) {
	gw, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewPersistenceError("failed to load payment gateway", err)
	}
	if gw == nil {
		return nil, internal.ErrGatewayNotFound
	}
	return gw, nil
}

// SuitableGateway picks the named gateway, or the default, and checks its amount bounds.
func (m *Manager) SuitableGateway(ctx context.Context, amount decimal.Decimal, name string) (*gatewayDatamodel.PaymentGateway, error) {
	var (
		gw  *gatewayDatamodel.PaymentGateway
		err error
	)
	if name != "" {
		gw, err = m.GatewayByName(ctx, name)
	} else {
		gw, err = m.DefaultGateway(ctx)
	}
	if err != nil {
		return nil, err
	}

	if !IsAmountValid(gw, amount) {
		message := fmt.Sprintf("amount %s is outside the limits of %s (%s)", amount.StringFixed(2), gw.DisplayName, amountRange(gw))
		return nil, internal.NewValidationFieldError("amount", message, internal.ErrCodeInvalidAmount)
	}
	return gw, nil
}

// SaveGateway rejects a second default gateway; the database does not enforce it.
func (m *Manager) SaveGateway(ctx context.Context, gw *gatewayDatamodel.PaymentGateway) error {
	if _, err := ParseName(gw.Name); err != nil {
		return err
	}
	if gw.MaxAmount.Valid && gw.MaxAmount.Decimal.LessThan(gw.MinAmount) {
		return internal.NewValidationFieldError("max_amount", "max_amount must not be below min_amount", internal.ErrCodeInvalidAmount)
	}

	if gw.IsDefault {
		count, err := m.repo.CountDefaultsExcluding(ctx, gw.ID)
		if err != nil {
			return internal.NewPersistenceError("failed to check default gateway", err)
		}
		if count > 0 {
			return internal.ErrDuplicateDefaultGateway
		}
	}

	var err error
	if gw.ID == 0 {
		err = m.repo.Create(ctx, gw)
	} else {
		err = m.repo.Update(ctx, gw)
	}
	if err != nil {
		return internal.NewPersistenceError("failed to save payment gateway", err)
	}

	m.mu.Lock()
	delete(m.clients, gw.ID)
	m.mu.Unlock()
	return nil
}

// ClientFor returns a cached provider client for the gateway row.
func (m *Manager) ClientFor(gw *gatewayDatamodel.PaymentGateway) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[gw.ID]; ok {
		return client, nil
	}
	client, err := m.factory(gw)
	if err != nil {
		m.logger.Error("failed to build gateway client", "gateway", gw.Name, "error", err)
		return nil, err
	}
	m.clients[gw.ID] = client
	return client, nil
}

// CalculateFee is amount * fee_percentage / 100 + fixed_fee, rounded to paise.
func CalculateFee(gw *gatewayDatamodel.PaymentGateway, amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(gw.FeePercentage).Div(decimal.NewFromInt(100)).Add(gw.FixedFee)
	return fee.Round(2)
}

func IsAmountValid(gw *gatewayDatamodel.PaymentGateway, amount decimal.Decimal) bool {
	if amount.LessThan(gw.MinAmount) {
		return false
	}
	if gw.MaxAmount.Valid && amount.GreaterThan(gw.MaxAmount.Decimal) {
		return false
	}
	return true
}

func amountRange(gw *gatewayDatamodel.PaymentGateway) string {
	if gw.MaxAmount.Valid {
		return fmt.Sprintf("%s - %s", gw.MinAmount.StringFixed(2), gw.MaxAmount.Decimal.StringFixed(2))
	}
	return fmt.Sprintf("min %s", gw.MinAmount.StringFixed(2))
}
