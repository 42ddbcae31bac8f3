package gateway

import (
	"context"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/shopspring/decimal"
)

// DefaultGateways are the rows installed by the seed command. PhonePe is the default.
func DefaultGateways() []*gatewayDatamodel.PaymentGateway {
	return []*gatewayDatamodel.PaymentGateway{
		{
			Name:               string(NamePhonePe),
			DisplayName:        "PhonePe",
			Environment:        gatewayDatamodel.EnvironmentSandbox,
			IsActive:           true,
			IsDefault:          true,
			Priority:           1,
			SupportsRefund:     true,
			SupportsUPI:        true,
			SupportsCards:      true,
			SupportsNetbanking: true,
			SupportsWallets:    true,
			MinAmount:          decimal.NewFromInt(1),
			MaxAmount:          decimal.NewNullDecimal(decimal.NewFromInt(100000)),
			FeePercentage:      decimal.RequireFromString("1.50"),
			FixedFee:           decimal.Zero,
		},
		{
			Name:               string(NameRazorpay),
			DisplayName:        "Razorpay",
			Environment:        gatewayDatamodel.EnvironmentSandbox,
			IsActive:           true,
			Priority:           2,
			SupportsRefund:     true,
			SupportsUPI:        true,
			SupportsCards:      true,
			SupportsNetbanking: true,
			SupportsWallets:    true,
			MinAmount:          decimal.NewFromInt(1),
			MaxAmount:          decimal.NewNullDecimal(decimal.NewFromInt(500000)),
			FeePercentage:      decimal.RequireFromString("2.00"),
			FixedFee:           decimal.Zero,
		},
		{
			Name:            string(NameStripe),
			DisplayName:     "Stripe",
			Environment:     gatewayDatamodel.EnvironmentSandbox,
			IsActive:        true,
			Priority:        3,
			SupportsRefund:  true,
			SupportsCards:   true,
			SupportsWallets: true,
			MinAmount:       decimal.NewFromInt(50),
			FeePercentage:   decimal.RequireFromString("2.90"),
			FixedFee:        decimal.RequireFromString("3.00"),
		},
	}
}

// Seed creates missing gateways by name and refreshes existing rows in place.
func (m *Manager) Seed(ctx context.Context, gateways []*gatewayDatamodel.PaymentGateway) (created, updated int, err error) {
	for _, gw := range gateways {
		existing, err := m.repo.GetByName(ctx, gw.Name)
		if err != nil {
			return created, updated, internal.NewPersistenceError("failed to look up payment gateway", err)
		}
		if existing != nil {
			gw.ID = existing.ID
			gw.CreatedAt = existing.CreatedAt
			gw.Credentials = existing.Credentials
			gw.Configuration = existing.Configuration
		}

		if err := m.SaveGateway(ctx, gw); err != nil {
			m.logger.Error("Seed: failed to save gateway", "gateway", gw.Name, "error", err)
			return created, updated, err
		}
		if existing != nil {
			updated++
		} else {
			created++
		}
	}
	return created, updated, nil
}
