package gateway

import (
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
)

type GatewayResponse struct {
	Name          string       `json:"name"`
	DisplayName   string       `json:"display_name"`
	IsDefault     bool         `json:"is_default"`
	MinAmount     string       `json:"min_amount"`
	MaxAmount     *string      `json:"max_amount,omitempty"`
	FeePercentage string       `json:"fee_percentage"`
	FixedFee      string       `json:"fixed_fee"`
	Supports      Capabilities `json:"supports"`
}

type Capabilities struct {
	Refund     bool `json:"refund"`
	UPI        bool `json:"upi"`
	Cards      bool `json:"cards"`
	Netbanking bool `json:"netbanking"`
	Wallets    bool `json:"wallets"`
}

type GatewaysResponse struct {
	Gateways []GatewayResponse `json:"gateways"`
}

func ToResponse(gw *gatewayDatamodel.PaymentGateway) GatewayResponse {
	resp := GatewayResponse{
		Name:          gw.Name,
		DisplayName:   gw.DisplayName,
		IsDefault:     gw.IsDefault,
		MinAmount:     gw.MinAmount.StringFixed(2),
		FeePercentage: gw.FeePercentage.StringFixed(2),
		FixedFee:      gw.FixedFee.StringFixed(2),
		Supports: Capabilities{
			Refund:     gw.SupportsRefund,
			UPI:        gw.SupportsUPI,
			Cards:      gw.SupportsCards,
			Netbanking: gw.SupportsNetbanking,
			Wallets:    gw.SupportsWallets,
		},
	}
	if gw.MaxAmount.Valid {
		max := gw.MaxAmount.Decimal.StringFixed(2)
		resp.MaxAmount = &max
	}
	return resp
}
