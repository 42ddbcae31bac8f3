package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
)

// Settings holds provider credentials loaded once at startup.
type Settings struct {
	RequestTimeout time.Duration
	PhonePe        PhonePeSettings
	Razorpay       RazorpaySettings
	Stripe         StripeSettings
}

func SettingsFromConfig(cfg internal.PaymentConfig) Settings {
	return Settings{
		RequestTimeout: cfg.RequestTimeout,
		PhonePe: PhonePeSettings{
			ClientID:        cfg.PhonePe.ClientID,
			ClientSecret:    cfg.PhonePe.ClientSecret,
			ClientVersion:   cfg.PhonePe.ClientVersion,
			MerchantID:      cfg.PhonePe.MerchantID,
			WebhookUsername: cfg.PhonePe.WebhookUsername,
			WebhookPassword: cfg.PhonePe.WebhookPassword,
			BaseURL:         cfg.PhonePe.BaseURL,
			AuthURL:         cfg.PhonePe.AuthURL,
		},
		Razorpay: RazorpaySettings{
			KeyID:         cfg.Razorpay.KeyID,
			KeySecret:     cfg.Razorpay.KeySecret,
			WebhookSecret: cfg.Razorpay.WebhookSecret,
			BaseURL:       cfg.Razorpay.BaseURL,
		},
		Stripe: StripeSettings{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
			Currency:      cfg.Stripe.Currency,
		},
	}
}

// NewClient resolves the provider integration for a gateway row. Every
// returned client writes a PaymentGatewayLog row per call when audit is set.
func NewClient(gw *gatewayDatamodel.PaymentGateway, settings Settings, httpClient HTTPDoer, audit AuditSink, logger *slog.Logger) (Client, error) {
	if gw == nil {
		return nil, internal.ErrGatewayNotFound
	}

	name, err := ParseName(gw.Name)
	if err != nil {
		return nil, internal.NewConfigurationError(fmt.Sprintf("unsupported payment gateway: %s", gw.Name), internal.ErrCodeUnsupportedGateway)
	}

	if httpClient == nil {
		httpClient = newHTTPClient(settings.RequestTimeout)
	}
	sandbox := gw.Environment != gatewayDatamodel.EnvironmentProduction

	var client Client
	switch name {
	case NamePhonePe:
		client, err = NewPhonePeClient(settings.PhonePe, sandbox, httpClient, logger)
	case NameRazorpay:
		client, err = NewRazorpayClient(settings.Razorpay, httpClient, logger)
	case NameStripe:
		client, err = NewStripeClient(settings.Stripe, httpClient, logger)
	case NamePaytm, NameCashfree:
		return nil, internal.NewConfigurationError(fmt.Sprintf("payment gateway %s is not implemented", name), internal.ErrCodeUnsupportedGateway)
	default:
		return nil, internal.NewConfigurationError(fmt.Sprintf("unsupported payment gateway: %s", name), internal.ErrCodeUnsupportedGateway)
	}
	if err != nil {
		return nil, err
	}

	var gatewayID *int64
	if gw.ID != 0 {
		id := gw.ID
		gatewayID = &id
	}
	return withAudit(client, gatewayID, audit, logger), nil
}

func missingCredentials(name Name, field string) error {
	return internal.NewConfigurationError(fmt.Sprintf("%s credentials missing: %s", name, field), internal.ErrCodeMissingCredentials)
}

var _ HTTPDoer = (*http.Client)(nil)
