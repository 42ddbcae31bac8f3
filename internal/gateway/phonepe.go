package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	phonePeSandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	phonePeProductionBaseURL = "https://api.phonepe.com/apis/pg"
	phonePeProductionAuthURL = "https://api.phonepe.com/apis/identity-manager"

	phonePeOrderExpirySeconds = 1200
)

type PhonePeSettings struct {
	ClientID        string
	ClientSecret    string
	ClientVersion   int
	MerchantID      string
	WebhookUsername string
	WebhookPassword string
	BaseURL         string
	AuthURL         string
}

type PhonePeClient struct {
	settings PhonePeSettings
	http     HTTPDoer
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPhonePeClient(settings PhonePeSettings, sandbox bool, httpClient HTTPDoer, logger *slog.Logger) (*PhonePeClient, error) {
	switch {
	case settings.ClientID == "":
		return nil, missingCredentials(NamePhonePe, "client_id")
	case settings.ClientSecret == "":
		return nil, missingCredentials(NamePhonePe, "client_secret")
	case settings.WebhookUsername == "" || settings.WebhookPassword == "":
		return nil, missingCredentials(NamePhonePe, "webhook_username/webhook_password")
	}

	if settings.ClientVersion <= 0 {
		settings.ClientVersion = 1
	}
	if settings.BaseURL == "" {
		settings.BaseURL = phonePeProductionBaseURL
		if sandbox {
			settings.BaseURL = phonePeSandboxBaseURL
		}
	}
	if settings.AuthURL == "" {
		settings.AuthURL = phonePeProductionAuthURL
		if sandbox {
			settings.AuthURL = phonePeSandboxBaseURL
		}
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	settings.AuthURL = strings.TrimRight(settings.AuthURL, "/")

	return &PhonePeClient{
		settings: settings,
		http:     httpClient,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (c *PhonePeClient) Name() Name {
	return NamePhonePe
}

func (c *PhonePeClient) SignatureHeader() string {
	return "Authorization"
}

// accessToken returns the cached OAuth token, fetching a new one a minute before expiry.
func (c *PhonePeClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.settings.ClientID)
	form.Set("client_secret", c.settings.ClientSecret)
	form.Set("client_version", strconv.Itoa(c.settings.ClientVersion))
	form.Set("grant_type", "client_credentials")

	resp, err := doForm(ctx, c.http, http.MethodPost, c.settings.AuthURL+"/v1/oauth/token", form.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("phonepe token request: %w", err)
	}

	token := str(resp, "access_token")
	if token == "" {
		return "", fmt.Errorf("phonepe token response missing access_token")
	}
	expiry := c.now().Add(time.Hour)
	if expiresAt, ok := num(resp, "expires_at"); ok && expiresAt > 0 {
		expiry = time.Unix(expiresAt, 0)
	}

	c.token = token
	c.tokenExpiry = expiry
	return token, nil
}

func (c *PhonePeClient) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "O-Bearer " + token}, nil
}

func (c *PhonePeClient) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"merchantOrderId": req.MerchantTransactionID,
		"amount":          minorUnits(req.Amount),
		"expireAfter":     phonePeOrderExpirySeconds,
		"metaInfo": map[string]string{
			"udf1": strconv.FormatInt(req.PaymentID, 10),
		},
		"paymentFlow": map[string]interface{}{
			"type":    "PG_CHECKOUT",
			"message": req.Description,
			"merchantUrls": map[string]string{
				"redirectUrl": req.ReturnURL,
			},
		},
	}

	resp, err := doJSON(ctx, c.http, http.MethodPost, c.settings.BaseURL+"/checkout/v2/pay", payload, headers)
	if err != nil {
		return nil, fmt.Errorf("phonepe initiate payment: %w", err)
	}

	redirectURL := str(resp, "redirectUrl")
	if redirectURL == "" {
		return nil, fmt.Errorf("phonepe initiate payment: no redirect URL received")
	}

	c.logger.Info("phonepe payment initiated",
		"merchant_transaction_id", req.MerchantTransactionID,
		"phonepe_order_id", str(resp, "orderId"))

	return &InitiateResult{
		ProviderOrderID: str(resp, "orderId"),
		RedirectURL:     redirectURL,
		ProviderStatus:  str(resp, "state"),
		Raw:             resp,
	}, nil
}

func (c *PhonePeClient) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/checkout/v2/order/%s/status", c.settings.BaseURL, url.PathEscape(req.MerchantTransactionID))
	resp, err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("phonepe order status: %w", err)
	}

	state := str(resp, "state")
	result := &StatusResult{
		ProviderStatus: state,
		Status:         NormalizeStatus(NamePhonePe, state),
		Raw:            resp,
	}
	if detail := lastPaymentDetail(resp); detail != nil {
		result.ProviderTransactionID = str(detail, "transactionId")
		result.PaymentMode = str(detail, "paymentMode")
	}
	return result, nil
}

func lastPaymentDetail(m map[string]interface{}) map[string]interface{} {
	details, ok := m["paymentDetails"].([]interface{})
	if !ok || len(details) == 0 {
		return nil
	}
	detail, _ := details[len(details)-1].(map[string]interface{})
	return detail
}

func firstPaymentDetail(m map[string]interface{}) map[string]interface{} {
	details, ok := m["paymentDetails"].([]interface{})
	if !ok || len(details) == 0 {
		return nil
	}
	detail, _ := details[0].(map[string]interface{})
	return detail
}

func (c *PhonePeClient) InitiateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"merchantRefundId":        req.RefundID,
		"originalMerchantOrderId": req.MerchantTransactionID,
		"amount":                  minorUnits(req.Amount),
	}

	resp, err := doJSON(ctx, c.http, http.MethodPost, c.settings.BaseURL+"/payments/v2/refund", payload, headers)
	if err != nil {
		return nil, fmt.Errorf("phonepe refund: %w", err)
	}

	state := str(resp, "state")
	return &RefundResult{
		ProviderRefundID: str(resp, "refundId"),
		ProviderStatus:   state,
		Status:           NormalizeRefundStatus(NamePhonePe, state),
		Raw:              resp,
	}, nil
}

// verifyAuthorization compares the header against sha256(username:password).
func (c *PhonePeClient) verifyAuthorization(header string) bool {
	sum := sha256.Sum256([]byte(c.settings.WebhookUsername + ":" + c.settings.WebhookPassword))
	expected := hex.EncodeToString(sum[:])
	got := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "SHA256 ")))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func (c *PhonePeClient) ProcessWebhook(ctx context.Context, req WebhookRequest) (*Callback, error) {
	header := req.Headers.Get(c.SignatureHeader())
	if header == "" || len(req.Body) == 0 {
		return nil, ErrMissingSignature
	}
	if !c.verifyAuthorization(header) {
		return nil, ErrInvalidSignature
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, fmt.Errorf("phonepe webhook: invalid JSON: %w", err)
	}

	providerType := str(envelope, "type")
	if providerType == "" {
		providerType = strings.ToUpper(strings.ReplaceAll(str(envelope, "event"), ".", "_"))
	}
	payload := obj(envelope, "payload")

	callback := &Callback{
		ProviderType: providerType,
		State:        str(payload, "state"),
	}

	switch providerType {
	case "CHECKOUT_ORDER_COMPLETED", "CHECKOUT_ORDER_FAILED":
		c.fillPaymentCallback(callback, payload)
	case "PG_REFUND_ACCEPTED", "PG_REFUND_COMPLETED", "PG_REFUND_FAILED":
		callback.Type = map[string]CallbackType{
			"PG_REFUND_ACCEPTED":  CallbackRefundAccepted,
			"PG_REFUND_COMPLETED": CallbackRefundCompleted,
			"PG_REFUND_FAILED":    CallbackRefundFailed,
		}[providerType]
		callback.MerchantTransactionID = str(payload, "originalMerchantOrderId")
		callback.MerchantRefundID = str(payload, "merchantRefundId")
		callback.ProviderRefundID = str(payload, "refundId")
		callback.Status = NormalizeRefundStatus(NamePhonePe, callback.State)
		callback.Data = map[string]interface{}{
			"callback_type":      providerType,
			"state":              callback.State,
			"merchant_refund_id": callback.MerchantRefundID,
			"refund_id":          callback.ProviderRefundID,
			"amount":             payload["amount"],
		}
	default:
		callback.Type = CallbackUnknown
	}

	return callback, nil
}

func (c *PhonePeClient) fillPaymentCallback(callback *Callback, payload map[string]interface{}) {
	state := strings.ToUpper(callback.State)
	switch {
	case callback.ProviderType == "CHECKOUT_ORDER_COMPLETED" && state == "COMPLETED":
		callback.Type = CallbackPaymentCompleted
		callback.Status = NormalizeStatus(NamePhonePe, state)
	case callback.ProviderType == "CHECKOUT_ORDER_FAILED" || state == "FAILED":
		callback.Type = CallbackPaymentFailed
		callback.Status = NormalizeStatus(NamePhonePe, "FAILED")
	default:
		callback.Type = CallbackPaymentPending
		callback.Status = NormalizeStatus(NamePhonePe, "PENDING")
	}

	callback.MerchantTransactionID = str(payload, "originalMerchantOrderId")
	if callback.MerchantTransactionID == "" {
		callback.MerchantTransactionID = str(payload, "merchantOrderId")
	}
	callback.ProviderOrderID = str(payload, "orderId")

	data := map[string]interface{}{
		"callback_type":     callback.ProviderType,
		"state":             callback.State,
		"phonepe_order_id":  callback.ProviderOrderID,
		"amount":            payload["amount"],
		"merchant_id":       str(payload, "merchantId"),
		"webhook_timestamp": c.now().Unix(),
	}
	if detail := firstPaymentDetail(payload); detail != nil {
		callback.ProviderTransactionID = str(detail, "transactionId")
		callback.PaymentMode = str(detail, "paymentMode")
		data["transaction_id"] = callback.ProviderTransactionID
		data["payment_mode"] = callback.PaymentMode
		data["payment_timestamp"] = detail["timestamp"]
	}
	if callback.Type == CallbackPaymentFailed {
		data["error_code"] = str(payload, "errorCode")
		data["detailed_error_code"] = str(payload, "detailedErrorCode")
	}
	if expireAt, ok := payload["expireAt"]; ok {
		data["expire_at"] = expireAt
	}
	callback.Data = data
}
