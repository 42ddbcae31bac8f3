package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("RazorpayClient", func() {
	const webhookSecret = "whsec-razorpay"

	var (
		server *httptest.Server
		client *gateway.RazorpayClient
	)

	BeforeEach(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			Expect(ok).To(BeTrue())
			Expect(user).To(Equal("rzp_key"))
			Expect(pass).To(Equal("rzp_secret"))
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "order_1", "status": "created"})
		})
		mux.HandleFunc("/v1/orders/order_1", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "order_1", "status": "attempted"})
		})
		mux.HandleFunc("/v1/orders/order_1/payments", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{
					{"id": "pay_failed", "status": "failed", "method": "card"},
					{"id": "pay_ok", "status": "captured", "method": "upi"},
				},
			})
		})
		mux.HandleFunc("/v1/payments/pay_ok/refund", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "rfnd_1", "status": "processed"})
		})
		server = httptest.NewServer(mux)

		var err error
		client, err = gateway.NewRazorpayClient(gateway.RazorpaySettings{
			KeyID:         "rzp_key",
			KeySecret:     "rzp_secret",
			WebhookSecret: webhookSecret,
			BaseURL:       server.URL,
		}, server.Client(), testLogger())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("creates an order and returns checkout data", func() {
		result, err := client.InitiatePayment(context.Background(), gateway.InitiateRequest{
			MerchantTransactionID: "MT-9",
			Amount:                decimal.RequireFromString("99.99"),
			Customer:              gateway.Customer{Name: "Asha", Email: "asha@example.com", Phone: "9999999999"},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.ProviderOrderID).To(Equal("order_1"))
		Expect(result.ProviderData).To(HaveKeyWithValue("key", "rzp_key"))
		Expect(result.ProviderData).To(HaveKeyWithValue("amount", int64(9999)))
		Expect(result.ProviderData).To(HaveKey("prefill"))
	})

	It("prefers the captured attempt when checking status", func() {
		result, err := client.CheckStatus(context.Background(), gateway.StatusRequest{ProviderOrderID: "order_1"})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.ProviderStatus).To(Equal("attempted"))
		Expect(result.Status).To(Equal(paymentDatamodel.StatusCompleted))
		Expect(result.ProviderTransactionID).To(Equal("pay_ok"))
		Expect(result.PaymentMode).To(Equal("upi"))
	})

	It("refunds against the provider payment id", func() {
		result, err := client.InitiateRefund(context.Background(), gateway.RefundRequest{
			ProviderTransactionID: "pay_ok",
			RefundID:              "REF-1",
			Amount:                decimal.NewFromInt(10),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.ProviderRefundID).To(Equal("rfnd_1"))
		Expect(result.Status).To(Equal(paymentDatamodel.RefundStatusCompleted))
	})

	Describe("ProcessWebhook", func() {
		var body []byte

		BeforeEach(func() {
			body, _ = json.Marshal(map[string]interface{}{
				"event": "payment.captured",
				"payload": map[string]interface{}{
					"payment": map[string]interface{}{
						"entity": map[string]interface{}{
							"id":       "pay_ok",
							"order_id": "order_1",
							"status":   "captured",
							"method":   "upi",
							"amount":   9999,
							"notes":    map[string]interface{}{"merchant_transaction_id": "MT-9"},
						},
					},
				},
			})
		})

		It("accepts a valid HMAC signature", func() {
			headers := http.Header{}
			headers.Set("X-Razorpay-Signature", hmacHex(webhookSecret, string(body)))

			callback, err := client.ProcessWebhook(context.Background(), gateway.WebhookRequest{Headers: headers, Body: body})

			Expect(err).NotTo(HaveOccurred())
			Expect(callback.Type).To(Equal(gateway.CallbackPaymentCompleted))
			Expect(callback.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(callback.MerchantTransactionID).To(Equal("MT-9"))
			Expect(callback.ProviderOrderID).To(Equal("order_1"))
		})

		It("rejects a tampered body", func() {
			headers := http.Header{}
			headers.Set("X-Razorpay-Signature", hmacHex(webhookSecret, string(body)))
			tampered := append([]byte(nil), body...)
			tampered[len(tampered)-2] = ' '

			_, err := client.ProcessWebhook(context.Background(), gateway.WebhookRequest{Headers: headers, Body: tampered})
			Expect(err).To(MatchError(gateway.ErrInvalidSignature))
		})

		It("maps payment.failed to a failed callback", func() {
			body, _ = json.Marshal(map[string]interface{}{
				"event": "payment.failed",
				"payload": map[string]interface{}{
					"payment": map[string]interface{}{
						"entity": map[string]interface{}{
							"id":         "pay_failed",
							"status":     "failed",
							"error_code": "BAD_REQUEST_ERROR",
							"notes":      map[string]interface{}{"merchant_transaction_id": "MT-9"},
						},
					},
				},
			})
			headers := http.Header{}
			headers.Set("X-Razorpay-Signature", hmacHex(webhookSecret, string(body)))

			callback, err := client.ProcessWebhook(context.Background(), gateway.WebhookRequest{Headers: headers, Body: body})

			Expect(err).NotTo(HaveOccurred())
			Expect(callback.Type).To(Equal(gateway.CallbackPaymentFailed))
			Expect(callback.Status).To(Equal(paymentDatamodel.StatusFailed))
			Expect(callback.Data).To(HaveKeyWithValue("error_code", "BAD_REQUEST_ERROR"))
		})
	})
})
