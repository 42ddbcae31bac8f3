package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("NewClient", func() {
	var (
		server   *httptest.Server
		settings gateway.Settings
		sink     *fakeAuditSink
	)

	BeforeEach(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "order_1", "status": "created"})
		})
		mux.HandleFunc("/v1/orders/order_broken", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		server = httptest.NewServer(mux)

		sink = &fakeAuditSink{}
		settings = gateway.Settings{
			Razorpay: gateway.RazorpaySettings{
				KeyID:         "rzp_key",
				KeySecret:     "rzp_secret",
				WebhookSecret: "whsec",
				BaseURL:       server.URL,
			},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	It("rejects providers without an integration", func() {
		_, err := gateway.NewClient(&gatewayDatamodel.PaymentGateway{Name: "paytm"}, settings, nil, sink, testLogger())

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeConfiguration))
		Expect(appErr.Code).To(Equal(internal.ErrCodeUnsupportedGateway))
	})

	It("rejects unknown provider names", func() {
		_, err := gateway.NewClient(&gatewayDatamodel.PaymentGateway{Name: "paypal"}, settings, nil, sink, testLogger())
		Expect(internal.IsErrorType(err, internal.ErrorTypeConfiguration)).To(BeTrue())
	})

	It("reports missing credentials as a configuration error", func() {
		_, err := gateway.NewClient(&gatewayDatamodel.PaymentGateway{Name: "stripe"}, settings, nil, sink, testLogger())

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeMissingCredentials))
	})

	Context("audit logging", func() {
		var client gateway.Client

		BeforeEach(func() {
			var err error
			client, err = gateway.NewClient(&gatewayDatamodel.PaymentGateway{ID: 3, Name: "razorpay"}, settings, server.Client(), sink, testLogger())
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes one success row per call", func() {
			_, err := client.InitiatePayment(context.Background(), gateway.InitiateRequest{
				PaymentID:             11,
				MerchantTransactionID: "5f0c8a2e-merchant-1234",
				Amount:                decimal.NewFromInt(100),
			})
			Expect(err).NotTo(HaveOccurred())

			entries := sink.entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Action).To(Equal(gateway.ActionInitiatePayment))
			Expect(entries[0].Status).To(Equal(gatewayDatamodel.LogStatusSuccess))
			Expect(*entries[0].GatewayID).To(Equal(int64(3)))
			Expect(*entries[0].PaymentID).To(Equal(int64(11)))
		})

		It("masks the merchant reference on failure and never stores credentials", func() {
			_, err := client.CheckStatus(context.Background(), gateway.StatusRequest{
				MerchantTransactionID: "5f0c8a2e-merchant-1234",
				ProviderOrderID:       "order_broken",
			})
			Expect(err).To(HaveOccurred())

			entries := sink.entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Status).To(Equal(gatewayDatamodel.LogStatusFailed))
			Expect(entries[0].ErrorMessage).NotTo(BeEmpty())
			Expect(entries[0].RequestData).To(HaveKeyWithValue("reference", "****1234"))

			raw, _ := json.Marshal(entries[0])
			Expect(string(raw)).NotTo(ContainSubstring("rzp_secret"))
			Expect(string(raw)).NotTo(ContainSubstring("5f0c8a2e-merchant-1234"))
		})

		It("does not fail the call when the audit store is down", func() {
			sink.err = errSinkDown

			result, err := client.InitiatePayment(context.Background(), gateway.InitiateRequest{
				MerchantTransactionID: "MT-1",
				Amount:                decimal.NewFromInt(100),
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.ProviderOrderID).To(Equal("order_1"))
		})
	})
})

var _ = Describe("MaskReference", func() {
	It("keeps only the last four characters", func() {
		Expect(gateway.MaskReference("abcdef123456")).To(Equal("****3456"))
		Expect(gateway.MaskReference("abc")).To(Equal("****"))
	})
})
