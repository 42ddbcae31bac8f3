package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoggingMiddleware", func() {
	var (
		out      *bytes.Buffer
		received []byte
		handler  http.Handler
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

		received = nil
		handler = middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success":true,"access_token":"tok_live"}`))
		}))
	})

	It("hands the handler the exact request body", func() {
		body := `{"event":"payment.captured","payload":{"amount":50000}}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(body))

		handler.ServeHTTP(httptest.NewRecorder(), req)

		Expect(string(received)).To(Equal(body))
	})

	It("masks credentials in headers and bodies", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay",
			strings.NewReader(`{"card":{"number":"4111111111111111"},"amount":100}`))
		req.Header.Set("Authorization", "Bearer secret-token")
		req.Header.Set("X-Razorpay-Signature", "abcdef")

		handler.ServeHTTP(httptest.NewRecorder(), req)

		logged := out.String()
		Expect(logged).NotTo(ContainSubstring("secret-token"))
		Expect(logged).NotTo(ContainSubstring("abcdef"))
		Expect(logged).NotTo(ContainSubstring("4111111111111111"))
		Expect(logged).NotTo(ContainSubstring("tok_live"))
		Expect(logged).To(ContainSubstring(`\"amount\":100`))
	})

	It("logs client errors as warnings", func() {
		warn := middleware.LoggingMiddleware(slog.New(slog.NewJSONHandler(out, nil)))(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))

		warn.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/payments/stats", nil))

		Expect(out.String()).To(ContainSubstring(`"level":"WARN"`))
		Expect(out.String()).To(ContainSubstring(`"status_code":401`))
	})
})
