package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OpenAPIValidator", func() {
	var (
		handler http.Handler
		reached bool
	)

	BeforeEach(func() {
		doc, err := middleware.LoadOpenAPI(context.Background(), "../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())

		validate, err := middleware.OpenAPIValidator(doc, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
		Expect(err).NotTo(HaveOccurred())

		reached = false
		handler = validate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusNoContent)
		}))
	})

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	It("passes a documented, valid request", func() {
		rec := post("/api/v1/payments/initiate", `{"amount":"99.50","order_id":12,"metadata":{"cart":"c-1"}}`)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
	})

	It("rejects an amount with three decimals", func() {
		rec := post("/api/v1/payments/initiate", `{"amount":"1.005"}`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(reached).To(BeFalse())
	})

	It("rejects a non integer order id", func() {
		rec := post("/api/v1/payments/initiate", `{"amount":"10","order_id":"abc"}`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("invalid request body"))
	})

	It("lets undocumented routes through", func() {
		rec := post("/internal/debug", `not json`)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
	})

	It("fails to load a missing document", func() {
		_, err := middleware.LoadOpenAPI(context.Background(), "does-not-exist.yml")

		Expect(err).To(HaveOccurred())
	})
})
