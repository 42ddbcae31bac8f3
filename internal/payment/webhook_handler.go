package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/go-chi/chi"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
	}
}

// HandleWebhook handles POST /api/v1/webhooks/{gateway}
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Logger.Warn("webhook body too large", "gateway", gatewayName, "limit", tooLarge.Limit)
		h.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err != nil {
		h.Logger.Error("failed to read webhook body", "gateway", gatewayName, "error", err)
		h.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) == 0 {
		h.Logger.Warn("webhook with empty body", "gateway", gatewayName)
		h.WriteErrorResponse(w, http.StatusBadRequest, "Missing signature or body")
		return
	}

	resp, err := h.paymentService.HandleWebhook(r.Context(), gatewayName, r.Header, body)
	switch {
	case errors.Is(err, gateway.ErrMissingSignature):
		h.Logger.Warn("webhook without signature", "gateway", gatewayName)
		h.WriteErrorResponse(w, http.StatusBadRequest, "Missing signature or body")
		return
	case errors.Is(err, gateway.ErrInvalidSignature):
		h.WriteErrorResponse(w, http.StatusUnauthorized, "Invalid signature")
		return
	case err != nil:
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *WebhookHandler) WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	h.WriteJSON(w, statusCode, response)
}
