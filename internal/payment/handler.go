package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) authenticatedUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == 0 {
		h.WriteAppError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return 0, false
	}
	return userID, true
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("InitiatePayment: failed to parse request body", "error", err)
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.InitiatePayment(r.Context(), userID, req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.Logger.Info("InitiatePayment: payment initiated",
		"user_id", userID,
		"merchant_transaction_id", resp.MerchantTransactionID,
		"gateway", resp.Gateway)
	h.WriteJSON(w, http.StatusCreated, resp)
}

// GetPaymentStatus handles GET /api/v1/payments/{merchantTransactionId}/status
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.CheckStatus(r.Context(), userID, chi.URLParam(r, "merchantTransactionId"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// CheckPaymentStatus handles POST /api/v1/payments/status
func (h *Handler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Logger.Warn("CheckPaymentStatus: failed to parse request body", "error", err)
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.WriteAppError(w, err)
		return
	}

	resp, err := h.Service.CheckStatus(r.Context(), userID, req.MerchantTransactionID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// RetryPayment handles POST /api/v1/payments/{merchantTransactionId}/retry
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.RetryPayment(r.Context(), userID, chi.URLParam(r, "merchantTransactionId"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.Logger.Info("RetryPayment: payment retry initiated",
		"user_id", userID,
		"retry_of", resp.RetryOf,
		"merchant_transaction_id", resp.MerchantTransactionID)
	h.WriteJSON(w, http.StatusCreated, resp)
}

// RefundPayment handles POST /api/v1/payments/{merchantTransactionId}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	// the body is optional; an empty one refunds the full amount
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Logger.Warn("RefundPayment: failed to parse request body", "error", err)
		h.WriteAppError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.RefundPayment(r.Context(), userID, chi.URLParam(r, "merchantTransactionId"), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// GetStats handles GET /api/v1/payments/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	resp, err := h.Service.Stats(r.Context(), userID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
