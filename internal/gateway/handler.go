package gateway

import (
	"context"
	"net/http"

	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
)

type ServiceAPI interface {
	ActiveGateways(ctx context.Context) ([]*gatewayDatamodel.PaymentGateway, error)
}

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

func (h *Handler) GetGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := h.Service.ActiveGateways(r.Context())
	if err != nil {
		h.Logger.Error("GetGateways: failed to list gateways", "error", err)
		h.WriteAppError(w, err)
		return
	}

	responses := make([]GatewayResponse, 0, len(gateways))
	for _, gw := range gateways {
		responses = append(responses, ToResponse(gw))
	}

	h.WriteJSON(w, http.StatusOK, GatewaysResponse{Gateways: responses})
}
