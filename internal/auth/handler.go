package auth

import (
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Verifier TokenVerifier
}

func NewHandler(base *transport.BaseHandler, verifier TokenVerifier) *Handler {
	return &Handler{
		BaseHandler: base,
		Verifier:    verifier,
	}
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			h.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := h.Verifier.ValidateToken(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err)
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		uid, err := claims.ID()
		if err != nil {
			h.Logger.Warn("auth middleware: token without user", "subject", claims.Subject)
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := internal.ContextWithUserID(r.Context(), uid)
		ctx = logger.With(ctx, "userID", uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
