package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/frahmantamala/payment-reconciliation/internal"
)

// ClientInfo records the caller address and user agent stored on payments
// and webhook audit rows. Run it after chi's RealIP.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := internal.ClientInfo{
			IPAddress: remoteIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(internal.ContextWithClientInfo(r.Context(), info)))
	})
}

func remoteIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
