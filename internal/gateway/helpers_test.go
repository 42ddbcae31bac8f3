package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"sync"

	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeAuditSink struct {
	mu   sync.Mutex
	logs []*gatewayDatamodel.PaymentGatewayLog
	err  error
}

func (f *fakeAuditSink) CreateGatewayLog(ctx context.Context, log *gatewayDatamodel.PaymentGatewayLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAuditSink) entries() []*gatewayDatamodel.PaymentGatewayLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*gatewayDatamodel.PaymentGatewayLog(nil), f.logs...)
}

var errSinkDown = errors.New("audit store unavailable")

func hmacHex(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
