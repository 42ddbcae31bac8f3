package cache_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/cache"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  time.Time
	err  error
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if expiry, ok := f.keys[key]; ok && f.now.Before(expiry) {
		return false, nil
	}
	f.keys[key] = f.now.Add(ttl)
	return true, nil
}

var _ = Describe("RateLimiter", func() {
	var (
		store   *fakeStore
		limiter *cache.RateLimiter
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &fakeStore{keys: map[string]time.Time{}, now: time.Now()}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		limiter = cache.NewRateLimiter(store, 5*time.Second, logger)
	})

	It("throttles a second initiation inside the cooldown", func() {
		Expect(limiter.Allow(ctx, 42)).To(BeTrue())
		Expect(limiter.Allow(ctx, 42)).To(BeFalse())
	})

	It("tracks users independently", func() {
		Expect(limiter.Allow(ctx, 1)).To(BeTrue())
		Expect(limiter.Allow(ctx, 2)).To(BeTrue())
	})

	It("allows again once the cooldown has passed", func() {
		Expect(limiter.Allow(ctx, 42)).To(BeTrue())
		store.now = store.now.Add(6 * time.Second)
		Expect(limiter.Allow(ctx, 42)).To(BeTrue())
	})

	It("fails open when the store errors", func() {
		store.err = errors.New("connection refused")
		Expect(limiter.Allow(ctx, 42)).To(BeTrue())
		Expect(limiter.Allow(ctx, 42)).To(BeTrue())
	})

	It("uses a per-user key", func() {
		Expect(cache.InitiationKey(42)).To(Equal("payment_initiation_42"))
	})
})

var _ = Describe("Client", func() {
	It("behaves as an empty cache when not configured", func() {
		var client *cache.Client
		ctx := context.Background()

		value, err := client.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(BeNil())
		Expect(client.Set(ctx, "k", []byte("v"), time.Minute)).To(Succeed())
		Expect(client.Ping(ctx)).To(HaveOccurred())
	})
})
