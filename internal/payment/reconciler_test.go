package payment_test

import (
	"context"
	"errors"
	"sync"
	"time"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakePoller struct {
	mu        sync.Mutex
	stale     []*paymentDatamodel.Payment
	listErr   error
	polled    []int64
	sources   []string
	olderThan time.Time
}

func (p *fakePoller) StaleCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*paymentDatamodel.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.olderThan = olderThan
	if p.listErr != nil {
		return nil, p.listErr
	}
	if len(p.stale) > limit {
		return p.stale[:limit], nil
	}
	return p.stale, nil
}

func (p *fakePoller) PollStatus(ctx context.Context, payment *paymentDatamodel.Payment, source string) *paymentDatamodel.Payment {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polled = append(p.polled, payment.ID)
	p.sources = append(p.sources, source)
	return payment
}

var _ = Describe("Reconciler", func() {
	var (
		poller     *fakePoller
		reconciler *payment.Reconciler
	)

	BeforeEach(func() {
		poller = &fakePoller{}
		for i := int64(1); i <= 5; i++ {
			poller.stale = append(poller.stale, &paymentDatamodel.Payment{ID: i, Status: paymentDatamodel.StatusPending})
		}
		reconciler = payment.NewReconciler(poller, payment.ReconcilerConfig{
			GracePeriod: 10 * time.Minute,
			BatchSize:   3,
			MaxWorkers:  2,
		}, testLogger())
	})

	AfterEach(func() {
		reconciler.Shutdown()
	})

	It("polls one batch of stale payments and waits for it", func() {
		queued, err := reconciler.Sweep(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(queued).To(Equal(3))
		Expect(poller.polled).To(ConsistOf(int64(1), int64(2), int64(3)))
		Expect(poller.sources).To(HaveEach(payment.SourceReconcile))
		Expect(poller.olderThan).To(BeTemporally("~", time.Now().Add(-10*time.Minute), time.Minute))
	})

	It("returns listing errors", func() {
		poller.listErr = errors.New("db down")

		_, err := reconciler.Sweep(context.Background())

		Expect(err).To(HaveOccurred())
		Expect(poller.polled).To(BeEmpty())
	})

	It("stops running when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			reconciler.Run(ctx)
			close(done)
		}()

		Eventually(func() int {
			poller.mu.Lock()
			defer poller.mu.Unlock()
			return len(poller.polled)
		}).Should(Equal(3))
		cancel()
		Eventually(done).Should(BeClosed())
	})
})

var _ = Describe("Service.StaleCandidates", func() {
	It("lists open payments older than the cutoff", func() {
		f := newFixture()
		open := f.newPayment("100", nil)
		closed := f.newPayment("100", nil)
		_, err := f.engine.UpdatePaymentStatus(f.ctx, closed.ID, payment.StatusUpdate{Status: paymentDatamodel.StatusCompleted})
		Expect(err).NotTo(HaveOccurred())

		stale, err := f.service.StaleCandidates(f.ctx, time.Now().Add(time.Minute), 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(stale).To(HaveLen(1))
		Expect(stale[0].ID).To(Equal(open.ID))

		fresh, err := f.service.StaleCandidates(f.ctx, time.Now().Add(-time.Hour), 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh).To(BeEmpty())
	})

	It("rotates payments the provider keeps open across sweeps", func() {
		f := newFixture()
		first := f.newPayment("100", nil)
		second := f.newPayment("200", nil)
		f.client.statusResult = &gateway.StatusResult{ProviderStatus: "CREATED"}

		reconciler := payment.NewReconciler(f.service, payment.ReconcilerConfig{
			GracePeriod: time.Nanosecond,
			BatchSize:   1,
			MaxWorkers:  1,
		}, testLogger())
		defer reconciler.Shutdown()

		sweep := func() {
			queued, err := reconciler.Sweep(f.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(queued).To(Equal(1))
		}

		sweep()
		Expect(f.reload(first.ID).LastCheckedAt).NotTo(BeNil())
		Expect(f.reload(second.ID).LastCheckedAt).To(BeNil())

		sweep()
		Expect(f.reload(second.ID).LastCheckedAt).NotTo(BeNil())

		sweep()
		Expect(f.reload(first.ID).LastCheckedAt.After(*f.reload(second.ID).LastCheckedAt)).To(BeTrue())

		_, statusCalls, _ := f.client.calls()
		Expect(statusCalls).To(Equal(3))
		Expect(f.reload(first.ID).Status).To(Equal(paymentDatamodel.StatusInitiated))
	})

	It("records the check even when the provider errors", func() {
		f := newFixture()
		p := f.newPayment("100", nil)
		f.client.statusErr = errors.New("timeout")

		polled := f.service.PollStatus(f.ctx, p, payment.SourceReconcile)

		Expect(polled.LastCheckedAt).NotTo(BeNil())
		Expect(f.reload(p.ID).LastCheckedAt).NotTo(BeNil())
		Expect(f.logActions(p.ID)).To(ContainElement(paymentDatamodel.ActionStatusCheckFailed))
	})

	It("reconciles through the provider status", func() {
		f := newFixture()
		p := f.newPayment("100", nil)
		f.client.statusResult = &gateway.StatusResult{ProviderStatus: "FAILED", Status: paymentDatamodel.StatusFailed}

		updated := f.service.PollStatus(f.ctx, p, payment.SourceReconcile)

		Expect(updated.Status).To(Equal(paymentDatamodel.StatusFailed))
		logs := f.logs(p.ID)
		Expect(logs[len(logs)-1].Details["source"]).To(Equal(payment.SourceReconcile))
	})
})

// blockingPoller holds every poll until its context ends.
type blockingPoller struct {
	fakePoller
	started chan struct{}
	once    sync.Once
}

func (p *blockingPoller) PollStatus(ctx context.Context, payment *paymentDatamodel.Payment, source string) *paymentDatamodel.Payment {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return payment
}

var _ = Describe("Reconciler shutdown", func() {
	It("releases a sweep that is still waiting on queued payments", func() {
		poller := &blockingPoller{started: make(chan struct{})}
		for i := int64(1); i <= 5; i++ {
			poller.stale = append(poller.stale, &paymentDatamodel.Payment{ID: i, Status: paymentDatamodel.StatusPending})
		}
		reconciler := payment.NewReconciler(poller, payment.ReconcilerConfig{
			BatchSize:  5,
			MaxWorkers: 1,
			JobTimeout: time.Hour,
		}, testLogger())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			_, _ = reconciler.Sweep(context.Background())
			close(done)
		}()

		Eventually(poller.started).Should(BeClosed())
		reconciler.Shutdown()

		Eventually(done).Should(BeClosed())
	})

	It("refuses new work after shutdown", func() {
		poller := &fakePoller{stale: []*paymentDatamodel.Payment{{ID: 1, Status: paymentDatamodel.StatusPending}}}
		reconciler := payment.NewReconciler(poller, payment.ReconcilerConfig{MaxWorkers: 1}, testLogger())
		reconciler.Shutdown()

		queued, err := reconciler.Sweep(context.Background())

		Expect(err).To(HaveOccurred())
		Expect(queued).To(BeZero())
		Expect(poller.polled).To(BeEmpty())
	})
})
