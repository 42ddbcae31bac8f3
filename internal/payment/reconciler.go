package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
)

// StatusPoller is the polling surface the reconcile worker drives.
type StatusPoller interface {
	StaleCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*paymentDatamodel.Payment, error)
	PollStatus(ctx context.Context, p *paymentDatamodel.Payment, source string) *paymentDatamodel.Payment
}

type ReconcileJob struct {
	Payment *paymentDatamodel.Payment
	done    *sync.WaitGroup
}

type Worker struct {
	ID         int
	WorkerPool chan chan ReconcileJob
	JobChannel chan ReconcileJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan ReconcileJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan ReconcileJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(ReconcileJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "payment_id", job.Payment.ID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type ReconcilerConfig struct {
	Interval     time.Duration
	GracePeriod  time.Duration
	BatchSize    int
	MaxWorkers   int
	JobTimeout   time.Duration
	JobQueueSize int
}

// Reconciler periodically re-polls payments that never heard back from their
// provider, through the same path the status endpoint uses.
type Reconciler struct {
	poller StatusPoller
	config ReconcilerConfig
	logger *slog.Logger
	now    func() time.Time

	jobQueue   chan ReconcileJob
	workerPool chan chan ReconcileJob
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once

	// mu guards stopped; Sweep enqueues under the read lock.
	mu      sync.RWMutex
	stopped bool
}

func NewReconciler(poller StatusPoller, config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 15 * time.Minute
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.JobQueueSize <= 0 {
		config.JobQueueSize = config.BatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		poller:     poller,
		config:     config,
		logger:     logger,
		now:        time.Now,
		jobQueue:   make(chan ReconcileJob, config.JobQueueSize),
		workerPool: make(chan chan ReconcileJob, config.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
	r.startWorkerPool()
	return r
}

func (r *Reconciler) startWorkerPool() {
	r.once.Do(func() {
		for i := 0; i < r.config.MaxWorkers; i++ {
			worker := NewWorker(i, r.workerPool, r.logger)
			worker.Start(r.ctx, &r.wg, r.process)
		}

		r.wg.Add(1)
		go r.dispatch()

		r.logger.Info("reconcile worker pool started",
			"max_workers", r.config.MaxWorkers,
			"queue_size", cap(r.jobQueue))
	})
}

func (r *Reconciler) dispatch() {
	defer r.wg.Done()
	defer r.drain()

	for {
		select {
		case job := <-r.jobQueue:
			select {
			case jobChannel := <-r.workerPool:
				select {
				case jobChannel <- job:
				case <-r.ctx.Done():
					job.done.Done()
					r.logger.Info("dispatcher shutting down")
					return
				}
			case <-r.ctx.Done():
				job.done.Done()
				r.logger.Info("dispatcher shutting down")
				return
			}
		case <-r.ctx.Done():
			r.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// drain releases jobs still queued when the dispatcher stops so a waiting
// Sweep can return.
func (r *Reconciler) drain() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	for {
		select {
		case job := <-r.jobQueue:
			job.done.Done()
		default:
			return
		}
	}
}

func (r *Reconciler) enqueue(ctx context.Context, job ReconcileJob) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return context.Canceled
	}
	select {
	case r.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

func (r *Reconciler) process(job ReconcileJob) {
	defer job.done.Done()

	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	before := job.Payment.Status
	after := r.poller.PollStatus(ctx, job.Payment, SourceReconcile)
	if after != nil && after.Status != before {
		r.logger.Info("payment reconciled",
			"payment_id", job.Payment.ID,
			"merchant_transaction_id", job.Payment.MerchantTransactionID,
			"old_status", before,
			"new_status", after.Status)
	}
}

// Sweep polls one batch of stale payments and waits for the batch to finish.
// It returns how many payments were queued.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.config.GracePeriod)
	payments, err := r.poller.StaleCandidates(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		r.logger.Error("Sweep: failed to list stale payments", "error", err)
		return 0, err
	}

	var batch sync.WaitGroup
	queued := 0
	for _, p := range payments {
		batch.Add(1)
		if err := r.enqueue(ctx, ReconcileJob{Payment: p, done: &batch}); err != nil {
			batch.Done()
			batch.Wait()
			return queued, err
		}
		queued++
	}
	batch.Wait()

	if queued > 0 {
		r.logger.Info("reconcile sweep finished", "payments", queued)
	}
	return queued, nil
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) Shutdown() {
	r.logger.Info("shutting down reconcile worker")
	r.cancel()
	r.wg.Wait()
	r.logger.Info("reconcile worker shutdown complete")
}
