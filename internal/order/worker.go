package order

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReconcileJob is one deferred reconciliation request, queued when a webhook
// notification arrives.
type ReconcileJob struct {
	Reference string
	Received  time.Time
}

type reconcileWorker struct {
	ID         int
	WorkerPool chan chan ReconcileJob
	JobChannel chan ReconcileJob
	Logger     *slog.Logger
}

func newReconcileWorker(id int, workerPool chan chan ReconcileJob, logger *slog.Logger) *reconcileWorker {
	return &reconcileWorker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan ReconcileJob),
		Logger:     logger,
	}
}

func (w *reconcileWorker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(ReconcileJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing reconciliation", "worker_id", w.ID, "reference", job.Reference)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Reconciler is the interface the pool drives; satisfied by *Service.
type Reconciler interface {
	Reconcile(ctx context.Context, reference, trigger string) (*OrderView, error)
}

// ReconcilePool runs webhook-triggered reconciliations in the background so
// the webhook handler can acknowledge immediately after recording the
// payload. Reconciliation errors are logged, not propagated: Reconcile is
// idempotent and the client verify path or a replayed notification will
// retry the reference.
type ReconcilePool struct {
	engine Reconciler
	logger *slog.Logger

	jobQueue   chan ReconcileJob
	workerPool chan chan ReconcileJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewReconcilePool(engine Reconciler, maxWorkers, queueSize int, logger *slog.Logger) *ReconcilePool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &ReconcilePool{
		engine:     engine,
		logger:     logger,
		jobQueue:   make(chan ReconcileJob, queueSize),
		workerPool: make(chan chan ReconcileJob, maxWorkers),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
	pool.start()
	return pool
}

func (p *ReconcilePool) start() {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			worker := newReconcileWorker(i, p.workerPool, p.logger)
			worker.Start(p.ctx, &p.wg, p.process)
		}

		go p.dispatch()

		p.logger.Info("reconciliation pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *ReconcilePool) dispatch() {
	p.wg.Add(1)
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					return
				}
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *ReconcilePool) process(job ReconcileJob) {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	if _, err := p.engine.Reconcile(ctx, job.Reference, TriggerWebhook); err != nil {
		p.logger.Warn("deferred reconciliation did not settle",
			"reference", job.Reference,
			"queued_for", time.Since(job.Received),
			"error", err)
		return
	}

	p.logger.Info("deferred reconciliation settled", "reference", job.Reference)
}

// Enqueue queues a reference for background reconciliation. Returns false
// when the queue is full; the notification payload is already durable so
// dropping the job only delays settlement.
func (p *ReconcilePool) Enqueue(reference string) bool {
	job := ReconcileJob{Reference: reference, Received: time.Now()}
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.logger.Warn("reconciliation queue full, dropping job", "reference", reference)
		return false
	}
}

func (p *ReconcilePool) Shutdown() {
	p.logger.Info("shutting down reconciliation pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("reconciliation pool shutdown complete")
}
