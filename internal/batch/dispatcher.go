package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Job is one member payment handed to the pool. Done is called exactly once
// when the attempt finishes, whatever the outcome.
type Job struct {
	BatchID   uuid.UUID
	PaymentID uuid.UUID
	Actor     string
	Done      func()
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing payment",
					"worker_id", w.ID,
					"batch_id", job.BatchID,
					"payment_id", job.PaymentID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Dispatcher bounds how many member payments are in flight at once across
// all running batches.
type Dispatcher struct {
	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type DispatcherConfig struct {
	MaxWorkers   int
	JobQueueSize int
}

func NewDispatcher(config DispatcherConfig, logger *slog.Logger, processFunc func(Job)) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	d := &Dispatcher{
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, maxWorkers),
		maxWorkers: maxWorkers,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	d.start(processFunc)
	return d
}

func (d *Dispatcher) start(processFunc func(Job)) {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			worker := NewWorker(i, d.workerPool, d.logger)
			worker.Start(d.ctx, &d.wg, processFunc)
		}

		d.wg.Add(1)
		go d.dispatch()

		d.logger.Info("batch worker pool started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue))
	})
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				select {
				case jobChannel <- job:
				case <-d.ctx.Done():
					d.logger.Info("dispatcher shutting down")
					d.release(job)
					d.drain()
					return
				}
			case <-d.ctx.Done():
				d.logger.Info("dispatcher shutting down")
				d.release(job)
				d.drain()
				return
			}
		case <-d.ctx.Done():
			d.logger.Info("dispatcher shutting down")
			d.drain()
			return
		}
	}
}

// drain empties the queue on shutdown, releasing every undelivered job so
// the batch runs waiting on them do not block forever.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobQueue:
			d.release(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) release(job Job) {
	d.logger.Warn("job dropped during shutdown",
		"batch_id", job.BatchID,
		"payment_id", job.PaymentID)
	if job.Done != nil {
		job.Done()
	}
}

// Enqueue blocks while the queue is full, which backpressures batch runs
// instead of growing memory.
func (d *Dispatcher) Enqueue(job Job) bool {
	select {
	case <-d.ctx.Done():
		return false
	default:
	}
	select {
	case d.jobQueue <- job:
		return true
	case <-d.ctx.Done():
		return false
	}
}

func (d *Dispatcher) Shutdown() {
	d.logger.Info("shutting down batch dispatcher")
	d.cancel()
	d.wg.Wait()
	// a job that slipped past the cancel check still gets released
	d.drain()
	d.logger.Info("batch dispatcher shutdown complete")
}
