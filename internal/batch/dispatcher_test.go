package batch_test

import (
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/Kirachon/dsr-payment-service/internal/batch"
)

var _ = Describe("Dispatcher", func() {
	newJob := func(done func()) batch.Job {
		return batch.Job{
			BatchID:   uuid.New(),
			PaymentID: uuid.New(),
			Actor:     "operator1",
			Done:      done,
		}
	}

	It("processes every enqueued job through the pool", func() {
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		var mu sync.Mutex
		processed := 0
		dispatcher := batch.NewDispatcher(batch.DispatcherConfig{MaxWorkers: 2, JobQueueSize: 10}, lg,
			func(job batch.Job) {
				defer job.Done()
				mu.Lock()
				processed++
				mu.Unlock()
			})
		defer dispatcher.Shutdown()

		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			Expect(dispatcher.Enqueue(newJob(wg.Done))).To(BeTrue())
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		Expect(processed).To(Equal(6))
	})

	It("releases undelivered jobs on shutdown so their owners do not block", func() {
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		gate := make(chan struct{})
		dispatcher := batch.NewDispatcher(batch.DispatcherConfig{MaxWorkers: 1, JobQueueSize: 10}, lg,
			func(job batch.Job) {
				defer job.Done()
				<-gate
			})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			Expect(dispatcher.Enqueue(newJob(wg.Done))).To(BeTrue())
		}

		shutdownDone := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			dispatcher.Shutdown()
			close(shutdownDone)
		}()

		close(gate)
		Eventually(shutdownDone, 2*time.Second, 10*time.Millisecond).Should(BeClosed())

		// every job accepted by Enqueue gets its Done callback, delivered
		// or not
		allDone := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			wg.Wait()
			close(allDone)
		}()
		Eventually(allDone, 2*time.Second, 10*time.Millisecond).Should(BeClosed())
	})

	It("refuses new jobs after shutdown", func() {
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		dispatcher := batch.NewDispatcher(batch.DispatcherConfig{MaxWorkers: 1, JobQueueSize: 1}, lg,
			func(job batch.Job) { job.Done() })
		dispatcher.Shutdown()

		Expect(dispatcher.Enqueue(newJob(func() {}))).To(BeFalse())
	})
})
