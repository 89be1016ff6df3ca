package jobs

import (
	"context"
	"time"

	"github.com/cloo-solutions/knowtext/internal/logger"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor on a fixed interval
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	log          *logger.Logger
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		log:          log.With("worker", name),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled or Stop is called.
// With runImmediately the processor also runs once before the first tick.
func (w *Worker) Start(ctx context.Context, runImmediately bool) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.log.Info("worker started", "interval", w.pollInterval.String())

	if runImmediately {
		w.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped", "reason", "context cancelled")
			return
		case <-w.stopChan:
			w.log.Info("worker stopped", "reason", "stop signal")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Error("job run failed", "error", err)
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	w.log.Info("worker shutdown complete")
}
