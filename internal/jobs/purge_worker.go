package jobs

import (
	"context"
	"time"

	"github.com/cloo-solutions/knowtext/internal/logger"
)

// Purger hard-deletes records soft-deleted longer than retention ago
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// PurgeWorker is a JobProcessor that removes expired soft-deleted records.
type PurgeWorker struct {
	purger    Purger
	retention time.Duration
	log       *logger.Logger
}

func NewPurgeWorker(purger Purger, retention time.Duration, log *logger.Logger) *PurgeWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &PurgeWorker{purger: purger, retention: retention, log: log}
}

func (w *PurgeWorker) ProcessJobs(ctx context.Context) error {
	n, err := w.purger.Purge(ctx, w.retention)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("purged soft-deleted knowledge texts", "count", n, "retention", w.retention.String())
	} else {
		w.log.Debug("nothing to purge")
	}
	return nil
}
