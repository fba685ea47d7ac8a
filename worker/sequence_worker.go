package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// SequenceWorker runs scheduler passes on a fixed interval.
type SequenceWorker struct {
	Processor *SequenceProcessor
	Interval  time.Duration
	Logger    *logrus.Entry
}

func NewSequenceWorker(processor *SequenceProcessor, interval time.Duration, logger *logrus.Entry) *SequenceWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SequenceWorker{
		Processor: processor,
		Interval:  interval,
		Logger:    logger.WithField("component", "sequence_worker"),
	}
}

// Start blocks until ctx is cancelled. A pass already running finishes its
// current enrollment before Start returns.
func (w *SequenceWorker) Start(ctx context.Context) {
	w.Logger.WithField("interval", w.Interval.String()).Info("Sequence worker started")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Sequence worker shutting down...")
			return
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *SequenceWorker) runPass(ctx context.Context) {
	result, err := w.Processor.ProcessDue(ctx)
	if errors.Is(err, ErrPassInProgress) {
		w.Logger.Debug("Pass skipped, another process holds the lock")
		return
	}
	if err != nil {
		w.Logger.WithError(err).Error("Scheduler pass failed")
		return
	}
	w.Logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"skipped":   result.Skipped,
		"errors":    result.Errors,
	}).Debug("Scheduler pass finished")
}
