package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/charitybot/metrics"
	"github.com/use-agent/charitybot/models"
	"golang.org/x/time/rate"
)

// Worker failure reasons, used as metric labels.
const (
	failureSessionInit = "session_init"
	failureExtract     = "extract_error"
	failurePanic       = "panic"
	failureCancelled   = "cancelled"
)

// worker owns one session and one chunk for its whole life.
type worker struct {
	id         int
	chunk      []string
	newSession SessionFactory
	extract    ExtractFunc
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	out        chan<- models.CharityRecord
}

// run extracts the chunk sequentially and sends each record to out as soon as
// it is final. Any failure ends the worker; records already sent are kept.
func (w *worker) run(ctx context.Context) {
	if len(w.chunk) == 0 {
		return
	}

	logger := slog.With("worker", w.id)

	done := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", "panic", fmt.Sprint(r),
				"completed", done, "abandoned", len(w.chunk)-done)
			w.metrics.IncrementWorkerFailure(failurePanic)
		}
	}()

	session, err := w.newSession(ctx)
	if err != nil {
		e := models.NewExtractError(models.ErrCodeSessionInit, "could not open session", err)
		logger.Error("worker failed to start", "error", e, "chunk_size", len(w.chunk))
		w.metrics.IncrementWorkerFailure(failureSessionInit)
		return
	}
	session = Throttle(session, w.limiter)

	w.metrics.WorkerStarted()
	defer w.metrics.WorkerStopped()
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()

	logger.Info("worker started", "chunk_size", len(w.chunk))
	for _, abn := range w.chunk {
		if ctx.Err() != nil {
			logger.Warn("worker cancelled", "completed", done, "abandoned", len(w.chunk)-done)
			w.metrics.IncrementWorkerFailure(failureCancelled)
			return
		}

		start := time.Now()
		rec, err := w.extract(ctx, session, abn)
		if err != nil {
			logger.Error("worker terminated", "abn", abn, "error", err,
				"completed", done, "abandoned", len(w.chunk)-done)
			w.metrics.IncrementWorkerFailure(failureExtract)
			return
		}
		w.metrics.ObserveIdentifier(time.Since(start))
		w.metrics.IncrementRecord(rec.Outcome())

		// The collector drains until every worker has returned, so this
		// send cannot block forever.
		w.out <- rec
		done++
	}
	logger.Info("worker finished", "completed", done)
}
