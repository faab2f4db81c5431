package engine

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-metrics"

	"github.com/roach88/switchboard/internal/store"
	"github.com/roach88/switchboard/internal/telemetry"
)

// storeJob runs on the store worker goroutine with exclusive access to the
// worker's store.
type storeJob func(ctx context.Context, w *storeWorker)

// storeWorker serializes all store I/O. Jobs run strictly in submission
// order.
type storeWorker struct {
	jobs   *fifo[storeJob]
	done   chan struct{}
	logger *slog.Logger
	sink   metrics.MetricSink

	// Owned by the worker goroutine.
	st store.LogStore
}

func newStoreWorker(logger *slog.Logger, sink metrics.MetricSink) *storeWorker {
	return &storeWorker{
		jobs:   newFIFO[storeJob](),
		done:   make(chan struct{}),
		logger: logger,
		sink:   sink,
	}
}

// submit queues a job. Returns false once the worker is closing.
func (w *storeWorker) submit(job storeJob) bool {
	return w.jobs.Enqueue(job)
}

// run executes jobs until close is called and the queue drains.
func (w *storeWorker) run(ctx context.Context) {
	defer close(w.done)

	for {
		if job, ok := w.jobs.TryDequeue(); ok {
			job(ctx, w)
			continue
		}
		if w.jobs.Drained() {
			return
		}
		<-w.jobs.Wait()
	}
}

// close stops accepting jobs and waits for queued ones to finish.
func (w *storeWorker) close() {
	w.jobs.Close()
	<-w.done
}

// openJob opens the session store, falling back to memory on failure. The
// outcome is reported through notify.
func openJob(settings Settings, sessionID string, notify func(fallback bool)) storeJob {
	return func(_ context.Context, w *storeWorker) {
		if settings.MemoryOnly {
			w.st = store.NewMemoryStore()
			w.logger.Debug("log store in memory", telemetry.LabelSession.L(sessionID))
			notify(true)
			return
		}

		s, err := store.OpenSession(settings.StoreDir, sessionID)
		if err != nil {
			rerr := NewStoreUnavailableError(store.SessionPath(settings.StoreDir, sessionID), err)
			w.logger.Warn("log store unavailable, using in-memory fallback",
				telemetry.LabelError.L(rerr),
				telemetry.LabelSession.L(sessionID),
			)
			w.sink.IncrCounter(telemetry.MetricEngineStoreFallback, 1)
			w.st = store.NewMemoryStore()
			notify(true)
			return
		}

		w.logger.Debug("log store opened",
			telemetry.LabelSession.L(sessionID),
			telemetry.LabelPath.L(s.Path()),
		)
		w.st = s
		notify(false)
	}
}

func historyJob(rec store.HistoryRecord) storeJob {
	return func(ctx context.Context, w *storeWorker) {
		if w.st == nil {
			return
		}
		if err := w.st.AppendHistory(ctx, rec); err != nil {
			// History is best-effort.
			w.sink.IncrCounter(telemetry.MetricEngineStoreErrCount, 1)
			w.logger.Debug("history append failed",
				telemetry.LabelError.L(err),
				telemetry.LabelMessageID.L(rec.MessageUID),
			)
		}
	}
}

func replyJob(rec store.ReplyRecord) storeJob {
	return func(ctx context.Context, w *storeWorker) {
		if w.st == nil {
			return
		}
		if err := w.st.AppendReply(ctx, rec); err != nil {
			w.sink.IncrCounter(telemetry.MetricEngineStoreErrCount, 1)
			w.logger.Warn("reply correlation append failed",
				telemetry.LabelError.L(err),
				telemetry.LabelReplyID.L(rec.ReplyID),
			)
		}
	}
}

// lookupJob resolves a correlation record and hands the result back to the
// event loop. A failed lookup is reported as not found.
func lookupJob(replyID string, resume func(rec store.ReplyRecord, found bool)) storeJob {
	return func(ctx context.Context, w *storeWorker) {
		if w.st == nil {
			resume(store.ReplyRecord{}, false)
			return
		}
		rec, found, err := w.st.LookupReply(ctx, replyID)
		if err != nil {
			w.sink.IncrCounter(telemetry.MetricEngineStoreErrCount, 1)
			w.logger.Warn("reply correlation lookup failed",
				telemetry.LabelError.L(err),
				telemetry.LabelReplyID.L(replyID),
			)
			found = false
		}
		resume(rec, found)
	}
}

// historyQueryJob reads back a message's attempt rows.
func historyQueryJob(messageUID string, result chan<- []store.HistoryRecord) storeJob {
	return func(ctx context.Context, w *storeWorker) {
		defer close(result)
		if w.st == nil {
			return
		}
		recs, err := w.st.HistoryFor(ctx, messageUID)
		if err != nil {
			w.logger.Warn("history query failed", telemetry.LabelError.L(err))
			return
		}
		result <- recs
	}
}

func destroyJob() storeJob {
	return func(_ context.Context, w *storeWorker) {
		if w.st == nil {
			return
		}
		if err := w.st.Destroy(); err != nil {
			w.logger.Warn("log store destroy failed", telemetry.LabelError.L(err))
		}
		w.st = nil
	}
}
