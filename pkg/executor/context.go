package executor

import (
	"context"
	"log/slog"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
	"github.com/iagocavalcante/izi-queue/pkg/logger"
)

type ctxKey int

const (
	ctxKeyJobID ctxKey = iota
	ctxKeyQueue
	ctxKeyWorker
)

// ContextWithJob attaches job's id, queue, and worker name to ctx so
// downstream logging (via JobIDExtractor/QueueExtractor/WorkerExtractor)
// and handler code can recover them without threading the Job value
// everywhere.
func ContextWithJob(ctx context.Context, job jobqueue.Job) context.Context {
	ctx = context.WithValue(ctx, ctxKeyJobID, job.ID)
	ctx = context.WithValue(ctx, ctxKeyQueue, job.Queue)
	ctx = context.WithValue(ctx, ctxKeyWorker, job.Worker)
	return ctx
}

// JobIDExtractor pulls the running job's id into a log attribute, the
// queue-domain counterpart to a request-id extractor.
func JobIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, ok := ctx.Value(ctxKeyJobID).(int64)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Int64("job_id", id), true
	}
}

// QueueExtractor pulls the running job's queue name into a log attribute.
func QueueExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		queue, ok := ctx.Value(ctxKeyQueue).(string)
		if !ok || queue == "" {
			return slog.Attr{}, false
		}
		return slog.String("queue", queue), true
	}
}

// WorkerExtractor pulls the running job's worker name into a log attribute.
func WorkerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		worker, ok := ctx.Value(ctxKeyWorker).(string)
		if !ok || worker == "" {
			return slog.Attr{}, false
		}
		return slog.String("worker", worker), true
	}
}
