// Package logger provides structured logging with context extraction and Sentry integration.
//
// This package extends the standard library's log/slog with two key capabilities:
// automatic context-based attribute injection and optional Sentry error reporting.
// It is designed for background-job processing that needs consistent, enriched logs
// with minimal boilerplate.
//
// # Overview
//
// The package provides:
//   - Context extractors that automatically inject job-scoped values (e.g., job IDs, queue names)
//   - A decorator pattern that wraps any slog.Handler to add extraction behavior
//   - Sentry integration for error tracking with graceful fallback when unconfigured
//   - Multi-handler support for routing logs to multiple destinations
//
// # Basic Usage
//
// Create a logger with context extractors:
//
//	// Define an extractor for the currently executing job's queue
//	queueExtractor := func(ctx context.Context) (slog.Attr, bool) {
//		if queue, ok := ctx.Value(queueCtxKey).(string); ok && queue != "" {
//			return slog.String("queue", queue), true
//		}
//		return slog.Attr{}, false
//	}
//
//	// Create logger with extractors
//	log := logger.New(queueExtractor)
//
//	// Use with context - queue is automatically included
//	ctx := context.WithValue(context.Background(), queueCtxKey, "reports")
//	log.InfoContext(ctx, "job completed", slog.Int64("job_id", 42))
//	// Output: {"time":"...","level":"INFO","msg":"job completed","job_id":42,"queue":"reports"}
//
// The executor package's JobIDExtractor/QueueExtractor/WorkerExtractor are
// the job-queue's own extractors in this shape, wired into the
// orchestrator's default logger.
//
// # Sentry Integration
//
// For production error tracking, use NewWithSentry:
//
//	cfg := logger.SentryConfig{
//		DSN:         os.Getenv("SENTRY_DSN"),
//		Environment: "production",
//		MinLevel:    slog.LevelWarn, // Send warnings and errors to Sentry
//	}
//
//	log := logger.NewWithSentry(cfg, queueExtractor)
//
//	// Errors create Issues in Sentry, warnings are stored for context
//	log.ErrorContext(ctx, "job discarded", slog.Int64("job_id", 42))
//
// If SENTRY_DSN is empty, the logger gracefully falls back to stdout-only logging,
// making it safe to use the same code path in development and production.
//
// # Context Extractors
//
// A ContextExtractor is a function that extracts a log attribute from context:
//
//	type ContextExtractor func(ctx context.Context) (slog.Attr, bool)
//
// Extractors are called on every log call, ensuring fresh values for job-scoped data.
// Return false from the extractor to skip adding the attribute for that log entry.
//
// Common extractors include:
//   - Job ID extractor, identifying the job an executor log line belongs to
//   - Queue extractor, identifying which dispatcher emitted the log line
//   - Worker extractor, identifying the registered handler that ran
//
// # Handler Decoration
//
// The LogHandlerDecorator can wrap any slog.Handler to add context extraction:
//
//	// Wrap a custom handler
//	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
//	decorated := logger.NewLogHandlerDecorator(jsonHandler, extractors...)
//	log := slog.New(decorated)
//
// This allows using context extractors with any handler implementation.
//
// # Architecture
//
// The package uses several design patterns:
//
// Decorator Pattern: LogHandlerDecorator wraps any slog.Handler, intercepting
// Handle calls to inject extracted attributes before delegating to the underlying handler.
//
// Multi-Handler Pattern: An internal multiHandler forwards logs to multiple destinations,
// enabling simultaneous stdout and Sentry logging.
//
// Graceful Degradation: Sentry integration fails gracefully - if DSN is missing or
// initialization fails, logging continues to stdout without disruption.
package logger
