// Package iziqueue is a durable, database-backed job queue: workers are
// registered in-process, jobs are persisted to PostgreSQL, MySQL, or
// SQLite, and an Orchestrator dispatches claimed rows to the matching
// worker with exponential-backoff retries, uniqueness constraints, and
// optional isolation for CPU-bound or untrusted handlers. There is no
// separate broker process; the database is the queue.
//
// # Quick Start
//
// Implement jobqueue.Handler[P] for a payload type, register it, and
// start the Orchestrator against an adapter:
//
//	type SendEmail struct{}
//
//	func (SendEmail) Name() string { return "SendEmail" }
//
//	func (SendEmail) Handle(ctx context.Context, job iziqueue.Job, p EmailPayload) (jobqueue.Result, error) {
//	    if err := mailer.Send(ctx, p.To, p.Subject); err != nil {
//	        return jobqueue.Result{}, err
//	    }
//	    return jobqueue.Ok(), nil
//	}
//
//	store, _ := postgres.Open(ctx, dsn)
//	q := iziqueue.New(store, iziqueue.WithQueue(iziqueue.QueueConfig{Name: "default", Limit: 25}))
//	iziqueue.Register[EmailPayload](q, SendEmail{})
//
//	if err := q.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := q.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Inserting jobs
//
//	job, err := q.Insert(ctx, "SendEmail", "", EmailPayload{To: "a@b.com"})
//
// Insert defaults queue to the worker's registered default, or
// "default" if the worker declared none; max attempts and priority
// default from the worker's WorkerSpec, or 20 and 0. InsertWithResult
// additionally reports whether a Unique option matched a live
// conflicting job instead of inserting a new row.
//
// # Telemetry
//
// On subscribes to lifecycle events ("job:start", "job:complete",
// telemetry.Wildcard for everything):
//
//	unsubscribe := q.On(telemetry.JobError, func(ev telemetry.Event) {
//	    log.Error("job failed", "worker", ev.Job.Worker, "err", ev.Err)
//	})
//
// # Shutdown
//
// Run handles SIGINT/SIGTERM and performs a graceful Shutdown
// automatically. Programmatic callers doing their own lifecycle
// management call Start and Shutdown directly, and can register cleanup
// with WithShutdownHook:
//
//	q := iziqueue.New(store, iziqueue.WithShutdownHook(func(ctx context.Context) error {
//	    return otherPool.Close()
//	}))
//
// # Testing
//
// Drain blocks until a queue (or every queue) has no available or
// in-flight jobs left, which is the usual way tests wait for inserted
// jobs to finish processing before asserting on their final state:
//
//	job, _ := q.Insert(ctx, "SendEmail", "", payload)
//	_ = q.Drain(ctx, "")
//	final, _ := q.GetJob(ctx, job.ID)
package iziqueue
