// Package worker provides a generic, bounded worker pool.
//
// A fixed number of goroutines pull work items from a buffered channel.
// Submit never blocks: when the queue is full it returns ErrQueueFull and the
// caller decides what a drop means. Processor panics are recovered and
// reported as errors wrapping errors.ErrHandlerPanic, so one bad item cannot
// take a worker down.
//
//	pool, err := worker.NewPool(8, 1024,
//		func(ctx context.Context, job HandlerJob) error {
//			return job.Run(ctx)
//		},
//		worker.WithErrorHandler(func(job HandlerJob, err error) {
//			logger.Warn("handler failed", "error", err)
//		}),
//		worker.WithMetricsRegistry[HandlerJob](registry, "handlers"),
//	)
//	if err != nil {
//		return err
//	}
//	if err := pool.Start(ctx); err != nil {
//		return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// # Lifecycle
//
// Start launches the workers. Stop closes the queue, lets workers finish the
// items already queued, and waits up to the given timeout. Cancelling the
// context passed to Start makes workers exit without draining.
//
// # Observability
//
// Stats is always available. WithMetricsRegistry additionally exports queue
// depth, submitted/processed/failed/dropped counters and a processing time
// histogram, labelled with the pool name.
package worker
