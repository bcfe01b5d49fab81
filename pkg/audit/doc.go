// Package audit records a summary of every proxied transaction.
//
// The audit policy builds an Entry when a transaction completes (for
// streaming calls, when the stream ends) and hands it to a Sink. Two sinks
// are provided: MemorySink for tests and short-lived processes, and
// SQLiteSink for persistent storage.
//
// # Retention
//
// Sinks that implement Pruner can be cleaned up on a cron schedule:
//
//	sched := audit.NewScheduler(sink, 30, "0 3 * * *", logger)
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// A retention of zero days disables pruning.
package audit
