/*
Package buffer accumulates trace data and hands it to a flush.Handler in batches.

# Overview

Producers on any number of goroutines push blocks, logs and the three lifecycle
timestamps (entered, exited, returned). Pushes only touch memory: a short
critical section appends to the pending collections and bumps the total count.

Pending data leaves the buffer through exactly one path, snapshot-and-clear,
which copies all five collections and empties them in one critical section.
Every pushed item therefore appears in exactly one snapshot.

# Async

Async flushes when the total count reaches the threshold (checked by the pushing
goroutine after it releases the lock) and on a periodic ticker. A snapshot is
dispatched as up to five handler calls, one per non-empty category, each on a
worker from a bounded pool. When the pool is saturated the call runs on the
triggering goroutine instead of being dropped.

Flush is the drain: it dispatches one final snapshot and waits for all
in-flight calls, bounded by the drain timeout. On timeout it returns
ErrDrainTimeout and leaves the remaining calls running.

# Sync

Sync delivers snapshots on the pushing goroutine. The push that crosses the
threshold blocks until every handler call returns, so ingestion waits on
handler I/O. It suits short-lived tools and tests where background goroutines
are unwanted; long-running programs should use Async.

# Usage

	buf := buffer.NewAsync(handler, buffer.Config{
		Threshold:    500,
		Interval:     5 * time.Second,
		DrainTimeout: 10 * time.Second,
		Workers:      8,
		Logger:       logger,
	})
	defer buf.Close(context.Background())

	buf.PushBlock(block)
	buf.PushEntered(block.ID, time.Now())
*/
package buffer
