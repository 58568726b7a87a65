/*
Package flush delivers buffered trace data to its destination.

# Overview

The buffer engine hands every snapshot to a Handler as up to five independent
calls, one per Category. Each call receives a non-empty batch. Handlers in this
package:

  - HubHandler: POSTs JSON to a collector (one endpoint per category)
  - SpoolHandler: writes each batch to a msgpack file for later replay
  - LogHandler: writes batches to a zap logger
  - Multi: fans a batch out to several handlers
  - Nop, Recorder: discard or keep batches in memory

# Failure Policy

A handler that fails to deliver logs the failure and returns nil, so the batch
is dropped and the engine moves on. A handler configured as strict returns the
error instead, wrapped in ErrDeliveryFailed; the engine surfaces it from the
next drain.

# Wire Format

Blocks and logs are JSON arrays; entered, exited and returned are JSON objects
mapping block id to epoch milliseconds. Optional fields are null when unset.
*/
package flush
