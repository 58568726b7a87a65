/*
Package flow is the instrumentation surface of the agent.

# Overview

A Tracer turns explicit calls at method boundaries into blocks, logs and
lifecycle timestamps on a buffer.Buffer. The active block of an execution path
lives in the context.Context (see package blockctx), so every call takes the
caller's ctx.

	err := tracer.Root(ctx, "checkout", func(ctx context.Context) error {
		tracer.Info(ctx, "cart loaded")
		return tracer.Sub(ctx, "charge", func(ctx context.Context) error {
			return charge(ctx)
		})
	})

# Scopes

  - Root: a block with no parent; flushes on exit when configured
  - Sub: a child of the current block, announced in the parent's chain
    with a TRACE_PRIMARY log
  - Go: a child run on a new goroutine from a detached copy of the
    current block, announced with a TRACE_PARALLEL log
  - Listen: a child of a published block on a fresh execution path
  - EnterRemote: the callee side of a remote call, entering a block
    the caller already created

Scopes hand fn a derived ctx and never modify the one they were given. A ctx
may therefore be shared by goroutines: siblings started from it concurrently
are all children of its block.

An error returned from a scope, or a panic escaping it, is recorded as an ERROR
log on the scope's block before the block is closed. Panics are re-raised.

# Correlation

Publish creates an instantaneous marker block under the current block and
returns a PublishHandle that any number of listeners, in this process or
another, can pass to Listen. RemoteCallBegin creates the placeholder block for
a call into another process; its id travels out of band and the callee enters
it with EnterRemote.

# Failure Policy

Tracing never fails the traced program. A call that needs an active block and
finds none logs a warning and does nothing.
*/
package flow
