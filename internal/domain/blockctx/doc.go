/*
Package blockctx tracks which block is active on an execution path.

# Overview

Every execution path (a goroutine running one logical flow) sees a Stack of
BlockContext values, innermost block on top. The stack travels inside a
context.Context, so it follows the call chain without goroutine-local storage.

Stacks are persistent. Entering a block returns a derived context whose stack
has one more frame; the parent context keeps its own stack. Two goroutines that
enter blocks from the same ctx each get their own inner frame and share only
the outer blocks:

	ctx, bc := blockctx.Enter(ctx, block)
	// ... work under bc ...
	// leaving the block means going back to the outer ctx

A BlockContext holds the current-log pointer of its block's chain and is safe
for concurrent use; Advance reads the previous log and moves forward in one
step.

To continue a flow on another goroutine as a new path, take a Detached copy
with DetachCopy and resume it there:

	det, ok := stack.DetachCopy()
	go func() {
		ctx, _ := blockctx.Fresh(ctx)
		// create a child block parented under det.Block().ID and Enter it
	}()

The copy carries the block and its current-log pointer at copy time. From then
on the original and the copy advance independently.
*/
package blockctx
