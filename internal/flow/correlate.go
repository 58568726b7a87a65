package flow

import (
	"context"
	"sync/atomic"

	"github.com/GriffinCanCode/vfl/internal/domain/blockctx"
	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

// PublishHandle is the transferable reference to a published event
type PublishHandle struct {
	BlockID model.BlockID `json:"blockId"`
	Block   model.Block   `json:"block"`
}

// Valid reports whether the handle refers to a published block
func (h PublishHandle) Valid() bool {
	return !h.BlockID.IsZero()
}

// ============================================================================
// Publish / Listen
// ============================================================================

// Publish creates an event block under the current block, marks it entered
// and exited at once and returns the handle listeners need. Without an
// active block the handle is invalid.
func (t *Tracer) Publish(ctx context.Context, name, message string) PublishHandle {
	publisher, ok := t.current(ctx, "publish")
	if !ok {
		return PublishHandle{}
	}

	block := t.OnBlockConstructed(name, publisher.Block().ID)
	t.reference(publisher, model.RefPublish, block.ID, message)

	at := t.now()
	t.OnBlockEntered(block.ID, at)
	t.OnBlockExited(block.ID, at)

	return PublishHandle{BlockID: block.ID, Block: block}
}

// StartListen enters a listener block parented under the published block on
// a fresh execution path. The LISTEN_EVENT log belongs to the published block.
func (t *Tracer) StartListen(ctx context.Context, handle PublishHandle, name string) (context.Context, *Scope) {
	if !handle.Valid() {
		t.miss("listen", "Invalid publish handle, listening untraced")
		return ctx, nil
	}

	ctx, _ = blockctx.Fresh(ctx)
	block := t.OnBlockConstructed(name, handle.BlockID)

	// Each listener starts its own chain on the published block
	t.reference(blockctx.New(handle.Block), model.RefListen, block.ID, name)

	s := t.enter(ctx, block, kindListen)
	return s.ctx, s
}

// Listen runs fn inside a listener block for handle
func (t *Tracer) Listen(ctx context.Context, handle PublishHandle, name string, fn func(ctx context.Context) error) error {
	ctx, s := t.StartListen(ctx, handle, name)
	if s == nil {
		return fn(ctx)
	}
	return run(s, fn)
}

// ============================================================================
// Remote calls
// ============================================================================

// RemoteHandle is the caller side of a call into another process
type RemoteHandle struct {
	tracer *Tracer
	caller *blockctx.BlockContext
	block  model.Block
	done   atomic.Bool
}

// BlockID returns the id to transmit to the callee, empty when untraced
func (h *RemoteHandle) BlockID() model.BlockID {
	if h == nil {
		return ""
	}
	return h.block.ID
}

// Block returns the placeholder block
func (h *RemoteHandle) Block() model.Block {
	if h == nil {
		return model.Block{}
	}
	return h.block
}

// Finish records the call outcome. A non-nil err is logged on the caller's
// block. The remote block is marked returned either way, but never entered or
// exited here: the callee records those.
func (h *RemoteHandle) Finish(err error) {
	if h == nil || !h.done.CompareAndSwap(false, true) {
		return
	}

	if err != nil {
		h.tracer.errorLog(h.caller, err)
	}
	h.tracer.OnBlockReturned(h.block.ID, h.tracer.now())
}

// RemoteCallBegin creates the placeholder block for a remote call and a
// REMOTE_TRACE log in the caller's chain. Without an active block it returns nil.
func (t *Tracer) RemoteCallBegin(ctx context.Context, name string) *RemoteHandle {
	caller, ok := t.current(ctx, "remote")
	if !ok {
		return nil
	}

	block := t.OnBlockConstructed(name, caller.Block().ID)
	t.reference(caller, model.RefRemote, block.ID, name)

	return &RemoteHandle{tracer: t, caller: caller, block: block}
}

// Remote wraps a call into another process. fn receives the id to transmit;
// it is empty when there is no active block.
func (t *Tracer) Remote(ctx context.Context, name string, fn func(ctx context.Context, remote model.BlockID) error) (err error) {
	h := t.RemoteCallBegin(ctx, name)
	defer func() {
		if r := recover(); r != nil {
			h.Finish(panicError(r))
			panic(r)
		}
		h.Finish(err)
	}()

	return fn(ctx, h.BlockID())
}

// StartRemote enters, on the callee side, a block created by a remote caller.
// The block is not queued again; only its entered and exited times are.
func (t *Tracer) StartRemote(ctx context.Context, remote model.BlockID, name string) (context.Context, *Scope) {
	ctx, _ = blockctx.Fresh(ctx)
	block := model.Block{ID: remote, Name: name}
	s := t.enter(ctx, block, kindRemote)
	return s.ctx, s
}

// EnterRemote runs fn inside the remote block on the callee side
func (t *Tracer) EnterRemote(ctx context.Context, remote model.BlockID, name string, fn func(ctx context.Context) error) error {
	if remote.IsZero() {
		t.miss("enter_remote", "No remote block id, running untraced")
		return fn(ctx)
	}
	_, s := t.StartRemote(ctx, remote, name)
	return run(s, fn)
}
