package flow

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/domain/blockctx"
	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

type scopeKind int

const (
	kindRoot scopeKind = iota
	kindSub
	kindSpawn
	kindListen
	kindRemote
)

func (k scopeKind) String() string {
	switch k {
	case kindRoot:
		return "root"
	case kindSub:
		return "sub"
	case kindSpawn:
		return "spawn"
	case kindListen:
		return "listen"
	default:
		return "remote"
	}
}

// Scope is one entered block on one execution path. Its Context carries the
// block; the context it was started from does not. End it once; later calls
// are ignored. A nil Scope is returned when tracing was skipped; its methods
// are no-ops.
type Scope struct {
	tracer *Tracer
	kind   scopeKind
	ctx    context.Context
	stack  *blockctx.Stack
	bc     *blockctx.BlockContext
	ended  atomic.Bool
}

// Context returns the context carrying the scope's execution path
func (s *Scope) Context() context.Context {
	if s == nil {
		return context.Background()
	}
	return s.ctx
}

// Block returns the scope's block
func (s *Scope) Block() model.Block {
	if s == nil {
		return model.Block{}
	}
	return s.bc.Block()
}

// End closes the block. A non-nil err is logged on the block first.
func (s *Scope) End(err error) {
	if s == nil || !s.ended.CompareAndSwap(false, true) {
		return
	}
	t := s.tracer

	if err != nil {
		t.errorLog(s.bc, err)
	}

	if _, _, exitErr := s.stack.Exit(); exitErr != nil {
		t.logger.Error("Block exit without matching enter",
			zap.String("block_id", s.bc.Block().ID.String()),
			zap.String("block_name", s.bc.Block().Name),
			zap.Error(exitErr))
		return
	}

	id := s.bc.Block().ID
	at := t.now()
	t.OnBlockExited(id, at)
	// The caller records returned for a remote block
	if s.kind != kindRemote {
		t.OnBlockReturned(id, at)
	}

	if s.kind == kindRoot && t.flushOnRootExit {
		t.buf.RequestFlush()
	}
}

// enter derives a context with block on top of ctx's stack, records entry
// and returns the scope
func (t *Tracer) enter(ctx context.Context, block model.Block, kind scopeKind) *Scope {
	ctx, bc := blockctx.Enter(ctx, block)
	stack, _ := blockctx.FromContext(ctx)
	t.OnBlockEntered(block.ID, t.now())
	return &Scope{tracer: t, kind: kind, ctx: ctx, stack: stack, bc: bc}
}

// run executes fn inside s and ends s on every exit path
func run(s *Scope, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.End(panicError(r))
			panic(r)
		}
	}()

	err = fn(s.Context())
	s.End(err)
	return err
}

// ============================================================================
// Root
// ============================================================================

// StartRoot enters a block without a parent
func (t *Tracer) StartRoot(ctx context.Context, name string) (context.Context, *Scope) {
	block := t.OnBlockConstructed(name, "")
	s := t.enter(ctx, block, kindRoot)
	return s.ctx, s
}

// Root runs fn inside a new root block
func (t *Tracer) Root(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_, s := t.StartRoot(ctx, name)
	return run(s, fn)
}

// ============================================================================
// Sub
// ============================================================================

// StartSub enters a child of the current block and returns the context that
// carries it. Without an active block it returns ctx unchanged and a nil scope.
func (t *Tracer) StartSub(ctx context.Context, name string) (context.Context, *Scope) {
	parent, ok := t.current(ctx, "sub")
	if !ok {
		return ctx, nil
	}
	block := t.OnBlockConstructed(name, parent.Block().ID)
	t.reference(parent, model.RefSubBlock, block.ID, name)
	sc := t.enter(ctx, block, kindSub)
	return sc.ctx, sc
}

// Sub runs fn inside a child of the current block, or untraced when there is none
func (t *Tracer) Sub(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, s := t.StartSub(ctx, name)
	if s == nil {
		return fn(ctx)
	}
	return run(s, fn)
}

// ============================================================================
// Go
// ============================================================================

// Go runs fn on a new goroutine inside a child of the current block.
// The child and its TRACE_PARALLEL marker are created now, from a detached copy
// of the current block, so the caller's own chain does not move. The returned
// function waits for fn and yields its error.
func (t *Tracer) Go(ctx context.Context, name, message string, fn func(ctx context.Context) error) (wait func() error) {
	errc := make(chan error, 1)

	stack, _ := blockctx.FromContext(ctx)
	det, ok := stack.DetachCopy()
	if !ok {
		t.miss("go", "No active block, spawning untraced", zap.String("block_name", name))
		go func() {
			errc <- fn(ctx)
		}()
		return func() error { return <-errc }
	}

	copyCtx := det.Resume()
	block := t.OnBlockConstructed(name, det.Block().ID)
	t.reference(copyCtx, model.RefParallel, block.ID, message)

	go func() {
		var err error
		defer func() { errc <- err }()

		childCtx, _ := blockctx.Fresh(ctx)
		s := t.enter(childCtx, block, kindSpawn)
		err = run(s, fn)
	}()

	return func() error { return <-errc }
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
