package blockctx

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

var (
	// ErrNoStack is returned when the execution path has no stack at all
	ErrNoStack = errors.New("no block context stack on this execution path")
	// ErrEmptyStack is returned when exit is called without a matching enter
	ErrEmptyStack = errors.New("block context stack is empty")
)

// BlockContext is the live, process-local state of one entered block.
// It is safe for concurrent use.
type BlockContext struct {
	block model.Block

	mu           sync.Mutex
	currentLogID model.LogID
}

// New creates a context for a block with no logs yet
func New(block model.Block) *BlockContext {
	return &BlockContext{block: block}
}

// Block returns the wrapped block
func (c *BlockContext) Block() model.Block {
	return c.block
}

// CurrentLogID returns the most recently appended log in this block's chain
func (c *BlockContext) CurrentLogID() model.LogID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLogID
}

// Advance moves the chain forward to logID and returns the log it follows.
// Reading the parent and moving forward is one step, so concurrent writers
// on the same block never share a parent.
func (c *BlockContext) Advance(logID model.LogID) (parent model.LogID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, c.currentLogID = c.currentLogID, logID
	return parent
}

// Detach snapshots the context into an independent value
func (c *BlockContext) Detach() Detached {
	return Detached{block: c.block, currentLogID: c.CurrentLogID()}
}

// Detached is an immutable copy of a BlockContext that may cross goroutines
type Detached struct {
	block        model.Block
	currentLogID model.LogID
}

// Block returns the copied block
func (d Detached) Block() model.Block {
	return d.block
}

// CurrentLogID returns the current-log pointer at copy time
func (d Detached) CurrentLogID() model.LogID {
	return d.currentLogID
}

// Resume turns the copy into a live context on the receiving path
func (d Detached) Resume() *BlockContext {
	return &BlockContext{block: d.block, currentLogID: d.currentLogID}
}

// ============================================================================
// Stack
// ============================================================================

// Stack is the chain of active contexts of one execution path, innermost on
// top. A Stack is never modified: Enter and Exit return new stacks that share
// the outer frames. Goroutines handed the same context.Context therefore see
// the same outer blocks but never each other's inner ones.
type Stack struct {
	top   *BlockContext
	outer *Stack
	depth int
}

// NewStack creates an empty stack
func NewStack() *Stack {
	return &Stack{}
}

// Enter returns a stack with a new context for block on top, and that context
func (s *Stack) Enter(block model.Block) (*Stack, *BlockContext) {
	bc := New(block)
	return s.Push(bc), bc
}

// Push returns a stack with bc on top, used when resuming a detached copy
func (s *Stack) Push(bc *BlockContext) *Stack {
	return &Stack{top: bc, outer: s, depth: s.Depth() + 1}
}

// Current returns the innermost context, false when the stack is empty
func (s *Stack) Current() (*BlockContext, bool) {
	if s == nil || s.top == nil {
		return nil, false
	}
	return s.top, true
}

// Exit returns the stack without its innermost context, and that context
func (s *Stack) Exit() (*Stack, *BlockContext, error) {
	if s == nil {
		return nil, nil, ErrNoStack
	}
	if s.top == nil {
		return s, nil, ErrEmptyStack
	}
	outer := s.outer
	if outer == nil {
		outer = NewStack()
	}
	return outer, s.top, nil
}

// DetachCopy snapshots the innermost context for hand-off to another path
func (s *Stack) DetachCopy() (Detached, bool) {
	top, ok := s.Current()
	if !ok {
		return Detached{}, false
	}
	return top.Detach(), true
}

// Depth returns the number of active contexts
func (s *Stack) Depth() int {
	if s == nil {
		return 0
	}
	return s.depth
}

// ============================================================================
// context.Context plumbing
// ============================================================================

type stackKey struct{}

// WithStack returns a copy of ctx carrying the stack
func WithStack(ctx context.Context, s *Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, s)
}

// FromContext returns the stack carried by ctx
func FromContext(ctx context.Context) (*Stack, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(stackKey{}).(*Stack)
	return s, ok && s != nil
}

// Enter returns a copy of ctx whose stack has a new context for block on top.
// ctx itself is unchanged.
func Enter(ctx context.Context, block model.Block) (context.Context, *BlockContext) {
	s, _ := FromContext(ctx)
	next, bc := s.Enter(block)
	return WithStack(ctx, next), bc
}

// Fresh starts a new execution path: ctx keeps its values but gets an empty stack
func Fresh(ctx context.Context) (context.Context, *Stack) {
	s := NewStack()
	return WithStack(ctx, s), s
}

// Current returns the innermost context of ctx's stack
func Current(ctx context.Context) (*BlockContext, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.Current()
}
