package blockctx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

func block(id, parent string) model.Block {
	return model.NewBlock(model.BlockID(id), "op-"+id, model.BlockID(parent), time.Now())
}

func TestStackEnterExitLIFO(t *testing.T) {
	s := NewStack()

	s, _ = s.Enter(block("a", ""))
	s, _ = s.Enter(block("b", "a"))
	s, _ = s.Enter(block("c", "b"))
	assert.Equal(t, 3, s.Depth())

	for _, want := range []model.BlockID{"c", "b", "a"} {
		var got *BlockContext
		var err error
		s, got, err = s.Exit()
		require.NoError(t, err)
		assert.Equal(t, want, got.Block().ID)
	}
	assert.Zero(t, s.Depth())

	_, _, err := s.Exit()
	assert.ErrorIs(t, err, ErrEmptyStack)
}

func TestStackIsPersistent(t *testing.T) {
	root, _ := NewStack().Enter(block("root", ""))
	left, _ := root.Enter(block("left", "root"))
	right, _ := root.Enter(block("right", "root"))

	top, _ := root.Current()
	assert.Equal(t, model.BlockID("root"), top.Block().ID, "entering from root leaves root unchanged")

	top, _ = left.Current()
	assert.Equal(t, model.BlockID("left"), top.Block().ID)
	top, _ = right.Current()
	assert.Equal(t, model.BlockID("right"), top.Block().ID)

	outer, _, err := left.Exit()
	require.NoError(t, err)
	assert.Same(t, root, outer)
}

func TestCurrentOnEmptyAndNilStack(t *testing.T) {
	var nilStack *Stack

	_, ok := nilStack.Current()
	assert.False(t, ok)

	_, _, err := nilStack.Exit()
	assert.ErrorIs(t, err, ErrNoStack)

	_, ok = NewStack().Current()
	assert.False(t, ok)

	// Entering on a nil stack starts one
	s, _ := nilStack.Enter(block("a", ""))
	assert.Equal(t, 1, s.Depth())
}

func TestAdvanceBuildsChain(t *testing.T) {
	s, bc := NewStack().Enter(block("a", ""))

	assert.True(t, bc.CurrentLogID().IsZero(), "fresh context has no current log")

	assert.Equal(t, model.LogID(""), bc.Advance("l1"))
	assert.Equal(t, model.LogID("l1"), bc.Advance("l2"))

	top, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, model.LogID("l2"), top.CurrentLogID())
}

func TestConcurrentAdvanceNeverSharesParent(t *testing.T) {
	bc := New(block("a", ""))

	const writers, each = 8, 200
	parents := make(chan model.LogID, writers*each)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				parents <- bc.Advance(model.LogID(fmt.Sprintf("w%d-%d", w, i)))
			}
		}()
	}
	wg.Wait()
	close(parents)

	seen := make(map[model.LogID]bool)
	for p := range parents {
		assert.False(t, seen[p], "parent %q handed out twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, writers*each)
}

func TestDetachCopyIsIndependent(t *testing.T) {
	s, orig := NewStack().Enter(block("a", ""))
	orig.Advance("l1")

	det, ok := s.DetachCopy()
	require.True(t, ok)
	assert.Equal(t, model.BlockID("a"), det.Block().ID)
	assert.Equal(t, model.LogID("l1"), det.CurrentLogID())

	// Mutating the original must not leak into the copy
	orig.Advance("l2")
	assert.Equal(t, model.LogID("l1"), det.CurrentLogID())

	// And the resumed copy advances on its own
	resumed := det.Resume()
	resumed.Advance("l9")
	assert.Equal(t, model.LogID("l2"), orig.CurrentLogID())
	assert.Equal(t, model.LogID("l1"), det.CurrentLogID())
}

func TestDetachCopyEmpty(t *testing.T) {
	_, ok := NewStack().DetachCopy()
	assert.False(t, ok)
}

func TestContextPlumbing(t *testing.T) {
	base := context.Background()

	_, ok := FromContext(base)
	assert.False(t, ok)

	s := NewStack()
	ctx := WithStack(base, s)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	inner, bc := Enter(ctx, block("a", ""))
	assert.Equal(t, model.BlockID("a"), bc.Block().ID)
	cur, ok := Current(inner)
	require.True(t, ok)
	assert.Same(t, bc, cur)

	_, ok = Current(ctx)
	assert.False(t, ok, "the outer context is not changed by Enter")

	fresh, fs := Fresh(inner)
	assert.NotSame(t, s, fs)
	_, ok = Current(fresh)
	assert.False(t, ok, "fresh path starts empty")
}
