package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flush"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/monitoring"
)

func testBlock(i int) model.Block {
	return model.NewBlock(model.BlockID(fmt.Sprintf("b%05d", i)), "op", "", time.Now())
}

// quietConfig never flushes on its own unless a test asks for it
func quietConfig() Config {
	return Config{
		Threshold:    1_000_000,
		Interval:     time.Hour,
		DrainTimeout: 2 * time.Second,
		Workers:      4,
	}
}

// blockingHook parks every call of cat until the returned release func runs
func blockingHook(t *testing.T, cat flush.Category) (func(context.Context, flush.Category) error, func()) {
	release := make(chan struct{})
	var once sync.Once
	releaseFn := func() { once.Do(func() { close(release) }) }
	t.Cleanup(releaseFn)

	return func(_ context.Context, c flush.Category) error {
		if c == cat {
			<-release
		}
		return nil
	}, releaseFn
}

func TestSnapshotExactlyOnceUnderConcurrency(t *testing.T) {
	c := newCore(flush.Nop{}, quietConfig())

	const producers = 8
	const perProducer = 2_000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				n := p*perProducer + i
				c.pushBlock(testBlock(n))
				c.pushEntered(model.BlockID(fmt.Sprintf("b%05d", n)), time.Now())
			}
		}(p)
	}

	seenBlocks := make(map[model.BlockID]int)
	seenEntered := make(map[model.BlockID]int)
	collect := func(s Snapshot) {
		for _, b := range s.Blocks {
			seenBlocks[b.ID]++
		}
		for id := range s.Entered {
			seenEntered[id]++
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			collect(c.snapshotAndClear())
		}
	}
	collect(c.snapshotAndClear())

	assert.Len(t, seenBlocks, producers*perProducer)
	assert.Len(t, seenEntered, producers*perProducer)
	for id, n := range seenBlocks {
		require.Equal(t, 1, n, "block %s delivered %d times", id, n)
	}
	for id, n := range seenEntered {
		require.Equal(t, 1, n, "entered %s delivered %d times", id, n)
	}
	assert.Equal(t, int64(0), c.pending())
}

func TestSnapshotAndClearEmptiesBuffer(t *testing.T) {
	c := newCore(flush.Nop{}, quietConfig())

	c.pushBlock(testBlock(1))
	c.pushLog(model.NewPlainLog("l1", "b00001", "", "x", model.LevelInfo, time.Now()))
	c.pushExited("b00001", time.Now())
	assert.Equal(t, int64(3), c.pending())

	snap := c.snapshotAndClear()
	assert.Equal(t, 3, snap.Len())
	assert.True(t, c.snapshotAndClear().IsEmpty())
	assert.Equal(t, int64(0), c.pending())
}

func TestAsyncThresholdTriggersExactlyOneFlush(t *testing.T) {
	const threshold = 10

	rec := flush.NewRecorder()
	cfg := quietConfig()
	cfg.Threshold = threshold
	buf := NewAsync(rec, cfg)
	defer buf.Close(context.Background())

	for i := 0; i < threshold-1; i++ {
		buf.PushBlock(testBlock(i))
	}
	assert.Never(t, func() bool { return rec.Calls(flush.CategoryBlocks) > 0 },
		50*time.Millisecond, 5*time.Millisecond, "T-1 items must not flush")

	buf.PushBlock(testBlock(threshold - 1))
	assert.Eventually(t, func() bool { return rec.Calls(flush.CategoryBlocks) == 1 },
		time.Second, 5*time.Millisecond)

	assert.Len(t, rec.Blocks(), threshold)
	assert.Equal(t, int64(0), buf.Stats().Pending)
}

func TestAsyncPeriodicFlush(t *testing.T) {
	rec := flush.NewRecorder()
	cfg := quietConfig()
	cfg.Interval = 20 * time.Millisecond
	buf := NewAsync(rec, cfg)
	defer buf.Close(context.Background())

	buf.PushEntered("b1", time.Now())

	assert.Eventually(t, func() bool { return len(rec.Entered()) == 1 },
		time.Second, 5*time.Millisecond)
}

func TestAsyncDrainDeliversEverything(t *testing.T) {
	rec := flush.NewRecorder()
	buf := NewAsync(rec, quietConfig())

	now := time.Now()
	for i := 0; i < 25; i++ {
		b := testBlock(i)
		buf.PushBlock(b)
		buf.PushLog(model.NewPlainLog(model.LogID(fmt.Sprintf("l%d", i)), b.ID, "", "m", model.LevelInfo, now))
		buf.PushEntered(b.ID, now)
		buf.PushExited(b.ID, now)
		buf.PushReturned(b.ID, now)
	}

	require.NoError(t, buf.Close(context.Background()))

	assert.Len(t, rec.Blocks(), 25)
	assert.Len(t, rec.Logs(), 25)
	assert.Len(t, rec.Entered(), 25)
	assert.Len(t, rec.Exited(), 25)
	assert.Len(t, rec.Returned(), 25)
	for _, cat := range flush.Categories {
		assert.Equal(t, 1, rec.Calls(cat), "one call per category for %s", cat)
	}
}

func TestAsyncDrainTimeoutIsBounded(t *testing.T) {
	rec := flush.NewRecorder()
	hook, _ := blockingHook(t, flush.CategoryBlocks)
	rec.Hook = hook

	cfg := quietConfig()
	cfg.DrainTimeout = 100 * time.Millisecond
	buf := NewAsync(rec, cfg)

	buf.PushBlock(testBlock(1))

	start := time.Now()
	err := buf.Close(context.Background())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrDrainTimeout)
	assert.Less(t, elapsed, 600*time.Millisecond)
	assert.Equal(t, 1, buf.Stats().InFlight)
}

func TestAsyncDrainWaitsForInFlightDispatch(t *testing.T) {
	rec := flush.NewRecorder()
	hook, release := blockingHook(t, flush.CategoryLogs)
	rec.Hook = hook

	buf := NewAsync(rec, quietConfig())
	defer buf.Close(context.Background())

	buf.PushLog(model.NewPlainLog("l1", "b1", "", "x", model.LevelInfo, time.Now()))
	buf.RequestFlush()

	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	require.NoError(t, buf.Flush(context.Background()))
	assert.Len(t, rec.Logs(), 1)
}

func TestAsyncSaturatedPoolRunsOnCaller(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg)

	rec := flush.NewRecorder()
	hook, release := blockingHook(t, flush.CategoryBlocks)
	rec.Hook = hook

	cfg := quietConfig()
	cfg.Workers = 1
	cfg.Metrics = metrics
	buf := NewAsync(rec, cfg)
	defer buf.Close(context.Background())

	buf.PushBlock(testBlock(1))
	buf.PushLog(model.NewPlainLog("l1", "b00001", "", "x", model.LevelInfo, time.Now()))

	// The blocks call occupies the only worker, so logs are delivered inline
	buf.RequestFlush()
	assert.Equal(t, 1, rec.Calls(flush.CategoryLogs))
	assert.Equal(t, 0, rec.Calls(flush.CategoryBlocks))
	assert.Equal(t, int64(1), metrics.Snapshot().SyncFallbacks)

	release()
	require.NoError(t, buf.Flush(context.Background()))
	assert.Equal(t, 1, rec.Calls(flush.CategoryBlocks))
}

func TestAsyncStrictFailuresSurfaceOnDrain(t *testing.T) {
	errCollector := errors.New("collector rejected batch")

	rec := flush.NewRecorder()
	rec.Hook = func(_ context.Context, c flush.Category) error {
		if c == flush.CategoryLogs {
			return errCollector
		}
		return nil
	}
	buf := NewAsync(rec, quietConfig())
	defer buf.Close(context.Background())

	buf.PushBlock(testBlock(1))
	buf.PushLog(model.NewPlainLog("l1", "b00001", "", "x", model.LevelInfo, time.Now()))

	err := buf.Flush(context.Background())
	assert.ErrorIs(t, err, errCollector)
	assert.Len(t, rec.Blocks(), 1, "other categories are unaffected")

	// Failures are reported once
	assert.NoError(t, buf.Flush(context.Background()))
}

func TestStrictFailuresAreBounded(t *testing.T) {
	rec := flush.NewRecorder()
	var n int
	var mu sync.Mutex
	rec.Hook = func(context.Context, flush.Category) error {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Errorf("%w: attempt %d", flush.ErrDeliveryFailed, n)
	}

	cfg := quietConfig()
	cfg.Threshold = 1
	buf := NewSync(rec, cfg)

	const attempts = 5000
	for i := 0; i < attempts; i++ {
		buf.PushBlock(testBlock(i))
	}
	buf.PushExited("b00000", time.Now())

	err := buf.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, flush.ErrDeliveryFailed)

	var failures *FailureError
	require.ErrorAs(t, err, &failures)
	assert.Equal(t, attempts+1, failures.Total)
	assert.Equal(t, attempts, failures.ByCategory[flush.CategoryBlocks])
	assert.Equal(t, 1, failures.ByCategory[flush.CategoryExited])
	require.Len(t, failures.Errors, 2*keptFailures)
	assert.Contains(t, failures.Errors[0].Error(), "attempt 1")
	assert.Contains(t, failures.Errors[len(failures.Errors)-1].Error(), fmt.Sprintf("attempt %d", attempts+1))
	assert.Contains(t, err.Error(), fmt.Sprintf("%d more", attempts+1-2*keptFailures))

	assert.NoError(t, buf.Flush(context.Background()))
}

func TestFailureLogKeepsFirstAndRecent(t *testing.T) {
	var f failureLog
	assert.NoError(t, f.take())

	for i := 1; i <= 11; i++ {
		f.record(flush.CategoryLogs, fmt.Errorf("e%d", i))
	}
	err := f.take()

	var failures *FailureError
	require.ErrorAs(t, err, &failures)
	var got []string
	for _, e := range failures.Errors {
		got = append(got, e.Error())
	}
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e8", "e9", "e10", "e11"}, got)
	assert.Equal(t, map[flush.Category]int{flush.CategoryLogs: 11}, failures.ByCategory)
	assert.NoError(t, f.take())
}

func TestAsyncHandlerPanicIsContained(t *testing.T) {
	rec := flush.NewRecorder()
	rec.Hook = func(context.Context, flush.Category) error { panic("handler bug") }

	buf := NewAsync(rec, quietConfig())
	defer buf.Close(context.Background())

	buf.PushExited("b1", time.Now())

	err := buf.Flush(context.Background())
	assert.ErrorIs(t, err, flush.ErrDeliveryFailed)
}

func TestAsyncCloseTwice(t *testing.T) {
	buf := NewAsync(flush.Nop{}, quietConfig())

	require.NoError(t, buf.Close(context.Background()))
	assert.True(t, buf.Stats().Closed)
	assert.ErrorIs(t, buf.Close(context.Background()), ErrClosed)
}

func TestAsyncConcurrentProducersLoseNothing(t *testing.T) {
	rec := flush.NewRecorder()
	cfg := quietConfig()
	cfg.Threshold = 64
	cfg.Interval = 10 * time.Millisecond
	buf := NewAsync(rec, cfg)

	const producers = 16
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				buf.PushBlock(testBlock(p*perProducer + i))
			}
		}(p)
	}
	wg.Wait()

	require.NoError(t, buf.Close(context.Background()))

	blocks := rec.Blocks()
	assert.Len(t, blocks, producers*perProducer)
	seen := make(map[model.BlockID]bool, len(blocks))
	for _, b := range blocks {
		require.False(t, seen[b.ID], "duplicate %s", b.ID)
		seen[b.ID] = true
	}
}

func TestSyncThresholdDeliversOnCaller(t *testing.T) {
	rec := flush.NewRecorder()
	cfg := quietConfig()
	cfg.Threshold = 3
	buf := NewSync(rec, cfg)

	buf.PushBlock(testBlock(1))
	buf.PushBlock(testBlock(2))
	assert.Equal(t, 0, rec.Calls(flush.CategoryBlocks))

	buf.PushBlock(testBlock(3))
	assert.Equal(t, 1, rec.Calls(flush.CategoryBlocks))
	assert.Len(t, rec.Blocks(), 3)

	buf.PushReturned("b00003", time.Now())
	require.NoError(t, buf.Close(context.Background()))
	assert.Len(t, rec.Returned(), 1)
	assert.ErrorIs(t, buf.Close(context.Background()), ErrClosed)
}

func TestSyncDrainTimeoutIsBounded(t *testing.T) {
	rec := flush.NewRecorder()
	hook, _ := blockingHook(t, flush.CategoryEntered)
	rec.Hook = hook

	cfg := quietConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	buf := NewSync(rec, cfg)

	buf.PushEntered("b1", time.Now())

	start := time.Now()
	err := buf.Flush(context.Background())
	assert.ErrorIs(t, err, ErrDrainTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestInflightWait(t *testing.T) {
	f := newInflight()
	require.NoError(t, f.wait(context.Background()), "idle tracker returns at once")

	f.add()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.wait(ctx), context.DeadlineExceeded)

	go f.done()
	assert.NoError(t, f.wait(context.Background()))
	assert.Equal(t, 0, f.count())
}
