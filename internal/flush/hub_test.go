package flush

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/resilience"
)

type capturedRequest struct {
	path     string
	encoding string
	body     []byte
}

// collectorStub records every request and answers with status
type collectorStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int32
}

func newCollectorStub(t *testing.T) (*collectorStub, *httptest.Server) {
	stub := &collectorStub{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		stub.mu.Lock()
		stub.requests = append(stub.requests, capturedRequest{
			path:     r.URL.Path,
			encoding: r.Header.Get("Content-Encoding"),
			body:     body,
		})
		stub.mu.Unlock()
		w.WriteHeader(int(atomic.LoadInt32(&stub.status)))
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *collectorStub) all() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func testHub(url string, mutate func(*HubConfig)) *HubHandler {
	cfg := DefaultHubConfig()
	cfg.BaseURL = url
	cfg.Retries = 0
	cfg.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHubHandler(cfg)
}

func TestHubEndpoints(t *testing.T) {
	stub, srv := newCollectorStub(t)
	// Trailing slash must not produce a double slash
	hub := testHub(srv.URL+"/", nil)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, hub.FlushBlocks(ctx, []model.Block{model.NewBlock("b1", "main", "", now)}))
	require.NoError(t, hub.FlushLogs(ctx, []model.BlockLog{model.NewPlainLog("l1", "b1", "", "hi", model.LevelInfo, now)}))
	require.NoError(t, hub.FlushEntered(ctx, Timestamps{"b1": now}))
	require.NoError(t, hub.FlushExited(ctx, Timestamps{"b1": now}))
	require.NoError(t, hub.FlushReturned(ctx, Timestamps{"b1": now}))

	var paths []string
	for _, r := range stub.all() {
		paths = append(paths, r.path)
	}
	assert.Equal(t, []string{
		"/api/v1/blocks",
		"/api/v1/logs",
		"/api/v1/block-entered",
		"/api/v1/block-exited",
		"/api/v1/block-returned",
	}, paths)
}

func TestHubWireBody(t *testing.T) {
	stub, srv := newCollectorStub(t)
	hub := testHub(srv.URL, nil)
	now := time.UnixMilli(1_700_000_000_123)

	require.NoError(t, hub.FlushBlocks(context.Background(), []model.Block{
		model.NewBlock("b1", "main", "", now),
		model.NewBlock("b2", "child", "b1", now),
	}))
	require.NoError(t, hub.FlushEntered(context.Background(), Timestamps{"b2": now}))

	reqs := stub.all()
	require.Len(t, reqs, 2)

	var blocks []map[string]any
	require.NoError(t, sonic.Unmarshal(reqs[0].body, &blocks))
	require.Len(t, blocks, 2)
	assert.Equal(t, "b1", blocks[0]["id"])
	assert.Nil(t, blocks[0]["parentBlockId"], "root block has null parent")
	assert.Equal(t, "b1", blocks[1]["parentBlockId"])
	assert.EqualValues(t, 1_700_000_000_123, blocks[1]["createdAt"])

	var entered map[string]int64
	require.NoError(t, sonic.Unmarshal(reqs[1].body, &entered))
	assert.Equal(t, map[string]int64{"b2": 1_700_000_000_123}, entered)
}

func TestHubGzip(t *testing.T) {
	stub, srv := newCollectorStub(t)
	hub := testHub(srv.URL, func(c *HubConfig) { c.Gzip = true })

	require.NoError(t, hub.FlushExited(context.Background(), Timestamps{"b1": time.UnixMilli(42)}))

	reqs := stub.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gzip", reqs[0].encoding)

	zr, err := gzip.NewReader(bytes.NewReader(reqs[0].body))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b1":42}`, string(plain))
}

func TestHubFailurePolicy(t *testing.T) {
	tests := []struct {
		name    string
		strict  bool
		wantErr bool
	}{
		{"lenient handler logs and drops", false, false},
		{"strict handler returns the failure", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub, srv := newCollectorStub(t)
			atomic.StoreInt32(&stub.status, http.StatusInternalServerError)
			hub := testHub(srv.URL, func(c *HubConfig) { c.Strict = tt.strict })

			err := hub.FlushBlocks(context.Background(), []model.Block{model.NewBlock("b1", "x", "", time.Now())})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDeliveryFailed)
				assert.Contains(t, err.Error(), "status 500")
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, stub.all(), 1)
		})
	}
}

func TestHubCircuitOpensOnUnavailableCollector(t *testing.T) {
	stub, srv := newCollectorStub(t)
	atomic.StoreInt32(&stub.status, http.StatusServiceUnavailable)

	breaker := resilience.New("test-hub", resilience.Settings{Threshold: 1, Cooldown: time.Minute})
	hub := testHub(srv.URL, func(c *HubConfig) {
		c.Strict = true
		c.Breaker = breaker
	})
	ts := Timestamps{"b1": time.Now()}

	require.Error(t, hub.FlushEntered(context.Background(), ts))
	assert.Equal(t, resilience.StateOpen, hub.BreakerState())

	err := hub.FlushEntered(context.Background(), ts)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, stub.all(), 1, "open circuit must not reach the collector")
}

func TestHubRateLimitHonoursContext(t *testing.T) {
	_, srv := newCollectorStub(t)
	hub := testHub(srv.URL, func(c *HubConfig) {
		c.Strict = true
		c.RateLimit = 0.001
	})
	ts := Timestamps{"b1": time.Now()}

	// First call consumes the single token
	require.NoError(t, hub.FlushReturned(context.Background(), ts))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := hub.FlushReturned(ctx, ts)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}
