package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/vfl/internal/buffer"
	"github.com/GriffinCanCode/vfl/internal/flush"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/config"
	"github.com/GriffinCanCode/vfl/internal/logging"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Flush.Handler = config.HandlerNop
	cfg.Tracer.FlushOnRootExit = false
	cfg.Buffer.Interval = time.Hour
	cfg.Buffer.DrainTimeout = 2 * time.Second
	return cfg
}

func traceOnce(t *testing.T, a *Agent) {
	t.Helper()
	err := a.Tracer.Root(context.Background(), "job", func(ctx context.Context) error {
		a.Tracer.Info(ctx, "step")
		return a.Tracer.Sub(ctx, "child", func(ctx context.Context) error {
			a.Tracer.Warn(ctx, "careful")
			return nil
		})
	})
	require.NoError(t, err)
}

func TestNewWithRecorder(t *testing.T) {
	rec := flush.NewRecorder()
	a, err := New(testConfig(), WithHandler(rec), WithLogger(logging.NewNop()))
	require.NoError(t, err)

	traceOnce(t, a)
	require.NoError(t, a.Shutdown(context.Background()))

	assert.Len(t, rec.Blocks(), 2)
	assert.Len(t, rec.Logs(), 3)
	assert.Len(t, rec.Entered(), 2)
	assert.Len(t, rec.Returned(), 2)
	assert.EqualValues(t, 11, a.Metrics.Snapshot().ItemsPushed)
}

func TestNewSelectsBufferMode(t *testing.T) {
	for _, mode := range []string{config.ModeAsync, config.ModeSync} {
		t.Run(mode, func(t *testing.T) {
			cfg := testConfig()
			cfg.Buffer.Mode = mode

			a, err := New(cfg, WithLogger(logging.NewNop()))
			require.NoError(t, err)
			defer a.Shutdown(context.Background())

			assert.Equal(t, mode, a.Buffer.Stats().Mode)
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Buffer.Workers = 0

	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewHandler(t *testing.T) {
	logger := logging.NewNop()

	tests := []struct {
		name    string
		cfg     config.FlushConfig
		want    any
		wantErr bool
	}{
		{name: "hub", cfg: config.FlushConfig{Handler: config.HandlerHub, HubURL: "http://collector:8080"}, want: &flush.HubHandler{}},
		{name: "spool", cfg: config.FlushConfig{Handler: config.HandlerSpool, SpoolDir: t.TempDir()}, want: &flush.SpoolHandler{}},
		{name: "log", cfg: config.FlushConfig{Handler: config.HandlerLog}, want: &flush.LogHandler{}},
		{name: "nop", cfg: config.FlushConfig{Handler: config.HandlerNop}, want: flush.Nop{}},
		{name: "unknown", cfg: config.FlushConfig{Handler: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.cfg, logger)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, h)
		})
	}
}

func TestHubPipelineDeliversEveryCategory(t *testing.T) {
	var (
		mu    sync.Mutex
		paths = map[string]int{}
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer collector.Close()

	cfg := testConfig()
	cfg.Flush.Handler = config.HandlerHub
	cfg.Flush.HubURL = collector.URL + "/"
	cfg.Flush.Strict = true

	a, err := New(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	traceOnce(t, a)
	require.NoError(t, a.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	for _, p := range []string{"/api/v1/blocks", "/api/v1/logs", "/api/v1/block-entered", "/api/v1/block-exited", "/api/v1/block-returned"} {
		assert.Equal(t, 1, paths[p], p)
	}
}

func TestSpoolPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Flush.Handler = config.HandlerSpool
	cfg.Flush.SpoolDir = t.TempDir()

	a, err := New(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	traceOnce(t, a)
	require.NoError(t, a.Shutdown(context.Background()))

	spool, err := flush.ReadSpool(cfg.Flush.SpoolDir)
	require.NoError(t, err)
	assert.Empty(t, spool.Bad)
	assert.Len(t, spool.Files, len(flush.Categories))

	items := 0
	for _, f := range spool.Files {
		items += f.Batch.Len()
	}
	assert.Equal(t, 11, items)
}

func TestAdminServer(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Enabled = true
	cfg.Admin.Port = 0

	a, err := New(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	require.NotEmpty(t, a.AdminAddr())

	resp, err := http.Get("http://" + a.AdminAddr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, "http://"+a.AdminAddr()+"/log/level", strings.NewReader(`{"level":"debug"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, zapcore.DebugLevel, a.Logger.Level())

	require.NoError(t, a.Shutdown(context.Background()))
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, err := New(testConfig(), WithLogger(logging.NewNop()))
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
	assert.True(t, a.Buffer.Stats().Closed)
}

func TestShutdownReportsDrainTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	rec := flush.NewRecorder()
	rec.Hook = func(context.Context, flush.Category) error {
		<-release
		return nil
	}
	cfg := testConfig()
	cfg.Buffer.DrainTimeout = 50 * time.Millisecond

	a, err := New(cfg, WithHandler(rec), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	traceOnce(t, a)

	err = a.Shutdown(context.Background())
	assert.ErrorIs(t, err, buffer.ErrDrainTimeout)
}
