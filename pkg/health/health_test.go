package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickProbe(p *probe, n int) {
	for range n {
		p.tick(context.Background())
	}
}

func TestProbeThresholds(t *testing.T) {
	var fail atomic.Bool
	p := newProbe("flaky", time.Second, func(_ context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	})

	require.True(t, p.healthy.Load(), "probes start healthy")

	fail.Store(true)
	tickProbe(p, failAfter-1)
	assert.True(t, p.healthy.Load(), "below the failure threshold")

	tickProbe(p, 1)
	assert.False(t, p.healthy.Load(), "threshold reached")

	fail.Store(false)
	tickProbe(p, recoverAfter)
	assert.True(t, p.healthy.Load(), "recovered")
}

func TestProbeFailureInterruptsStreak(t *testing.T) {
	var fail atomic.Bool
	p := newProbe("flaky", time.Second, func(_ context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	})

	fail.Store(true)
	tickProbe(p, failAfter-1)
	fail.Store(false)
	tickProbe(p, 1)
	fail.Store(true)
	tickProbe(p, failAfter-1)

	assert.True(t, p.healthy.Load(), "streak must be consecutive")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("dep", time.Second, func(_ context.Context) error { return nil })

	assert.False(t, h.IsReady(), "not ready before SetReady")

	h.SetReady(true)
	assert.True(t, h.IsReady())

	// Force the probe unhealthy.
	h.mu.RLock()
	p := h.readiness[0]
	h.mu.RUnlock()
	p.fn = func(_ context.Context) error { return errors.New("down") }
	tickProbe(p, failAfter)

	assert.False(t, h.IsReady(), "failing readiness check gates readiness")
}

func TestEndpoints(t *testing.T) {
	h := New()
	h.AddLivenessCheck("loop", time.Second, func(_ context.Context) error { return nil })
	h.AddReadinessCheck("dep", time.Second, func(_ context.Context) error { return nil })
	h.SetReady(true)

	t.Run("live ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var report probeReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "ok", report.Status)
		assert.Empty(t, report.Checks)
	})

	t.Run("ready reports failing check", func(t *testing.T) {
		h.mu.RLock()
		p := h.readiness[0]
		h.mu.RUnlock()
		p.fn = func(_ context.Context) error { return errors.New("connection refused") }
		tickProbe(p, failAfter)

		rec := httptest.NewRecorder()
		h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var report probeReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "unhealthy", report.Status)
		assert.Contains(t, report.Checks["dep"], "connection refused")
	})

	t.Run("ready gated by SetReady", func(t *testing.T) {
		h2 := New()
		rec := httptest.NewRecorder()
		h2.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(_ context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 },
		time.Second, 5*time.Millisecond, "check runs immediately and then on the ticker")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
