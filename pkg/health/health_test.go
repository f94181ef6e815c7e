package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLiveness("ok", time.Second, passing)
	h.AddLiveness("db", time.Second, failing("connection refused"))

	w := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, w.Code, "checks start healthy")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	ctx := context.Background()
	db := h.probes[1]
	db.run(ctx)
	db.run(ctx)
	assert.Equal(t, http.StatusOK, get(t, h.LiveEndpoint).Code, "below failure threshold")

	db.run(ctx)
	w = get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadiness("redis", time.Second, passing)
	h.Add(Check{Name: "commerce", Kind: Readiness, Func: failing("502"), FailureThreshold: 1})

	w := get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, h.ReadyEndpoint).Code)
	assert.True(t, h.IsReady())

	h.probes[1].run(context.Background())
	w = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"commerce":"502"}}`, w.Body.String())
	assert.False(t, h.IsReady())
}

func TestLivenessIgnoresReadinessChecks(t *testing.T) {
	h := New()
	h.Add(Check{Name: "db", Kind: Readiness, Func: failing("down"), FailureThreshold: 1})
	h.probes[0].run(context.Background())

	assert.Equal(t, http.StatusOK, get(t, h.LiveEndpoint).Code)
}

func TestProbeRecovers(t *testing.T) {
	down := true
	h := New()
	h.Add(Check{
		Name: "flaky",
		Func: func(context.Context) error {
			if down {
				return errors.New("down")
			}
			return nil
		},
		FailureThreshold: 2,
		SuccessThreshold: 2,
	})
	p := h.probes[0]
	ctx := context.Background()

	p.run(ctx)
	p.run(ctx)
	assert.False(t, p.healthy.Load())

	down = false
	p.run(ctx)
	assert.False(t, p.healthy.Load(), "one success is below the threshold")
	assert.Nil(t, p.lastErr.Load())
	p.run(ctx)
	assert.True(t, p.healthy.Load())
}

func TestProbeTimeout(t *testing.T) {
	h := New()
	h.Add(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.probes[0].run(context.Background())

	msg, failed := h.probes[0].failure()
	assert.True(t, failed)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestRunConcurrentWithEndpoints(t *testing.T) {
	h := New()
	h.AddLiveness("live", time.Second, failing("err"))
	h.AddReadiness("ready", time.Second, passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, 5*time.Millisecond) }()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return get(t, h.LiveEndpoint).Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pingerFunc(passing))(context.Background()))
	assert.ErrorContains(t, PingCheck(pingerFunc(failing("refused")))(context.Background()), "ping: refused")
}

func TestHTTPCheck(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	check := HTTPCheck(srv.Client(), srv.URL)
	assert.NoError(t, check(context.Background()), "4xx means reachable")

	status = http.StatusBadGateway
	assert.ErrorContains(t, check(context.Background()), "status 502")
}
