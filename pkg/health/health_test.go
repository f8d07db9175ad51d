package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type response struct {
	Status string
	Checks map[string]string
}

func serve(t *testing.T, h *Health, path string) (int, response) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var r response
	err := jx.DecodeBytes(rec.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			s, err := d.Str()
			r.Status = s
			return err
		case "checks":
			r.Checks = map[string]string{}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				s, err := d.Str()
				r.Checks[string(key)] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return rec.Code, r
}

// failing returns a check that fails until healed.
type failing struct {
	mu  sync.Mutex
	err error
}

func (f *failing) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *failing) check(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	f := &failing{}
	h.Liveness("db", f.check, WithThresholds(2, 1))
	c := h.liveness[0]

	code, body := serve(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	f.set(errors.New("connection refused"))
	c.probe(context.Background())
	code, _ = serve(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code, "one failure is below the threshold")

	c.probe(context.Background())
	code, body = serve(t, h, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Readiness("cache", func(context.Context) error { return nil })

	code, body := serve(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, body = serve(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.Checks)
	assert.True(t, h.IsReady())
}

func TestCheck_Thresholds(t *testing.T) {
	f := &failing{err: errors.New("timeout")}
	c := newCheck("redis", f.check, []Option{WithThresholds(3, 2)})
	ctx := context.Background()

	for i := range 2 {
		assert.False(t, c.probe(ctx), "failure %d", i+1)
	}
	assert.True(t, c.probe(ctx), "third failure flips")
	assert.False(t, c.healthy.Load())

	f.set(nil)
	assert.False(t, c.probe(ctx))
	assert.False(t, c.healthy.Load(), "one success is below the threshold")
	assert.True(t, c.probe(ctx))
	assert.True(t, c.healthy.Load())
	assert.Nil(t, c.lastErr.Load())
}

func TestCheck_FailureResetsSuccessStreak(t *testing.T) {
	f := &failing{err: errors.New("down")}
	c := newCheck("x", f.check, []Option{WithThresholds(1, 2)})
	ctx := context.Background()

	c.probe(ctx)
	f.set(nil)
	c.probe(ctx)
	f.set(errors.New("down again"))
	c.probe(ctx)
	f.set(nil)
	c.probe(ctx)
	assert.False(t, c.healthy.Load())
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, []Option{WithTimeout(10 * time.Millisecond), WithThresholds(1, 1)})

	assert.True(t, c.probe(context.Background()))
	msg, failed := c.failure()
	assert.True(t, failed)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestRun_LogsStateChanges(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), zap.New(core)))
	defer cancel()

	h := New()
	f := &failing{err: errors.New("refused")}
	h.Readiness("postgres", f.check, WithThresholds(1, 1))

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Health check failing").Len() > 0
	}, time.Second, 5*time.Millisecond)

	f.set(nil)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Health check recovered").Len() > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	entry := logs.FilterMessage("Health check failing").All()[0]
	assert.Equal(t, "postgres", entry.ContextMap()["check"])
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.Liveness("goroutines", Goroutines(1_000_000))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go func() { _ = h.Run(ctx, time.Millisecond) }()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				h.SetReady(true)
				_ = h.IsReady()
				rec := httptest.NewRecorder()
				h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
			}
		}()
	}
	wg.Wait()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Goroutines(1_000_000)(ctx))
	assert.Error(t, Goroutines(0)(ctx))

	assert.NoError(t, GCPause(time.Hour)(ctx))

	assert.NoError(t, Ping(func(context.Context) error { return nil })(ctx))
	err := Ping(func(context.Context) error { return errors.New("eof") })(ctx)
	assert.ErrorContains(t, err, "ping: eof")
}

func TestReadyEndpoint_HealthyPing(t *testing.T) {
	h := New()
	h.Readiness("postgres", Ping(func(context.Context) error { return nil }), WithThresholds(1, 1))
	h.SetReady(true)

	for range 3 {
		h.readiness[0].probe(context.Background())
	}
	code, body := serve(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}
