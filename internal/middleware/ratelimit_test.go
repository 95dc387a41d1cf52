package middleware_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/tg-dispatch/internal/middleware"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"github.com/serroba/tg-dispatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testHostAddr       = "192.168.1.1:12345"
	testUserAgent      = "TestAgent/1.0"
	testUserAgentShort = "TestAgent"
)

var errMultipartNotSupported = errors.New("multipart not supported in mock")

func newTestAPI() huma.API {
	return humachi.New(chi.NewMux(), huma.DefaultConfig("Test", "1.0.0"))
}

type mockCounter struct {
	allowed bool
	err     error
	scopes  []string
}

func (m *mockCounter) TryClaim(_ context.Context, scope string, _ ratelimit.Window) (bool, error) {
	m.scopes = append(m.scopes, scope)

	return m.allowed, m.err
}

func (m *mockCounter) lastScope() string {
	if len(m.scopes) == 0 {
		return ""
	}

	return m.scopes[len(m.scopes)-1]
}

// mockHumaContext implements huma.Context for testing.
type mockHumaContext struct {
	headers    map[string]string
	host       string
	remoteAddr string
	written    []byte
	statusCode int
	method     string
	operation  *huma.Operation
}

func newMockHumaContext() *mockHumaContext {
	return &mockHumaContext{
		headers: make(map[string]string),
		method:  "POST",
	}
}

func (m *mockHumaContext) Operation() *huma.Operation {
	return m.operation
}
func (m *mockHumaContext) Context() context.Context              { return context.Background() }
func (m *mockHumaContext) TLS() *tls.ConnectionState             { return nil }
func (m *mockHumaContext) Version() huma.ProtoVersion            { return huma.ProtoVersion{} }
func (m *mockHumaContext) Method() string                        { return m.method }
func (m *mockHumaContext) Host() string                          { return m.host }
func (m *mockHumaContext) RemoteAddr() string                    { return m.remoteAddr }
func (m *mockHumaContext) URL() url.URL                          { return url.URL{} }
func (m *mockHumaContext) Param(_ string) string                 { return "" }
func (m *mockHumaContext) Query(_ string) string                 { return "" }
func (m *mockHumaContext) Header(name string) string             { return m.headers[name] }
func (m *mockHumaContext) EachHeader(_ func(name, value string)) {}
func (m *mockHumaContext) BodyReader() io.Reader                 { return nil }
func (m *mockHumaContext) GetMultipartForm() (*multipart.Form, error) {
	return nil, errMultipartNotSupported
}
func (m *mockHumaContext) SetReadDeadline(_ time.Time) error { return nil }
func (m *mockHumaContext) SetStatus(code int)                { m.statusCode = code }
func (m *mockHumaContext) Status() int                       { return m.statusCode }
func (m *mockHumaContext) AppendHeader(_, _ string)          {}
func (m *mockHumaContext) SetHeader(_, _ string)             {}
func (m *mockHumaContext) BodyWriter() io.Writer             { return &mockBodyWriter{ctx: m} }

type mockBodyWriter struct {
	ctx *mockHumaContext
}

func (w *mockBodyWriter) Write(p []byte) (n int, err error) {
	w.ctx.written = append(w.ctx.written, p...)

	return len(p), nil
}

func newRequestContext(host, ua string) *mockHumaContext {
	ctx := newMockHumaContext()
	ctx.host = host
	ctx.headers["User-Agent"] = ua

	return ctx
}

func TestIngressWindow(t *testing.T) {
	w := middleware.IngressWindow(middleware.DefaultIngressLimitPerMinute)

	assert.Equal(t, int64(60), w.Ceiling)
	assert.Equal(t, time.Minute, w.Length)
	assert.Equal(t, 2*time.Minute, w.TTL)
	assert.Equal(t, "tgdispatch:ingress:abc:0", w.Key("abc", time.Unix(30, 0)))
}

func TestRateLimiter(t *testing.T) {
	window := middleware.IngressWindow(5)

	t.Run("allows request when a slot is claimed", func(t *testing.T) {
		counter := &mockCounter{allowed: true}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		ctx := newRequestContext(testHostAddr, testUserAgent)
		nextCalled := false

		mw(ctx, func(_ huma.Context) {
			nextCalled = true
		})

		assert.True(t, nextCalled, "next should be called when allowed")
	})

	t.Run("returns 429 when window is full", func(t *testing.T) {
		counter := &mockCounter{allowed: false}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		ctx := newRequestContext(testHostAddr, testUserAgent)
		nextCalled := false

		mw(ctx, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled, "next should not be called when rate limited")
		assert.Equal(t, http.StatusTooManyRequests, ctx.statusCode)
		assert.Contains(t, string(ctx.written), "rate limit")
	})

	t.Run("returns 500 when store is unavailable", func(t *testing.T) {
		counter := &mockCounter{err: &ratelimit.StoreError{Op: "incr", Err: errors.New("dial tcp: refused")}}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		ctx := newRequestContext(testHostAddr, testUserAgent)
		nextCalled := false

		mw(ctx, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled, "next should not be called when the store fails")
		assert.Equal(t, http.StatusInternalServerError, ctx.statusCode)
	})

	t.Run("uses IP and User-Agent for client key", func(t *testing.T) {
		counter := &mockCounter{allowed: true}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		mw(newRequestContext(testHostAddr, testUserAgent), func(_ huma.Context) {})
		key1 := counter.lastScope()

		mw(newRequestContext(testHostAddr, testUserAgent), func(_ huma.Context) {})
		key2 := counter.lastScope()

		mw(newRequestContext(testHostAddr, "DifferentAgent/2.0"), func(_ huma.Context) {})
		key3 := counter.lastScope()

		assert.Equal(t, key1, key2, "same IP and User-Agent should produce same key")
		assert.NotEqual(t, key1, key3, "different User-Agent should produce different key")
		assert.Len(t, key1, 64, "key should be a hex sha256 digest")
	})

	t.Run("extracts IP from X-Forwarded-For header", func(t *testing.T) {
		counter := &mockCounter{allowed: true}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		ctx := newRequestContext("10.0.0.1:12345", testUserAgentShort)
		ctx.headers["X-Forwarded-For"] = "203.0.113.195, 70.41.3.18, 150.172.238.178"
		mw(ctx, func(_ huma.Context) {})
		keyWithXFF := counter.lastScope()

		ctx2 := newRequestContext("10.0.0.2:54321", testUserAgentShort)
		ctx2.headers["X-Forwarded-For"] = "203.0.113.195"
		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, keyWithXFF, counter.lastScope(), "should use first IP from X-Forwarded-For")
	})

	t.Run("extracts IP from X-Real-IP header", func(t *testing.T) {
		counter := &mockCounter{allowed: true}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		ctx := newRequestContext("10.0.0.1:12345", testUserAgentShort)
		ctx.headers["X-Real-IP"] = "203.0.113.100"
		mw(ctx, func(_ huma.Context) {})
		keyWithXRI := counter.lastScope()

		ctx2 := newRequestContext("10.0.0.2:54321", testUserAgentShort)
		ctx2.headers["X-Real-IP"] = "203.0.113.100"
		mw(ctx2, func(_ huma.Context) {})

		assert.Equal(t, keyWithXRI, counter.lastScope(), "should use X-Real-IP when present")
	})

	t.Run("ignores the source port", func(t *testing.T) {
		counter := &mockCounter{allowed: true}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		mw(newRequestContext("192.168.1.1:1000", testUserAgentShort), func(_ huma.Context) {})
		key1 := counter.lastScope()

		mw(newRequestContext("192.168.1.1:2000", testUserAgentShort), func(_ huma.Context) {})

		assert.Equal(t, key1, counter.lastScope())
	})

	t.Run("uses host as-is without a port", func(t *testing.T) {
		counter := &mockCounter{allowed: true}
		mw := middleware.RateLimiter(newTestAPI(), counter, window, zap.NewNop())

		mw(newRequestContext("192.168.1.1", testUserAgentShort), func(_ huma.Context) {})
		key1 := counter.lastScope()

		mw(newRequestContext("192.168.1.1:8080", testUserAgentShort), func(_ huma.Context) {})

		assert.Equal(t, key1, counter.lastScope())
	})
}

func TestRateLimiter_WithWindowedCounter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	memory := store.NewRateLimitMemoryStore(func() time.Time { return now })
	counter := ratelimit.NewWindowedCounter(memory, staticClock{now: now})

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	mw := middleware.RateLimiter(api, counter, middleware.IngressWindow(3), zap.NewNop())

	huma.Register(api, huma.Operation{
		OperationID: "enqueue",
		Method:      http.MethodPost,
		Path:        "/enqueue",
		Middlewares: huma.Middlewares{mw},
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		return &struct{}{}, nil
	})

	send := func(ua string) int {
		req := httptest.NewRequest(http.MethodPost, "/enqueue", nil)
		req.Header.Set("User-Agent", ua)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec.Code
	}

	for i := range 3 {
		require.Equal(t, http.StatusNoContent, send(testUserAgent), "request %d", i+1)
	}

	assert.Equal(t, http.StatusTooManyRequests, send(testUserAgent))
	assert.Equal(t, http.StatusNoContent, send("OtherClient/1.0"), "other clients have their own window")
}

type staticClock struct {
	now time.Time
}

func (c staticClock) Now() time.Time { return c.now }

func (c staticClock) Sleep(_ context.Context, _ time.Duration) error { return nil }
