package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"go.uber.org/zap"
)

// DefaultIngressLimitPerMinute is the number of enqueue requests a single
// client may make per minute.
const DefaultIngressLimitPerMinute = 60

// SlotClaimer claims a non-blocking slot in a counting window.
type SlotClaimer interface {
	TryClaim(ctx context.Context, scope string, w ratelimit.Window) (bool, error)
}

// IngressWindow returns the per-client window protecting the enqueue
// endpoints.
func IngressWindow(perMinute int64) ratelimit.Window {
	return ratelimit.Window{
		Name:      "ingress",
		KeyPrefix: "tgdispatch:ingress:",
		Length:    time.Minute,
		Ceiling:   perMinute,
		TTL:       2 * time.Minute,
		MaxWait:   0,
	}
}

// RateLimiter returns a Huma middleware that limits requests based on client
// IP and User-Agent. Requests over the window's ceiling get a 429 and never
// wait for the next bucket.
func RateLimiter(
	api huma.API,
	counter SlotClaimer,
	window ratelimit.Window,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		key := clientKey(ctx)

		allowed, err := counter.TryClaim(ctx.Context(), key, window)
		if err != nil {
			logger.Error("ingress rate limit check failed",
				zap.String("path", operationPath(ctx)),
				zap.Error(err),
			)
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if !allowed {
			logger.Warn("ingress rate limit exceeded",
				zap.String("path", operationPath(ctx)),
				zap.String("method", ctx.Method()),
				zap.Int64("max", window.Ceiling),
				zap.Duration("window", window.Length),
				zap.String("client_ip", clientIP(ctx)),
			)
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next(ctx)
	}
}

func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	// First entry of X-Forwarded-For is the original client.
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	host := ctx.RemoteAddr()
	if host == "" {
		host = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}

	return ip
}
