package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	sweepEvery = time.Minute
	idleAfter  = 3 * time.Minute
)

// gRPC services whose methods are rate limited
const limitedService = "/clinic.v1.StatsService/"

// set by the gRPC-Web bridge on relayed calls
const forwardedFor = "x-forwarded-for"

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller key (usually an IP).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	clock    clockwork.Clock
}

type LimiterOption func(*RateLimiter)

func WithLimiterClock(clock clockwork.Clock) LimiterOption {
	return func(rl *RateLimiter) { rl.clock = clock }
}

// NewRateLimiter allows rps requests per second per key with the given
// burst. Idle keys are forgotten until ctx is cancelled.
func NewRateLimiter(ctx context.Context, rps float64, burst int, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		visitors: map[string]*visitor{},
		every:    rate.Limit(rps),
		burst:    burst,
		clock:    clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(rl)
	}
	go rl.janitor(ctx)
	return rl
}

func (rl *RateLimiter) janitor(ctx context.Context) {
	tick := rl.clock.NewTicker(sweepEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.Chan():
			rl.sweep(idleAfter)
		}
	}
}

func (rl *RateLimiter) sweep(idle time.Duration) {
	cutoff := rl.clock.Now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if !v.lastSeen.After(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// Allow spends one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.clock.Now()
	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.every, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()
	return v.bucket.AllowN(now, 1)
}

func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// clientKey identifies the caller for rate limiting. Calls relayed by the
// local gRPC-Web bridge share one connection, so for loopback peers the
// forwarded browser IP wins. Ports are dropped so reconnecting does not
// reset the bucket.
func clientKey(ctx context.Context) string {
	host := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host = p.Addr.String()
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if fwd := md.Get(forwardedFor); len(fwd) > 0 && fwd[0] != "" {
				return fwd[0]
			}
		}
	}
	return host
}

// RateLimit rejects StatsService calls past the limit with ResourceExhausted.
func RateLimit(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, limitedService) {
			return next(ctx, req)
		}
		if !rl.Allow(clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return next(ctx, req)
	}
}

// EchoRateLimit limits the routes it wraps by client IP.
func EchoRateLimit(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please try again later")
			}
			return next(c)
		}
	}
}
