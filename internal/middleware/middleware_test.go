package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"clinic-management-api/internal/auth"
	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
)

const secret = "test-secret"

func token(t *testing.T, uid string, role model.Role) string {
	t.Helper()
	tok, err := auth.MakeToken(uid, role, secret)
	if err != nil {
		t.Fatalf("make token: %v", err)
	}
	return tok
}

func expiredToken(t *testing.T) string {
	t.Helper()
	c := auth.Claims{
		UserID: "u1",
		Role:   model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func serve(t *testing.T, header string, mws ...echo.MiddlewareFunc) (stats.Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var got stats.Identity
	h := func(c echo.Context) error {
		got = IdentityFrom(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return got, h(c)
}

func TestJWT(t *testing.T) {
	id, err := serve(t, "Bearer "+token(t, "d1", model.RoleDoctor), JWT(secret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ID != "d1" || id.Role != model.RoleDoctor {
		t.Errorf("identity = %+v", id)
	}
}

func TestJWTMissingHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no bearer prefix", "Token abc"},
		{"bearer only", "Bearer "},
		{"basic", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serve(t, tt.header, JWT(secret))
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", err)
			}
		})
	}
}

func TestJWTBadAndExpired(t *testing.T) {
	_, err := serve(t, "Bearer garbage", JWT(secret))
	if !errors.Is(err, auth.ErrBadToken) {
		t.Errorf("garbage: %v", err)
	}
	_, err = serve(t, "Bearer "+expiredToken(t), JWT(secret))
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("expired: %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role model.Role
		ok   bool
	}{
		{model.RoleAdmin, true},
		{model.RoleDoctor, false},
		{model.RolePatient, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			_, err := serve(t, "Bearer "+token(t, "x", tt.role), JWT(secret), RequireRole(model.RoleAdmin))
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				var he *echo.HTTPError
				if !errors.As(err, &he) || he.Code != http.StatusForbidden {
					t.Fatalf("expected 403, got %v", err)
				}
			}
		})
	}
}

func TestGRPCAuth(t *testing.T) {
	interceptor := Auth(secret)
	info := &grpc.UnaryServerInfo{FullMethod: "/clinic.v1.StatsService/GetDashboardStats"}

	var got stats.Identity
	next := func(ctx context.Context, req any) (any, error) {
		got = IdentityFrom(ctx)
		return "ok", nil
	}

	md := metadata.Pairs("authorization", "Bearer "+token(t, "p1", model.RolePatient))
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if _, err := interceptor(ctx, nil, info, next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "p1" || got.Role != model.RolePatient {
		t.Errorf("identity = %+v", got)
	}

	for name, ctx := range map[string]context.Context{
		"no metadata": context.Background(),
		"no token":    metadata.NewIncomingContext(context.Background(), metadata.MD{}),
		"bad token":   metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope")),
	} {
		_, err := interceptor(ctx, nil, info, next)
		if status.Code(err) != codes.Unauthenticated {
			t.Errorf("%s: code = %v", name, status.Code(err))
		}
	}
}

func TestGRPCAuthSkipsHealth(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err := Auth(secret)(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("health check should be open: %v", err)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := clockwork.NewFakeClock()
	rl := NewRateLimiter(ctx, 1, 2, WithLimiterClock(clk))

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own bucket")
	}
	clk.Advance(time.Second)
	if !rl.Allow("a") {
		t.Fatal("bucket should refill after a second")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := clockwork.NewFakeClock()
	rl := NewRateLimiter(ctx, 1, 1, WithLimiterClock(clk))
	rl.Allow("old")
	clk.Advance(2 * time.Minute)
	rl.Allow("fresh")

	rl.sweep(idleAfter - time.Minute)
	if n := rl.tracked(); n != 1 {
		t.Fatalf("tracked = %d after sweep, want 1", n)
	}
}

func TestGRPCRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interceptor := RateLimit(NewRateLimiter(ctx, 0.001, 1))
	info := &grpc.UnaryServerInfo{FullMethod: "/clinic.v1.StatsService/GetHealthTrends"}
	next := func(ctx context.Context, req any) (any, error) { return nil, nil }

	if _, err := interceptor(context.Background(), nil, info, next); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := interceptor(context.Background(), nil, info, next)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %v", status.Code(err))
	}
}

func peerCtx(addr string, fwd string) context.Context {
	host, port, _ := net.SplitHostPort(addr)
	p, _ := strconv.Atoi(port)
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(host), Port: p}})
	if fwd != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("x-forwarded-for", fwd))
	}
	return ctx
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"relayed by local bridge", peerCtx("127.0.0.1:50512", "203.0.113.7"), "203.0.113.7"},
		{"bridge without header", peerCtx("127.0.0.1:50512", ""), "127.0.0.1"},
		{"remote peer drops port", peerCtx("198.51.100.2:61000", ""), "198.51.100.2"},
		{"remote peer cannot spoof", peerCtx("198.51.100.2:61000", "203.0.113.7"), "198.51.100.2"},
		{"no peer", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clientKey(tt.ctx); got != tt.want {
				t.Errorf("clientKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGRPCRateLimitPerBrowser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interceptor := RateLimit(NewRateLimiter(ctx, 0.001, 1))
	info := &grpc.UnaryServerInfo{FullMethod: "/clinic.v1.StatsService/GetDashboardStats"}
	next := func(ctx context.Context, req any) (any, error) { return nil, nil }
	call := func(c context.Context) codes.Code {
		_, err := interceptor(c, nil, info, next)
		return status.Code(err)
	}

	// two browsers behind the same bridge connection get separate buckets
	if c := call(peerCtx("127.0.0.1:40000", "203.0.113.7")); c != codes.OK {
		t.Fatalf("browser A: %v", c)
	}
	if c := call(peerCtx("127.0.0.1:40000", "203.0.113.8")); c != codes.OK {
		t.Fatalf("browser B: %v", c)
	}
	if c := call(peerCtx("127.0.0.1:40000", "203.0.113.7")); c != codes.ResourceExhausted {
		t.Fatalf("browser A again: %v", c)
	}

	// reconnecting from a new port does not refill the bucket
	if c := call(peerCtx("198.51.100.2:1000", "")); c != codes.OK {
		t.Fatalf("native first: %v", c)
	}
	if c := call(peerCtx("198.51.100.2:2000", "")); c != codes.ResourceExhausted {
		t.Fatalf("native reconnect: %v", c)
	}
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	h := Recovery(zerolog.Nop())(func(c echo.Context) error { panic("boom") })

	err := h(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, entry)
	}
	buf.Reset()
	return out
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Logger(zerolog.New(&buf)), Recovery(zerolog.Nop()))
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/missing", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "gone") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })

	get := func(path string) int {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	get("/items/42?page=2&access_token=abc")
	lines := logLines(t, &buf)
	if len(lines) != 1 || lines[0]["level"] != "info" {
		t.Fatalf("ok request: %v", lines)
	}
	params, _ := lines[0]["params"].(map[string]any)
	if params["id"] != "42" || params["page"] != "2" || params["access_token"] != "[REDACTED]" {
		t.Errorf("params = %v", params)
	}

	if code := get("/missing"); code != http.StatusNotFound {
		t.Errorf("missing: %d", code)
	}
	lines = logLines(t, &buf)
	if len(lines) != 1 || lines[0]["level"] != "warn" || lines[0]["status"] != 404.0 {
		t.Errorf("failed request: %v", lines)
	}
	if _, ok := lines[0]["params"]; ok {
		t.Errorf("empty params logged: %v", lines[0])
	}

	if code := get("/boom"); code != http.StatusInternalServerError {
		t.Errorf("panic: %d", code)
	}
	lines = logLines(t, &buf)
	if len(lines) != 1 || lines[0]["level"] != "error" || lines[0]["status"] != 500.0 {
		t.Errorf("panicking request: %v", lines)
	}
}
