package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clinic-management-api/internal/auth"
	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
)

type ctxKey string

const (
	UserIDKey ctxKey = "uid"
	RoleKey   ctxKey = "role"
)

// skip auth for these
var open = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
}

func WithIdentity(ctx context.Context, id stats.Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.ID)
	return context.WithValue(ctx, RoleKey, id.Role)
}

// IdentityFrom returns the authenticated caller. The zero Identity means
// nobody was authenticated.
func IdentityFrom(ctx context.Context) stats.Identity {
	uid, _ := ctx.Value(UserIDKey).(string)
	role, _ := ctx.Value(RoleKey).(model.Role)
	return stats.Identity{ID: uid, Role: role}
}

func bearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func Auth(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		// token from Authorization: Bearer <jwt>
		raw := ""
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = bearer(vals[0])
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		ctx = WithIdentity(ctx, stats.Identity{ID: claims.UserID, Role: claims.Role})
		return next(ctx, req)
	}
}

// JWT authenticates REST requests. Token failures are returned as the auth
// package errors so the error handler can tell expiry from forgery.
func JWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c.Request().Header.Get("Authorization"))
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, no token")
			}

			claims, err := auth.ParseToken(raw, secret)
			if err != nil {
				return err
			}

			ctx := WithIdentity(c.Request().Context(), stats.Identity{ID: claims.UserID, Role: claims.Role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireRole must run after JWT.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c.Request().Context())
			for _, r := range roles {
				if id.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("User role %s is not authorized to access this route", id.Role))
		}
	}
}
