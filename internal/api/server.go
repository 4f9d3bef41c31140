package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"clinic-management-api/internal/middleware"
)

// GRPCWebPrefix is where browser gRPC-Web calls are mounted.
const GRPCWebPrefix = "/clinic.v1.StatsService"

type ServerConfig struct {
	Dev         bool
	CORSOrigins []string
	// GRPCWeb, when set, serves gRPC-Web under GRPCWebPrefix. It handles
	// its own CORS.
	GRPCWeb http.Handler
}

func NewServer(h *Handler, logger zerolog.Logger, cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger, cfg.Dev)

	// Recovery sits inside Logger so panics still get a request line
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, GRPCWebPrefix+"/")
		},
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.GRPCWeb != nil {
		e.Any(GRPCWebPrefix+"/*", echo.WrapHandler(cfg.GRPCWeb))
	}

	h.RegisterRoutes(e.Group("/api"))
	return e
}
