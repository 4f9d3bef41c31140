// Package api is the REST surface of the clinic server.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"clinic-management-api/internal/clinic"
	"clinic-management-api/internal/middleware"
	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
)

type Handler struct {
	svc     *clinic.Service
	agg     *stats.Aggregator
	secret  string
	limiter *middleware.RateLimiter
}

func NewHandler(svc *clinic.Service, agg *stats.Aggregator, secret string, limiter *middleware.RateLimiter) *Handler {
	return &Handler{svc: svc, agg: agg, secret: secret, limiter: limiter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	public := api.Group("/auth", middleware.EchoRateLimit(h.limiter))
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)

	authed := api.Group("", middleware.JWT(h.secret))
	authed.GET("/auth/me", h.Me)
	authed.GET("/users/stats", h.Stats)
	authed.GET("/users/health-trends", h.HealthTrends)
	authed.GET("/appointments", h.ListAppointments)
	authed.POST("/appointments", h.BookAppointment)
	authed.PUT("/appointments/:id/status", h.UpdateAppointmentStatus)
	authed.DELETE("/appointments/:id", h.CancelAppointment)
	authed.GET("/analyses", h.ListAnalyses)
	authed.POST("/analyses", h.CreateAnalysis)
	authed.GET("/reports", h.ListReports)
	authed.POST("/reports", h.CreateReport)

	admin := authed.Group("", middleware.RequireRole(model.RoleAdmin))
	admin.GET("/users", h.ListUsers)
	admin.GET("/users/:id", h.GetUser)
	admin.PUT("/users/:id", h.UpdateUser)
	admin.DELETE("/users/:id", h.DeleteUser)
}

func caller(c echo.Context) stats.Identity {
	return middleware.IdentityFrom(c.Request().Context())
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return nil
}

// -- auth --

func (h *Handler) Register(c echo.Context) error {
	var in clinic.RegisterInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sess, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "token": sess.Token, "user": sess.User})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var in loginRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": sess.Token, "user": sess.User})
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), caller(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u})
}

// -- dashboard --

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.agg.Compute(c.Request().Context(), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "stats": st})
}

func (h *Handler) HealthTrends(c echo.Context) error {
	trends, err := h.agg.HealthTrends(c.Request().Context(), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "trends": trends})
}

// -- users (admin) --

func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context(), model.Role(c.QueryParam("role")), c.QueryParam("search"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(users), "users": users})
}

func (h *Handler) GetUser(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u})
}

func (h *Handler) UpdateUser(c echo.Context) error {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	u, err := h.svc.UpdateUser(c.Request().Context(), c.Param("id"), fields)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u})
}

func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.svc.DeleteUser(c.Request().Context(), caller(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "User deleted"})
}

// -- appointments --

type bookRequest struct {
	Doctor          string `json:"doctor"`
	Patient         string `json:"patient"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	Reason          string `json:"reason"`
	Symptoms        string `json:"symptoms"`
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	in := clinic.BookInput{
		Doctor:   req.Doctor,
		Patient:  req.Patient,
		TimeSlot: req.AppointmentTime,
		Reason:   req.Reason,
		Notes:    req.Symptoms,
	}
	if req.AppointmentDate != "" {
		d, err := parseDate(req.AppointmentDate)
		if err != nil {
			return clinic.ValidationError{"Date must be YYYY-MM-DD"}
		}
		in.AppointmentDate = d
	}
	a, err := h.svc.BookAppointment(c.Request().Context(), caller(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "appointment": a})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	appts, err := h.svc.ListAppointments(c.Request().Context(), caller(c), model.Status(c.QueryParam("status")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(appts), "appointments": appts})
}

type statusRequest struct {
	Status model.Status `json:"status"`
	Notes  string       `json:"notes"`
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointmentStatus(c.Request().Context(), caller(c), c.Param("id"), req.Status, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "appointment": a})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	a, err := h.svc.CancelAppointment(c.Request().Context(), caller(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "appointment": a})
}

// -- analyses and reports --

func (h *Handler) CreateAnalysis(c echo.Context) error {
	var in clinic.AnalysisInput
	if err := bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.CreateAnalysis(c.Request().Context(), caller(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "analysis": a})
}

func (h *Handler) ListAnalyses(c echo.Context) error {
	out, err := h.svc.ListAnalyses(c.Request().Context(), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(out), "analyses": out})
}

func (h *Handler) CreateReport(c echo.Context) error {
	var in clinic.ReportInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := h.svc.CreateReport(c.Request().Context(), caller(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "report": r})
}

func (h *Handler) ListReports(c echo.Context) error {
	out, err := h.svc.ListReports(c.Request().Context(), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(out), "reports": out})
}
