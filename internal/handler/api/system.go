package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"ictbot/internal/repository"
	xhttp "ictbot/pkg/http"
	xlogger "ictbot/pkg/logger"
)

// CacheAdmin lists and purges the historical bar cache.
type CacheAdmin interface {
	List(ctx context.Context) ([]repository.CacheEntry, error)
	Purge(ctx context.Context, all bool) (int, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type SystemHandler struct {
	logger *xlogger.Logger
	cache  CacheAdmin
	checks map[string]HealthCheck
}

// NewSystemHandler wires the handler. admin may be nil when no bar cache is configured.
func NewSystemHandler(logger *xlogger.Logger, admin CacheAdmin, checks map[string]HealthCheck) *SystemHandler {
	return &SystemHandler{logger: logger, cache: admin, checks: checks}
}

func (h *SystemHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/cache", h.ListCache)
	g.DELETE("/cache", h.PurgeCache)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *SystemHandler) Health(c echo.Context) error {
	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", xlogger.String("check", name), xlogger.Error(err))
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	return xhttp.DataResponse(c, status, res)
}

func (h *SystemHandler) ListCache(c echo.Context) error {
	if h.cache == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("bar cache is disabled"))
	}
	entries, err := h.cache.List(c.Request().Context())
	if err != nil {
		h.logger.Error("cache list error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

type purgeRequest struct {
	All bool `query:"all"`
}

// PurgeCache deletes stale bar sets, or all of them with ?all=true.
func (h *SystemHandler) PurgeCache(c echo.Context) error {
	if h.cache == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("bar cache is disabled"))
	}
	req := &purgeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	n, err := h.cache.Purge(c.Request().Context(), req.All)
	if err != nil {
		h.logger.Error("cache purge error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("bar cache purged", xlogger.Int("deleted", n), xlogger.Bool("all", req.All))
	return xhttp.SuccessResponse(c, map[string]int{"deleted": n})
}
