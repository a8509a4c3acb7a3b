package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/usecase"
	xhttp "ictbot/pkg/http"
	xlogger "ictbot/pkg/logger"
)

// GridSearcher submits grid-search jobs and reports their state.
type GridSearcher interface {
	Submit(ctx context.Context, p usecase.GridSearchParams) (*models.GridJob, error)
	Get(ctx context.Context, id string) (*models.GridJob, error)
}

type GridSearchHandler struct {
	logger *xlogger.Logger
	svc    GridSearcher
}

func NewGridSearchHandler(logger *xlogger.Logger, svc GridSearcher) *GridSearchHandler {
	return &GridSearchHandler{logger: logger, svc: svc}
}

func (h *GridSearchHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/gridsearch", h.Submit)
	g.GET("/gridsearch/:id", h.Get)
}

func (h *GridSearchHandler) Submit(c echo.Context) error {
	req := &models.GridSearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.svc.Submit(c.Request().Context(), usecase.GridSearchParams{
		Symbol:     req.Symbol,
		Timeframe:  domrepo.NormalizeTimeframe(req.Timeframe),
		Bars:       req.Bars,
		ConfigName: req.ConfigName,
		Workers:    req.Workers,
		Top:        req.Top,
	})
	if err != nil {
		h.logger.Error("gridsearch submit error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/gridsearch/"+job.ID)
	return xhttp.AcceptedResponse(c, job)
}

func (h *GridSearchHandler) Get(c echo.Context) error {
	req := &models.GridSearchGetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.svc.Get(c.Request().Context(), req.ID)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, job)
}
