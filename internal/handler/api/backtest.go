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

// BacktestRunner is the part of the backtest usecase the API needs.
type BacktestRunner interface {
	Run(ctx context.Context, p usecase.BacktestParams) (*models.Report, error)
	Get(ctx context.Context, runID string) (*models.Report, error)
	List(ctx context.Context, symbol string, limit int) ([]models.ReportMetadata, error)
}

type BacktestHandler struct {
	logger *xlogger.Logger
	svc    BacktestRunner
}

func NewBacktestHandler(logger *xlogger.Logger, svc BacktestRunner) *BacktestHandler {
	return &BacktestHandler{logger: logger, svc: svc}
}

func (h *BacktestHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/backtests", h.Run)
	g.GET("/backtests", h.List)
	g.GET("/backtests/:id", h.Get)
}

// Run executes a backtest synchronously and answers with the full report.
func (h *BacktestHandler) Run(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.svc.Run(c.Request().Context(), usecase.BacktestParams{
		Symbol:     req.Symbol,
		Timeframe:  domrepo.NormalizeTimeframe(req.Timeframe),
		Bars:       req.Bars,
		ConfigName: req.ConfigName,
		NoML:       req.NoML,
	})
	if err != nil {
		h.logger.Error("backtest usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.CreatedResponse(c, report)
}

func (h *BacktestHandler) Get(c echo.Context) error {
	req := &models.BacktestGetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.svc.Get(c.Request().Context(), req.ID)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *BacktestHandler) List(c echo.Context) error {
	req := &models.BacktestListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.svc.List(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("backtest list error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
