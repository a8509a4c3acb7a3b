package api

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/usecase"
	"ictbot/pkg/cache"
	xhttp "ictbot/pkg/http"
	xlogger "ictbot/pkg/logger"
)

const signalCacheTTL = 15 * time.Second

// SignalSource evaluates the newest closed bar of a series.
type SignalSource interface {
	Latest(ctx context.Context, p usecase.SignalParams) (models.Signal, error)
}

// LiveSignals exposes the live trader's most recent decision.
type LiveSignals interface {
	LastSignal() (models.Signal, bool)
	Symbol() string
	Timeframe() domrepo.Timeframe
}

type SignalsHandler struct {
	logger *xlogger.Logger
	svc    SignalSource
	live   LiveSignals
	cache  cache.Service
}

// NewSignalsHandler wires the handler. live and c may be nil.
func NewSignalsHandler(logger *xlogger.Logger, svc SignalSource, live LiveSignals, c cache.Service) *SignalsHandler {
	return &SignalsHandler{logger: logger, svc: svc, live: live, cache: c}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals/latest", h.Latest)
	g.GET("/signals/live", h.Live)
}

func signalCacheKey(req *models.LatestSignalRequest) string {
	return cache.GenerateKey("signal", fmt.Sprintf("%s:%s:%d:%s", req.Symbol, req.Timeframe, req.Bars, req.ConfigName))
}

// Latest evaluates the newest bar on demand. Answers are cached briefly since
// a series only changes once per closed bar.
func (h *SignalsHandler) Latest(c echo.Context) error {
	req := &models.LatestSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Timeframe = string(domrepo.NormalizeTimeframe(req.Timeframe))
	ctx := c.Request().Context()

	key := signalCacheKey(req)
	if h.cache != nil {
		var cached models.Signal
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			h.logger.Debug("signal cache hit", xlogger.String("key", key))
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
			return xhttp.SuccessResponse(c, cached)
		}
	}

	sig, err := h.svc.Latest(ctx, usecase.SignalParams{
		Symbol:     req.Symbol,
		Timeframe:  domrepo.Timeframe(req.Timeframe),
		Bars:       req.Bars,
		ConfigName: req.ConfigName,
	})
	if err != nil {
		h.logger.Error("signal usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, sig, signalCacheTTL); err != nil {
			h.logger.Warn("signal cache set error", xlogger.Error(err))
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, sig)
}

// Live answers with the live trader's last evaluated bar.
func (h *SignalsHandler) Live(c echo.Context) error {
	if h.live == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("live trading is disabled"))
	}
	sig, ok := h.live.LastSignal()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no bar of %s %s evaluated yet", h.live.Symbol(), h.live.Timeframe()))
	}
	return xhttp.SuccessResponse(c, sig)
}
