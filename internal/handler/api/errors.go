package api

import (
	"errors"
	"net/http"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/services/mlfilter"
	"ictbot/internal/usecase"
	"ictbot/pkg/config"
	xhttp "ictbot/pkg/http"
)

// appError maps usecase errors onto API errors. Unknown errors pass through
// and render as a bare 500.
func appError(err error) error {
	switch {
	case errors.Is(err, domrepo.ErrReportNotFound):
		return xhttp.NotFoundError("backtest report not found").WithError(err)
	case errors.Is(err, usecase.ErrGridJobNotFound):
		return xhttp.NotFoundError("grid search job not found").WithError(err)
	case errors.Is(err, config.ErrStrategyNotFound):
		return xhttp.NewAppError("ERR_UNKNOWN_CONFIG", "config_name", "strategy config not found", http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrDataUnavailable):
		return xhttp.UnavailableError("market data unavailable").WithError(err)
	case errors.Is(err, mlfilter.ErrModelIncompatible):
		return xhttp.NewAppError("ERR_MODEL_INCOMPATIBLE", "model", "stored model does not match the feature schema", http.StatusConflict).WithError(err)
	case errors.Is(err, usecase.ErrQueueDisabled):
		return xhttp.UnavailableError("job queue is not configured").WithError(err)
	}
	return err
}
