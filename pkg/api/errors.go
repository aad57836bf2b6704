package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/store"
)

// mapError maps engine errors to HTTP responses. Storage failures are the
// one class that turns into 503: ingestion and reasoning suspend rather
// than drop appends silently.
func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blackboard.ErrUnknownCycle):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, store.ErrAppendFailed), errors.Is(err, store.ErrIndexCorrupt):
		slog.Error("storage failure", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, blackboard.ErrCycleSealed):
		return echo.NewHTTPError(http.StatusConflict, "cycle already sealed")
	}
	slog.Error("unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
