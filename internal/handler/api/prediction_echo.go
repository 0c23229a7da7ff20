package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "FinSight/internal/domain/models"
	svcmetrics "FinSight/internal/service/metrics"
	"FinSight/internal/service/ratelimit"
	"FinSight/internal/usecase"
	xhttp "FinSight/pkg/http"
	xlogger "FinSight/pkg/logger"
)

// Per-remote request budget for the API group.
const (
	rateLimitBurst  = 20
	rateLimitPerSec = 10
)

// PredictionEchoHandler exposes the engine over HTTP. Handlers stay
// thin: bind and validate the request, call the usecase, map errors.
type PredictionEchoHandler struct {
	logger *xlogger.Logger
	engine *usecase.PredictionUseCase
	alerts *usecase.AlertRegistry
}

func NewPredictionEchoHandler(logger *xlogger.Logger, engine *usecase.PredictionUseCase, alerts *usecase.AlertRegistry) *PredictionEchoHandler {
	return &PredictionEchoHandler{logger: logger, engine: engine, alerts: alerts}
}

func (h *PredictionEchoHandler) RegisterRoutes(e *echo.Echo) {
	svcmetrics.Register()
	g := e.Group("/api", rateLimitByRemote(ratelimit.New()))
	g.GET("/prediction", h.Prediction)
	g.GET("/chart", h.Chart)
	g.GET("/history", h.History)
	g.GET("/alerts", h.ListAlerts)
	g.POST("/alerts", h.CreateAlert)
	g.DELETE("/alerts/:id", h.DeleteAlert)
	g.GET("/alerts/triggered", h.TriggeredAlerts)
}

func (h *PredictionEchoHandler) Prediction(c echo.Context) error {
	start := time.Now()
	req := &models.PredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.engine.GetPrediction(c.Request().Context(), req.Ticker, req.Lookback)
	if err != nil {
		return h.engineError(c, "prediction", err)
	}
	svcmetrics.EndpointLatency.WithLabelValues("prediction").Observe(time.Since(start).Seconds())
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionEchoHandler) Chart(c echo.Context) error {
	start := time.Now()
	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	series, err := h.engine.GetChartSeries(c.Request().Context(), req.Ticker, req.Lookback)
	if err != nil {
		return h.engineError(c, "chart", err)
	}
	svcmetrics.EndpointLatency.WithLabelValues("chart").Observe(time.Since(start).Seconds())
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, series)
}

func (h *PredictionEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// An explicit since (RFC3339 or unix seconds) wins over the hours window.
	since := time.Now().Add(-time.Duration(req.Hours) * time.Hour)
	since = xhttp.ParseTimeDefault(c.QueryParam("since"), since)
	rows, err := h.engine.History(c.Request().Context(), req.Ticker, since, req.Limit)
	if err != nil {
		return h.engineError(c, "history", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PredictionEchoHandler) ListAlerts(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.alerts.List())
}

func (h *PredictionEchoHandler) CreateAlert(c echo.Context) error {
	req := &models.AlertCreateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rule, err := h.alerts.Register(req.Ticker, models.Comparison(req.Comparison), req.Threshold)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.CreatedResponse(c, rule)
}

func (h *PredictionEchoHandler) DeleteAlert(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("alert id required"))
	}
	if !h.alerts.Remove(id) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", id))
	}
	return xhttp.NoContentResponse(c)
}

func (h *PredictionEchoHandler) TriggeredAlerts(c echo.Context) error {
	fired := h.alerts.Triggered()
	if limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0); limit > 0 && limit < len(fired) {
		fired = fired[:limit]
	}
	return xhttp.SuccessResponse(c, fired)
}

func rateLimitByRemote(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow(c.RealIP(), rateLimitBurst, rateLimitPerSec) {
				return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests))
			}
			return next(c)
		}
	}
}

// engineError maps domain sentinels to HTTP statuses.
func (h *PredictionEchoHandler) engineError(c echo.Context, endpoint string, err error) error {
	svcmetrics.EndpointErrors.WithLabelValues(endpoint).Inc()
	h.logger.Error(endpoint+" usecase error", xlogger.Error(err))

	switch {
	case errors.Is(err, models.ErrInsufficientHistory), errors.Is(err, models.ErrInsufficientSamples):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), http.StatusUnprocessableEntity).WithError(err))
	case errors.Is(err, models.ErrDataProvider):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_PROVIDER", "", "market data provider unavailable", http.StatusBadGateway).WithError(err))
	case errors.Is(err, models.ErrNoModelAvailable):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_NO_MODEL", "", "no model variant available", http.StatusServiceUnavailable).WithError(err))
	case errors.Is(err, models.ErrTrainingTimeout):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_TRAINING_TIMEOUT", "", "model training still in progress, retry shortly", http.StatusAccepted).WithError(err))
	default:
		return xhttp.AppErrorResponse(c, err)
	}
}
