package api

import (
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/usecase"
	xhttp "TradePilot/pkg/http"
	xlogger "TradePilot/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DashboardHandler exposes the bot's state over HTTP: latest signals,
// account performance, the optimizer's best configuration, recent trades,
// and manual position close.
type DashboardHandler struct {
	logger    *xlogger.Logger
	snapshots *usecase.SnapshotStore
	perf      *usecase.PerformanceTracker
	closer    *usecase.PositionCloser
	results   repository.ResultStore
	trades    repository.TradeStore
}

func NewDashboardHandler(logger *xlogger.Logger, snapshots *usecase.SnapshotStore,
	perf *usecase.PerformanceTracker, closer *usecase.PositionCloser,
	results repository.ResultStore, trades repository.TradeStore) *DashboardHandler {
	return &DashboardHandler{
		logger:    logger,
		snapshots: snapshots,
		perf:      perf,
		closer:    closer,
		results:   results,
		trades:    trades,
	}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/performance", h.Performance)
	g.GET("/trades", h.Trades)
	g.GET("/optimization/best", h.BestConfiguration)
	g.POST("/positions/:id/close", h.ClosePosition)
}

type signalsRequest struct {
	Instrument string `query:"instrument"`
}

func (h *DashboardHandler) Signals(c echo.Context) error {
	req := &signalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Instrument != "" {
		snap, ok := h.snapshots.Get(req.Instrument)
		if !ok {
			return xhttp.NotFoundResponse(c, "no snapshot for "+req.Instrument)
		}
		return xhttp.SuccessResponse(c, snap)
	}
	return xhttp.SuccessResponse(c, h.snapshots.All())
}

func (h *DashboardHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.perf.Summary())
}

type tradesRequest struct {
	Limit int `query:"limit" default:"50" validate:"min=1,max=500"`
}

func (h *DashboardHandler) Trades(c echo.Context) error {
	req := &tradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.trades == nil {
		return xhttp.SuccessResponse(c, []struct{}{})
	}

	trades, err := h.trades.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("recent trades query failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, trades)
}

func (h *DashboardHandler) BestConfiguration(c echo.Context) error {
	if h.results == nil {
		return xhttp.NotFoundResponse(c, "no optimization results available")
	}

	best, ok, err := h.results.Best(c.Request().Context())
	if err != nil {
		h.logger.Error("best configuration query failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if !ok {
		return xhttp.NotFoundResponse(c, "no optimization results available")
	}
	return xhttp.SuccessResponse(c, best)
}

func (h *DashboardHandler) ClosePosition(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "position id required")
	}

	pos, err := h.closer.Close(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("close position failed",
			xlogger.String("id", id), xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, pos)
}
