package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"BlockPulse/internal/domain/models"
	domrepo "BlockPulse/internal/domain/repository"
	"BlockPulse/internal/usecase"
	xhttp "BlockPulse/pkg/http"
	xlogger "BlockPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HistoryReader is the read side the query endpoints depend on.
type HistoryReader interface {
	ListJoined(ctx context.Context, q models.HistoryQuery) ([]models.JoinedRow, error)
	LatestBlock(ctx context.Context) (*models.LatestBlock, error)
	LatestPrice(ctx context.Context) (*models.LatestPrice, error)
	Health(ctx context.Context) error
}

// HistoryEchoHandler serves the read-only query endpoints.
type HistoryEchoHandler struct {
	logger        *xlogger.Logger
	history       HistoryReader
	healthTimeout time.Duration
}

func NewHistoryEchoHandler(logger *xlogger.Logger, history HistoryReader) *HistoryEchoHandler {
	return &HistoryEchoHandler{logger: logger, history: history, healthTimeout: 2 * time.Second}
}

func (h *HistoryEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/all-data", h.AllData)
	e.GET("/block-height", h.BlockHeight)
	e.GET("/price", h.Price)
	e.GET("/healthz", h.Healthz)
}

// AllData returns a JSON array of joined rows.
func (h *HistoryEchoHandler) AllData(c echo.Context) error {
	req := &models.AllDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := xhttp.ParseOptionalTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", "from must be RFC3339 or unix seconds"))
	}
	to, ok := xhttp.ParseOptionalTime(req.To)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to", "to must be RFC3339 or unix seconds"))
	}

	rows, err := h.history.ListJoined(c.Request().Context(), models.HistoryQuery{
		From:        from,
		To:          to,
		Limit:       req.Limit,
		Granularity: req.TF,
	})
	if errors.Is(err, usecase.ErrInvalidRange) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to", "to must not be before from").WithError(err))
	}
	if err != nil {
		h.logger.Error("all-data query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *HistoryEchoHandler) BlockHeight(c echo.Context) error {
	res, err := h.history.LatestBlock(c.Request().Context())
	if err != nil {
		return h.latestError(c, "block height", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *HistoryEchoHandler) Price(c echo.Context) error {
	res, err := h.history.LatestPrice(c.Request().Context())
	if err != nil {
		return h.latestError(c, "price", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *HistoryEchoHandler) latestError(c echo.Context, what string, err error) error {
	if errors.Is(err, domrepo.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no "+what+" recorded yet"))
	}
	h.logger.Error("latest query failed", xlogger.String("what", what), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *HistoryEchoHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.healthTimeout)
	defer cancel()
	if err := h.history.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("storage unreachable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"storage": "ok"})
}
