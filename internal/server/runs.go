package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/researchchat/internal/store"
)

// RunLedger persists finished sessions.
type RunLedger interface {
	SaveRun(ctx context.Context, rec store.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
	GetRun(ctx context.Context, id string) (store.RunRecord, bool, error)
}

type RunsHandler struct {
	ledger RunLedger
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.GET("/runs", h.list)
	g.GET("/runs/:id", h.get)
}

func (h *RunsHandler) list(c echo.Context) error {
	if h.ledger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run ledger disabled")
	}
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	runs, err := h.ledger.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}

func (h *RunsHandler) get(c echo.Context) error {
	if h.ledger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run ledger disabled")
	}
	rec, ok, err := h.ledger.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, rec)
}
