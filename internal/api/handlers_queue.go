package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"aniloader/internal/catalog"
)

func (s *Server) listQueue(c echo.Context) error {
	items, err := s.store.QueueList(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if items == nil {
		items = []*catalog.QueueItem{}
	}
	return c.JSON(http.StatusOK, items)
}

type queueRequest struct {
	AnimeID int64   `json:"anime_id"`
	Order   []int64 `json:"order"`
}

// mutateQueue either appends one series or reorders the whole queue,
// depending on which field the body carries.
func (s *Server) mutateQueue(c echo.Context) error {
	var req queueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	ctx := c.Request().Context()

	if len(req.Order) > 0 {
		if err := s.store.QueueReorder(ctx, req.Order); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		return s.listQueue(c)
	}

	if req.AnimeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "anime_id or order required"})
	}
	err := s.store.QueueAdd(ctx, req.AnimeID)
	switch {
	case errors.Is(err, catalog.ErrAlreadyQueued):
		return c.JSON(http.StatusOK, echo.Map{"status": "already_queued"})
	case errors.Is(err, catalog.ErrSeriesComplete):
		return c.JSON(http.StatusConflict, echo.Map{"error": "series is complete"})
	case errors.Is(err, catalog.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "series not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "queued"})
}

// deleteQueue removes one row by queue id, all rows of one series, or
// everything when no parameter is given.
func (s *Server) deleteQueue(c echo.Context) error {
	ctx := c.Request().Context()

	if raw := c.QueryParam("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
		}
		if err := s.store.QueueDelete(ctx, id); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "queue item not found"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "deleted"})
	}

	if raw := c.QueryParam("anime_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid anime_id"})
		}
		if err := s.store.QueueDeleteBySeries(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "deleted"})
	}

	if err := s.store.QueueClear(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "cleared"})
}
