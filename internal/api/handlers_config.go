package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"aniloader/internal/config"
)

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Snapshot())
}

// updateConfig validates and persists a full config record. Fields missing
// from the body keep their current values.
func (s *Server) updateConfig(c echo.Context) error {
	cfg := s.cfg.Snapshot()
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid config payload"})
	}
	if err := s.cfg.Update(cfg); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, s.cfg.Snapshot())
}
