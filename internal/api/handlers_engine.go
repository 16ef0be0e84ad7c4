package api

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"aniloader/internal/engine"
	"aniloader/internal/library"
)

type startRequest struct {
	Mode string `json:"mode" query:"mode" form:"mode"`
}

func (s *Server) startDownload(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "invalid request"})
	}
	if req.Mode == "" {
		req.Mode = string(engine.ModeDefault)
	}
	mode, ok := engine.ParseMode(req.Mode)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "unknown mode", "mode": req.Mode})
	}

	if err := s.engine.Start(mode); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			return c.JSON(http.StatusConflict, echo.Map{"status": "already_running", "mode": string(mode)})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "error", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "started", "mode": string(mode)})
}

func (s *Server) stopDownload(c echo.Context) error {
	if s.engine.Stop() {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "msg": "stop requested, finishing current episode"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "msg": "no run in progress"})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.State().Get())
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// pickFolder existed for the desktop build; the headless service has no
// folder picker to offer.
func (s *Server) pickFolder(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "unsupported", "selected": ""})
}

func (s *Server) diskFree(c echo.Context) error {
	cfg := s.cfg.Snapshot()
	free, err := library.FreeSpaceGB(cfg.DownloadPath)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"free_gb": free})
}

func (s *Server) allLogs(c echo.Context) error {
	lines := s.logs.RecentLines(0)
	if len(lines) == 0 {
		// Fresh process: the ring is empty but all_logs.txt carries the
		// history from previous runs.
		lines = tailLines(s.cfg.Snapshot().AllLogsPath(), 200)
	}
	return c.JSON(http.StatusOK, echo.Map{"lines": lines})
}

func tailLines(path string, n int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{}
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (s *Server) lastRun(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"lines": s.logs.RunLog().Lines()})
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}
