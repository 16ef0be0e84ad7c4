// Package api is the HTTP control surface: a flat JSON route set consumed
// by the bundled UI and by userscripts running on the streaming sites.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/engine"
	"aniloader/internal/logger"
	"aniloader/internal/scheduler"
	"aniloader/internal/scraper"
	"aniloader/internal/websocket"
)

// Server wires the services behind the HTTP surface.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger

	cfg       *config.Store
	store     *catalog.Store
	engine    *engine.Engine
	scraper   *scraper.Client
	hub       *websocket.Hub
	logs      *logger.Logger
	scheduler *scheduler.Scheduler
}

// NewServer builds the echo server with middleware and routes installed.
func NewServer(cfg *config.Store, store *catalog.Store, eng *engine.Engine, sc *scraper.Client, hub *websocket.Hub, logs *logger.Logger, sched *scheduler.Scheduler, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		logger:    log.With().Str("component", "api").Logger(),
		cfg:       cfg,
		store:     store,
		engine:    eng,
		scraper:   sc,
		hub:       hub,
		logs:      logs,
		scheduler: sched,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("8M"))

	// Wide open on purpose: userscripts on aniworld.to and s.to talk to
	// this service cross-origin.
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	e := s.echo

	// Engine control
	e.GET("/start_download", s.startDownload)
	e.POST("/start_download", s.startDownload)
	e.POST("/stop_download", s.stopDownload)
	e.GET("/status", s.getStatus)
	e.GET("/health", s.health)

	// Config and environment
	e.GET("/config", s.getConfig)
	e.POST("/config", s.updateConfig)
	e.GET("/pick_folder", s.pickFolder)
	e.GET("/disk", s.diskFree)

	// Logs
	e.GET("/logs", s.allLogs)
	e.GET("/last_run", s.lastRun)

	// Catalog
	e.GET("/database", s.listSeries)
	e.GET("/counts", s.seriesCounts)
	e.POST("/export", s.addSeries)
	e.POST("/add_link", s.addSeries)
	e.POST("/search", s.search)
	e.DELETE("/anime", s.deleteSeries)
	e.POST("/anime/restore", s.restoreSeries)
	e.GET("/check", s.checkSeries)
	e.GET("/structure", s.seriesStructure)
	e.POST("/upload_txt", s.uploadTxt)

	// Queue
	e.GET("/queue", s.listQueue)
	e.POST("/queue", s.mutateQueue)
	e.DELETE("/queue", s.deleteQueue)

	// Background tasks
	e.GET("/tasks", s.listTasks)

	// Live updates
	e.GET("/ws", s.hub.HandleWebSocket)
}

// Start runs the HTTP listener; it blocks until shutdown.
func (s *Server) Start(port int) error {
	return s.echo.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
