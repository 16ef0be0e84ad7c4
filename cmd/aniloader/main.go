package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"aniloader/internal/api"
	"aniloader/internal/catalog"
	"aniloader/internal/config"
	"aniloader/internal/database"
	"aniloader/internal/downloader"
	"aniloader/internal/engine"
	"aniloader/internal/logger"
	"aniloader/internal/scheduler"
	"aniloader/internal/scheduler/tasks"
	"aniloader/internal/scraper"
	"aniloader/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "aniloader:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config.json (default <data>/config.json)")
	dataDir := flag.String("data", envOr("ANILOADER_DATA", ""), "data folder override")
	binary := flag.String("downloader", envOr("ANILOADER_BIN", "aniworld"), "downloader binary")
	logLevel := flag.String("log-level", envOr("ANILOADER_LOG_LEVEL", "info"), "log level")
	flag.Parse()

	// The config file lives inside the data folder, but the data folder is
	// itself a config key. The flag/env override wins; otherwise the file's
	// own data_folder_path redirects everything derived from it.
	dataFolder := *dataDir
	if dataFolder == "" {
		dataFolder = "./data"
	}
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(dataFolder, "config.json")
	}

	cfgStore, err := config.Load(cfgPath)
	if err != nil && !errors.Is(err, config.ErrInvalid) {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgStore.Snapshot()
	if *dataDir != "" && cfg.DataFolderPath != *dataDir {
		cfg.DataFolderPath = *dataDir
		if err := cfgStore.Update(cfg); err != nil {
			return fmt.Errorf("apply data folder override: %w", err)
		}
		cfg = cfgStore.Snapshot()
	}

	log := logger.New(logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Path:       cfg.AllLogsPath(),
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 30,
		Compress:   true,
		RingSize:   2000,
	})
	defer log.Close()
	log.SetRunLogPath(cfg.LastRunPath())

	if err != nil {
		log.Warn().Err(err).Msg("config file was unparseable, defaults written back")
	}
	log.Info().Str("config", cfgPath).Str("data", cfg.DataFolderPath).Int("port", cfg.Port).Msg("starting aniloader")

	db, err := database.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	store := catalog.NewStore(db.Conn(), log.Logger)
	ctx := context.Background()
	if err := store.Reindex(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog reindex failed, continuing with sparse ids")
	}

	hub := websocket.NewHub()
	go hub.Run()
	log.SetBroadcast(func(line string) {
		_ = hub.Broadcast("log:line", line)
	})

	state := engine.NewState()
	state.SetOnChange(func(snap engine.Snapshot) {
		if err := hub.Broadcast("status:update", snap); err != nil {
			log.Debug().Err(err).Msg("status broadcast failed")
		}
	})

	sc := scraper.NewClient(log.Logger)
	runner := downloader.NewExec(*binary, log.Logger)
	eng := engine.New(store, sc, runner, cfgStore, state, log.Logger, log.RunLog())

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := tasks.Register(sched, tasks.Deps{
		Store:   store,
		Scraper: sc,
		Engine:  eng,
		Config:  cfgStore,
		Logger:  log.Logger,
	}); err != nil {
		return fmt.Errorf("register tasks: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn().Err(err).Msg("scheduler shutdown failed")
		}
	}()

	server := api.NewServer(cfgStore, store, eng, sc, hub, log, sched, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("http server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// A running engine finishes its current episode; the HTTP layer drains
	// within the timeout.
	eng.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
