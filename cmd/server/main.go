/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and process environment config
  2. Build the zap logger
  3. Open the snapshot gateway (sqlite, file, or memory)
  4. Load the snapshot into the tracker service
  5. Configure HTTP router
  6. Start server with graceful shutdown

ENVIRONMENT (prefix STOCK_):
  STOCK_ADDR              Listen address (default :8080)
  STOCK_STORE             sqlite | file | memory (default sqlite)
  STOCK_DB_PATH           SQLite database path (default stock.db)
  STOCK_SNAPSHOT_PATH     JSON snapshot path for the file store
  STOCK_UNDO_WINDOW       Undo eligibility window (default 24h)
  STOCK_UNDO_MAX_RECENT   Undo recency bound (default 50)
  STOCK_CORS_ORIGINS      Comma-separated allowed origins
  STOCK_DEBUG             Development logger when true

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the gateway
  4. Exit

EXAMPLES:
  # Run with SQLite
  STOCK_DB_PATH=./data/stock.db ./server

  # Run with the JSON file store
  STOCK_STORE=file STOCK_SNAPSHOT_PATH=./data/stock.json ./server

SEE ALSO:
  - api/server.go: Router configuration
  - tracker/service.go: The domain service
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/packhouse/stock-engine/api"
	"github.com/packhouse/stock-engine/store/file"
	"github.com/packhouse/stock-engine/store/memory"
	"github.com/packhouse/stock-engine/store/sqlite"
	"github.com/packhouse/stock-engine/tracker"
)

type config struct {
	Addr          string        `envconfig:"ADDR" default:":8080"`
	Store         string        `envconfig:"STORE" default:"sqlite"`
	DBPath        string        `envconfig:"DB_PATH" default:"stock.db"`
	SnapshotPath  string        `envconfig:"SNAPSHOT_PATH" default:"stock.json"`
	UndoWindow    time.Duration `envconfig:"UNDO_WINDOW" default:"24h"`
	UndoMaxRecent int           `envconfig:"UNDO_MAX_RECENT" default:"50"`
	CORSOrigins   []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	Debug         bool          `envconfig:"DEBUG" default:"false"`
}

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("stock", &cfg); err != nil {
		log.Fatalf("Failed to process config: %v", err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	gw, closeGw, err := openGateway(cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeGw()

	svc, err := tracker.NewService(context.Background(), gw, tracker.Options{
		UndoWindow: cfg.UndoWindow,
		MaxRecent:  cfg.UndoMaxRecent,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to load snapshot", zap.Error(err))
	}

	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openGateway selects the snapshot store backend.
func openGateway(cfg config) (tracker.Gateway, func(), error) {
	switch cfg.Store {
	case "sqlite":
		gw, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return gw, func() { gw.Close() }, nil
	case "file":
		return file.New(cfg.SnapshotPath), func() {}, nil
	case "memory":
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
