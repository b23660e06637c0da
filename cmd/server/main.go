// Package main initializes and starts the stash API server, setting up
// configuration, logging, database connections, repositories, services,
// handlers and the HTTP listener.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/akorchagin/stash/internal/config"
	"github.com/akorchagin/stash/internal/db"
	"github.com/akorchagin/stash/internal/logger"
	"github.com/akorchagin/stash/internal/repository"
	"github.com/akorchagin/stash/internal/server/handler/http"
	"github.com/akorchagin/stash/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port
	dbName := options.DatabaseDSN

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info", options.LogFile); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(dbName)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Periodically purge expired session tokens.
	db.StartSessionCleaner(context.Background(), postgresDB,
		time.Hour, // interval
		zapLogger,
	)

	// Initialize repositories for authentication and items.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	itemRepo := repository.NewPostgresItemRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(authRepo, time.Duration(options.SessionTTLHours)*time.Hour)
	itemService := service.NewItemService(itemRepo)

	// Create HTTP handlers for auth and item endpoints.
	authHandler := &http.AuthHandler{AuthService: authService}
	itemsHandler := &http.ItemsHandler{ItemService: itemService}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, itemsHandler, authService, zapLogger)

	server := &nethttp.Server{
		Addr:    addr,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}
