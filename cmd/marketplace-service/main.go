package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nurpe/marketplace/internal/auth"
	"github.com/nurpe/marketplace/internal/config"
	"github.com/nurpe/marketplace/internal/db"
	"github.com/nurpe/marketplace/internal/excel"
	httphandler "github.com/nurpe/marketplace/internal/http"
	"github.com/nurpe/marketplace/internal/http/middleware"
	"github.com/nurpe/marketplace/internal/logger"
	"github.com/nurpe/marketplace/internal/pdf"
	"github.com/nurpe/marketplace/internal/repository"
	"github.com/nurpe/marketplace/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	profileRepo := repository.NewProfileRepository(database)
	contractRepo := repository.NewContractRepository(database)
	settlementRepo := repository.NewSettlementRepository(database)
	reportRepo := repository.NewReportRepository(database)

	contractService := service.NewContractService(contractRepo, pdf.NewGenerator())
	settlementService := service.NewSettlementService(settlementRepo, cfg, log)
	reportService := service.NewReportService(reportRepo, excel.NewGenerator(), cfg)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(contractService, settlementService, reportService, log)
	router := httphandler.NewRouter(handler, httphandler.Middlewares{
		Auth:            middleware.Auth(profileRepo, tokenParser, cfg.Auth.AllowProfileHeader),
		Admin:           middleware.RequireAdmin(),
		SettlementLimit: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Handler(),
	}, httphandler.RouterConfig{
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", addr).Msg("starting marketplace service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("marketplace service stopped")
}
