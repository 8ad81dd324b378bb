package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident-platform/internal/adminapi"
	"incident-platform/internal/audit"
	"incident-platform/internal/auth"
	"incident-platform/internal/broadcast"
	"incident-platform/internal/config"
	"incident-platform/internal/oplog"
	"incident-platform/internal/records"
	"incident-platform/pkg/logger"
	"incident-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	ops, err := oplog.NewStore(cfg.Store.LogDir)
	if err != nil {
		log.Error("oplog init failed", "err", err)
		os.Exit(1)
	}
	rec, err := records.NewStore(cfg.Store.RecordDir)
	if err != nil {
		log.Error("record store init failed", "err", err)
		os.Exit(1)
	}

	// The audit trail degrades to in-memory when no database is configured.
	var auditRepo audit.Repository = audit.NewMemoryRepo()
	if cfg.AuditEnabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		auditRepo = audit.NewPostgresRepo(db)
	}
	auditSvc := audit.NewService(auditRepo)

	lineClient, err := broadcast.NewLineClient(cfg.Line.ChannelSecret, cfg.Line.ChannelToken, cfg.Line.GroupID)
	if err != nil {
		log.Error("line init failed", "err", err)
		os.Exit(1)
	}
	discordClient, err := broadcast.NewWebhookClient(cfg.Discord.WebhookURL)
	if err != nil {
		log.Error("discord init failed", "err", err)
		os.Exit(1)
	}
	bc := broadcast.NewService(lineClient, discordClient, broadcast.TimerScheduler{}, cfg.Discord.EditDelay)

	handlers := adminapi.NewHandlers(authManager, rec, ops, bc, auditSvc, cfg.Auth.AdminPassword)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(oplog.Middleware(ops))

	registerRoutes(r, handlers, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.AdminHTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("admin listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
