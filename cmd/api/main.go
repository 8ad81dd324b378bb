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

	"incident-platform/internal/broadcast"
	"incident-platform/internal/config"
	"incident-platform/internal/oplog"
	"incident-platform/internal/records"
	"incident-platform/internal/session"
	"incident-platform/internal/wizard"
	"incident-platform/pkg/logger"
	"incident-platform/pkg/utils"

	"github.com/gin-gonic/gin"
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

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

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

	sessions := session.NewRedisStore(rdb, cfg.Redis.SessionTTL)
	once := wizard.NewRedisOnceGuard(rdb, cfg.Redis.SessionTTL)

	wizardHandlers := wizard.NewHandlers(sessions, bc, rec, ops, once)
	webhook := broadcast.NewWebhookHandler(lineClient.Bot(), ops)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(oplog.Middleware(ops))

	registerRoutes(r, wizardHandlers, webhook, rec, ops)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		ops.Info("緊急通報系統啟動")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")
	ops.Info("緊急通報系統關閉")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
