package main

import (
	"context"
	"fmt"
	"log"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/api"
	"github.com/geolyze/geolyze_server/internal/api/handler"
	"github.com/geolyze/geolyze_server/internal/database"
	"github.com/geolyze/geolyze_server/internal/pkg/cron"
	"github.com/geolyze/geolyze_server/internal/pkg/oss"
	"github.com/geolyze/geolyze_server/internal/pkg/pubsub"
	"github.com/geolyze/geolyze_server/internal/pkg/statuscache"
	"github.com/geolyze/geolyze_server/internal/pkg/ws"
	"github.com/geolyze/geolyze_server/internal/repository"
	"github.com/geolyze/geolyze_server/internal/service"
	"github.com/geolyze/geolyze_server/internal/upstream"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// OSS is optional; retention falls back to delete-only
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// Redis-backed plumbing
	cache := statuscache.NewCache(rdb)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// Services
	jobService := service.NewJobService(jobRepo, cache, publisher)
	accountService := service.NewAccountService(db, userRepo, subRepo)
	quotaService := service.NewQuotaService(userRepo, jobRepo, cfg)

	var archiver service.Archiver
	if ossClient != nil {
		archiver = ossClient
	}
	retentionService := service.NewRetentionService(jobRepo, cache, archiver, &cfg.Retention)

	// WebSocket hub fed by the progress channel
	wsHub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := subscriber.Subscribe(ctx, func(msg *pubsub.ProgressMessage) {
			_ = wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("Progress subscriber stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// Periodic retention sweep
	cronService := cron.NewService(retentionService, cfg.Retention.SweepIntervalHours)
	cronService.Start()
	defer cronService.Stop()

	// Handlers + router
	upstreamClient := upstream.NewClient(&cfg.Upstream)
	analyzeHandler := handler.NewAnalyzeHandler(upstreamClient, jobService, quotaService, cfg)
	adminHandler := handler.NewAdminHandler(jobService, accountService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	router := api.NewRouter(analyzeHandler, adminHandler, websocketHandler, cfg)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
