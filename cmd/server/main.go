package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/internal/categorize"
	"github.com/DevNectorFoods/Email-Automation/internal/config"
	"github.com/DevNectorFoods/Email-Automation/internal/handler"
	"github.com/DevNectorFoods/Email-Automation/internal/httpserver"
	"github.com/DevNectorFoods/Email-Automation/internal/identity"
	"github.com/DevNectorFoods/Email-Automation/internal/imapfetch"
	"github.com/DevNectorFoods/Email-Automation/internal/ingest"
	"github.com/DevNectorFoods/Email-Automation/internal/repository"
	"github.com/DevNectorFoods/Email-Automation/pkg/circuitbreaker"
	"github.com/DevNectorFoods/Email-Automation/pkg/db"
	"github.com/DevNectorFoods/Email-Automation/pkg/logger"
	"github.com/DevNectorFoods/Email-Automation/pkg/mq"
	"github.com/DevNectorFoods/Email-Automation/pkg/outbox"
	"github.com/DevNectorFoods/Email-Automation/pkg/redis"
	"github.com/DevNectorFoods/Email-Automation/pkg/secrets"
	"github.com/DevNectorFoods/Email-Automation/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting email-automation...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis（去重闸）
	redisClient := redis.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Credential sealing
	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		log.Fatal("Failed to init secrets box", zap.Error(err))
	}

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	emailRepo := repository.NewEmailRepository(dbConn, outboxRepo)
	accountRepo := repository.NewAccountRepository(dbConn)

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	go dispatcher.Start(dispatcherCtx)

	// Ingestion pipeline
	fetcher := imapfetch.NewFetcher(time.Duration(cfg.Ingest.IMAPTimeoutSeconds)*time.Second, log)
	resolver := identity.NewResolver(emailRepo, log)
	guard := util.NewIngestGuard(redisClient, time.Duration(cfg.Ingest.GuardTTLHours)*time.Hour, log)

	var strategy categorize.Strategy
	switch cfg.Ingest.Categorizer {
	case "weighted":
		strategy = categorize.NewWeightedRules(nil)
	default:
		strategy = categorize.NewHierarchy()
	}
	log.Info("categorizer selected", zap.String("strategy", cfg.Ingest.Categorizer))

	ingestService := ingest.NewService(fetcher, emailRepo, resolver, strategy, guard, box, log)

	breakers := circuitbreaker.NewBreakerSet(circuitbreaker.DefaultConfig())
	scheduler := ingest.NewScheduler(ingestService, accountRepo, breakers, publisher, ingest.SchedulerConfig{
		Interval:   time.Duration(cfg.Ingest.IntervalSeconds) * time.Second,
		Workers:    cfg.Ingest.Workers,
		FetchLimit: cfg.Ingest.FetchLimit,
	}, log)

	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()
	go scheduler.Run(schedulerCtx)

	// HTTP
	fetchHandler := handler.NewFetchHandler(scheduler)
	accountHandler := handler.NewAccountHandler(accountRepo, ingestService, box)
	emailQueryHandler := handler.NewEmailQueryHandler(emailRepo)
	router := httpserver.NewRouter(fetchHandler, accountHandler, emailQueryHandler, cfg.JWT.Secret, dbConn, publisher)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("email-automation is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down email-automation gracefully...")

	// 先停后台循环，再关 HTTP，最后断连接
	schedulerCancel()
	dispatcherCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	publisher.Close()
	log.Info("email-automation shutdown complete")
}
