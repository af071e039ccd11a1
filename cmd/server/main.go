package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casecommerce/config"
	"casecommerce/internal/api"
	"casecommerce/internal/auth"
	"casecommerce/internal/broker"
	"casecommerce/internal/media"
	"casecommerce/internal/redisclient"
	"casecommerce/internal/service"
	"casecommerce/internal/store"
	"casecommerce/internal/util"
	"casecommerce/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting casecommerce API", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	db, err := store.NewStore(startCtx, cfg.Database.URL, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(startCtx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Database schema applied")
	}

	// The catalog cache is optional; without Redis every read goes to the store.
	var cache service.Cache
	redisClient, err := redisclient.NewClient(startCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, catalog cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache = redisClient
		logger.Info("Redis connected")
	}

	images, err := media.NewImageStore(cfg.Upload.Dir, cfg.Upload.PublicPrefix, cfg.Upload.MaxBytes)
	if err != nil {
		logger.Fatal("Failed to prepare upload directory", zap.Error(err))
	}
	logger.Info("Image store ready",
		zap.String("dir", images.Dir()),
		zap.String("public_prefix", images.PublicPrefix()))

	var publisher service.EventPublisher
	var producer *broker.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	passwords := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	cartService := service.NewCartService(db)
	orderService := service.NewOrderService(db, cache, publisher)
	catalogService := service.NewCatalogService(db, cache, images, cfg.Redis.CacheTTL)
	userService := service.NewUserService(db, tokens, passwords, cfg.Auth.AdminEmails)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var checkoutWorker *worker.CheckoutWorker
	if producer != nil {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		checkoutWorker = worker.NewCheckoutWorker(consumer, cartService)
		go func() {
			if err := checkoutWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Checkout worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Options{
		Carts:          cartService,
		Orders:         orderService,
		Catalog:        catalogService,
		Users:          userService,
		Images:         images,
		DB:             db,
		Tokens:         tokens,
		Policy:         auth.DefaultPolicy(),
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if checkoutWorker != nil {
		if err := checkoutWorker.Stop(); err != nil {
			logger.Warn("Error stopping checkout worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
