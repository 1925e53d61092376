package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"greendrake/estate/internal/api"
	"greendrake/estate/internal/cache"
	"greendrake/estate/internal/captcha"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/db"
	"greendrake/estate/internal/email"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/services"
	"greendrake/estate/internal/storage"
	"greendrake/estate/internal/store"
	"greendrake/estate/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.SetGlobal(appLog)
	defer func() { _ = appLog.Sync() }()
	gin.SetMode(gin.ReleaseMode)

	// Initialize Store
	var mongoClient *mongo.Client
	var st store.Store
	storeOpts := store.Options{Timeout: cfg.StoreTimeout, AppendMaxRetries: cfg.AppendMaxRetries}
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		mem := store.NewMemoryStore(storeOpts)
		if cfg.SeedFile != "" {
			if err := mem.LoadSeedFile(cfg.SeedFile); err != nil {
				appLog.Fatal("failed to load seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
			}
		}
		appLog.Warn("using in-memory store; data is lost on exit")
		st = mem
	default:
		var mongoDb *mongo.Database
		mongoClient, mongoDb, err = db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, cfg.StoreTimeout)
		if err != nil {
			appLog.Fatal("failed to connect to database", zap.Error(err))
		}
		ctxIdx, cancelIdx := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.EnsureIndexes(ctxIdx, mongoDb)
		cancelIdx()
		if err != nil {
			appLog.Fatal("failed to ensure indexes", zap.Error(err))
		}
		st = store.NewMongoStore(mongoDb, storeOpts)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			appLog.Error("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	// Initialize Cache (Redis). Optional: without it there is no owner cache
	// and no background jobs.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			appLog.Fatal("failed to connect to Redis", zap.Error(err))
		}
	} else {
		appLog.Warn("REDIS_ADDR is empty; notifications and owner caching are disabled")
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			appLog.Error("error disconnecting from Redis", zap.Error(err))
		}
	}()

	// Initialize S3 storage for biometric uploads. Optional.
	var objects storage.IS3Storage
	if cfg.AwsS3Bucket != "" {
		objects, err = storage.NewS3Storage(cfg)
		if err != nil {
			appLog.Fatal("failed to initialize S3 storage", zap.Error(err))
		}
	} else {
		appLog.Warn("AWS_S3_BUCKET is empty; biometric uploads are disabled")
	}

	// Initialize Services
	var ownerCache services.OwnerCache
	var notifier services.INotifier = services.NopNotifier{}
	var taskClient *asynq.Client
	if redisClient != nil {
		ownerCache = cache.NewOwnerCache(redisClient, cfg.ListingCacheTTL)
		taskClient = tasks.NewClient(redisClient)
		notifier = tasks.NewEnqueuer(taskClient)
	}
	defer func() {
		if taskClient != nil {
			_ = taskClient.Close()
		}
	}()

	directory := services.NewListingDirectory(st, ownerCache)
	conversationService := services.NewConversationService(st, directory, cfg)
	svc := api.Services{
		Conversations: conversationService,
		Messages:      services.NewMessageService(st, st, cfg),
		Inquiries:     services.NewInquiryService(st, directory, conversationService, notifier, cfg),
		Verifications: services.NewVerificationService(st, objects, notifier),
	}

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		appLog.Info("service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("service API ListenAndServe error", zap.Error(err))
		}
		appLog.Info("service API server stopped")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var rateLimiterStop func()
	var backgroundTaskSrv *asynq.Server

	appLog.Info("starting application", zap.String("mode", cfg.RunMode), zap.String("store", cfg.StoreBackend))

	apiMode := func() {
		mainApiRouter, rateLimiter := api.SetupRouter(cfg, svc, captcha.NewTurnstileVerifier(cfg))
		rateLimiterStop = rateLimiter.Stop
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			appLog.Info("main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.Fatal("main API ListenAndServe error", zap.Error(err))
			}
			appLog.Info("main API server stopped")
		}()
	}

	bgMode := func() {
		if redisClient == nil {
			appLog.Warn("background worker not started: Redis is not configured")
			return
		}
		taskProcessor := tasks.NewTaskProcessor(
			cfg,
			buildEmailSender(cfg, redisClient, appLog),
			services.NewEmailTemplateService(st),
			services.NewUserService(st),
			st,
			taskClient,
		)
		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(redisClient, taskProcessor)
		wg.Add(1)
		go func() {
			defer wg.Done()
			appLog.Info("background task server starting")
			if err := backgroundTaskSrv.Run(mux); err != nil {
				appLog.Fatal("background task server error", zap.Error(err))
			}
			appLog.Info("background task server stopped")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		appLog.Fatal("invalid run mode", zap.String("mode", cfg.RunMode))
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLog.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		appLog.Info("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		appLog.Error("service API server shutdown error", zap.Error(err))
	}

	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			appLog.Error("main API server shutdown error", zap.Error(err))
		}
		rateLimiterStop()
	}

	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	appLog.Info("server gracefully stopped")
}

// buildEmailSender combines the primary sender with the optional outbox file.
func buildEmailSender(cfg *config.Config, rdb *redis.Client, appLog *logger.Logger) email.Sender {
	var primary email.Sender
	if cfg.MockEmailToRedis {
		appLog.Info("MOCK_EMAIL_TO_REDIS enabled: capturing emails in Redis")
		primary = email.NewRedisSender(rdb, cfg)
	} else {
		primary = email.NewSMTPSender(cfg)
	}

	composite := email.NewCompositeEmailSender(primary)
	if cfg.EmailOutboxFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailOutboxFile)
		if err != nil {
			appLog.Warn("email outbox disabled", zap.String("path", cfg.EmailOutboxFile), zap.Error(err))
		} else {
			composite.AddSender(fileSender)
		}
	}
	return composite
}
