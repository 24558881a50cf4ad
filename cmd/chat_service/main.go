package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social_chat_service/internal/chat/app"
	"social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chat/repository"
	"social_chat_service/internal/chat/router"
	"social_chat_service/pkg/config"
	"social_chat_service/pkg/database"
	"social_chat_service/pkg/logger"
	testtool "social_chat_service/pkg/test_tool"
	"social_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()
	cfg := config.MustLoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	logger.Log.SetDebugMode(!config.IsProduction())

	if cfg.JWTSecret != "" {
		token.SetSecret(cfg.JWTSecret)
	}

	ctx := context.Background()

	// 1. 對話 / 訊息 store
	store, closeStore := newStore(ctx, cfg)
	defer closeStore()

	// 2. 使用者 profile
	profiles := newProfileRepository(ctx, cfg)

	// 3. 頭像簽名 (optional)
	var signer repository.AvatarSigner
	if cfg.MinIO.Endpoint != "" {
		client, err := database.NewMinIOConnection(ctx, database.MinIOFromConfig(cfg.MinIO))
		if err != nil {
			logger.Log.Fatal("Unable to connect to minio", zap.String("endpoint", cfg.MinIO.Endpoint), zap.Error(err))
		}
		signer = repository.NewMinioAvatarSigner(client, cfg.MinIO.URLExpiry)
	}

	// 4. 事件發布 (optional)
	var publisher repository.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaFromConfig(cfg.Kafka))
		if err != nil {
			logger.Log.Fatal("Unable to connect to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		defer writer.Close()
		publisher = repository.NewKafkaEventPublisher(writer)
	}

	// 5. 初始化 UseCases
	convUC := app.NewConversationUseCase(store, profiles, signer, publisher)
	msgUC := app.NewMessageUseCase(store, store, publisher)

	// 6. 啟動 Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: config.IsProduction()})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))
	testtool.MountPprof(r, cfg.Pprof)

	router.RegisterRoutes(r, app.NewChatHandler(convUC, msgUC))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("shutdown", zap.Error(err))
		}
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port), zap.String("store", string(cfg.Store)))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

func newStore(ctx context.Context, cfg config.Chat) (repository.ChatStore, func()) {
	switch cfg.Store {
	case config.StoreMongo:
		conn := database.MongoConnection(cfg.MongoSQL)
		mongo, err := database.NewMongoDB(ctx, conn, cfg.MongoSQL.Database)
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to mongoDB database after retries",
				zap.String("host", cfg.MongoSQL.Host),
				zap.Error(err),
			)
		}
		store := repository.NewMongoStore(mongo.Database)
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Log.Fatal("mongo ensure indexes", zap.Error(err))
		}
		return store, func() { _ = mongo.Close(context.Background()) }

	case config.StoreMemory:
		logger.Log.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}

	default:
		pool, err := database.NewDatabaseConnection(ctx, database.PostgresConnection(cfg.PostgreSQL))
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to postgres database after retries",
				zap.String("host", cfg.PostgreSQL.Host),
				zap.Error(err),
			)
		}
		store := repository.NewPgStore(pool)
		if err := store.Migrate(ctx); err != nil {
			logger.Log.Fatal("postgres migrate", zap.Error(err))
		}
		return store, pool.Close
	}
}

func newProfileRepository(ctx context.Context, cfg config.Chat) repository.ProfileRepository {
	var profiles repository.ProfileRepository
	if cfg.ProfileDB.Host != "" {
		db, err := database.NewGormConnection(database.PostgresConnection(cfg.ProfileDB))
		if err != nil {
			logger.Log.Fatal("Unable to connect to profile database", zap.String("host", cfg.ProfileDB.Host), zap.Error(err))
		}
		repo := repository.NewGormProfileRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.Fatal("profile auto migrate", zap.Error(err))
		}
		profiles = repo
	} else {
		profiles = repository.NewMemoryProfileRepository()
	}

	if !cfg.Redis.Enabled {
		return profiles
	}

	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis.Addr, masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	ttl := cfg.ProfileCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cache := database.NewRedisRepository[domain.Profile](redisClient, "profile:")
	return repository.NewCachedProfileRepository(cache, profiles, ttl)
}
