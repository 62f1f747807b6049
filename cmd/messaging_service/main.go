package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/app"
	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/repository"
	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/router"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/config"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/database"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"
	testtool "github.com/X9Cipher/alumni-portal-sub001/pkg/test_tool"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.MessagingService, config.EnvConfig.MessagingServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Messaging](
		config.EnvConfig.MessagingService,
		config.EnvConfig.MessagingServiceYAMLPath,
		config.WithDefault("identity.fallback_role", string(domain.RoleStudent)),
	).WithDefaults()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("invalid messaging config", zap.Error(err))
	}
	token.SetSecret(cfg.Auth.JWTSecret)

	// 1. 建立 Mongo 連線 (身分、對話、訊息)
	ctx := context.Background()
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    cfg.MongoSQL.MongoURI(),
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	identityRepo := repository.NewMongoIdentityRepository(mongo.Database)
	convRepo := repository.NewMongoConversationRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := convRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Log.Fatal("create conversation indexes", zap.Error(err))
	}
	if err := msgRepo.EnsureIndexes(indexCtx); err != nil {
		logger.Log.Fatal("create message indexes", zap.Error(err))
	}
	cancel()

	// 2. 建立 Redis 連線 (presence 與跨節點推送)，可選
	redisClient := connectRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var presence repository.PresenceRepository = repository.NewMemoryPresence()
	if cfg.Presence.Backend == "redis" {
		if redisClient == nil {
			logger.Log.Fatal("presence backend redis needs a redis connection")
		}
		presence = repository.NewRedisPresence(redisClient, cfg.Presence.TTL)
	}

	var pubsub repository.PubSubRepository = repository.NewLocalPubSub()
	if redisClient != nil {
		pubsub = repository.NewRedisPubSub(redisClient)
	}
	logger.Log.Info("messaging backends ready",
		zap.String("presence", cfg.Presence.Backend),
		zap.Bool("redis_pubsub", redisClient != nil))

	// 3. 初始化 UseCase 與 handler
	messagingUC := app.NewMessagingUseCase(identityRepo, convRepo, msgRepo, presence, pubsub, app.Options{
		MaxContentLength: cfg.Socket.MaxContentLength,
		FallbackRole:     domain.Role(cfg.Identity.FallbackRole),
		StoreTimeout:     cfg.Socket.StoreTimeout,
	})
	chatWebsocket := app.NewChatWebsocketHandler(messagingUC, app.GatewayConfig{
		PingPeriod: cfg.Socket.PingPeriod,
		PongWait:   cfg.Socket.PongWait,
		WriteWait:  cfg.Socket.WriteWait,
	})
	messageHandler := app.NewMessageHandler(messagingUC, cfg.Auth.Issuer, cfg.Auth.SocketTokenTTL)

	// 4. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.MessagingServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, chatWebsocket, messageHandler)
	testtool.StartPprof("")

	port := cfg.Port
	if config.EnvConfig.MessagingServicePort != "" {
		port = config.EnvConfig.MessagingServicePort
	}
	logger.Log.Info("Messaging Service listening", zap.String("port", port))
	if err := r.Listen(":" + port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

// connectRedis prefers a standalone address, then sentinel discovery from
// the environment. Nil means the service runs single-node.
func connectRedis(c config.RedisConfig) *redis.Client {
	if c.Addr != "" {
		client, err := database.NewRedisStandalone(c.Addr, c.Password, c.RedisDB)
		if err != nil {
			logger.Log.Fatal("connect redis", zap.String("addr", c.Addr), zap.Error(err))
		}
		return client
	}

	masterName, sentinel := config.GetRedisSetting()
	if len(sentinel) == 0 {
		logger.Log.Warn("no redis configured, presence and fan-out stay in process")
		return nil
	}
	client, err := database.NewRedisClient(masterName, sentinel, c.Password, c.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	return client
}
