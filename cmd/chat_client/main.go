package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	chatapp "social_chat_service/internal/chatclient/app"
	"social_chat_service/internal/chatclient/domain"
	"social_chat_service/internal/chatclient/repository"
	"social_chat_service/internal/chatclient/transport"
	"social_chat_service/pkg/config"
	"social_chat_service/pkg/database"
	"social_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// chat_client 無 UI 的同步客戶端, 把狀態變化寫進 log
func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatClient, config.EnvConfig.ChatClientLogPath)
	defer logger.Log.Sync()
	cfg := config.MustLoadConfig[config.ChatClient](config.EnvConfig.ChatClient, config.EnvConfig.ChatClientYAMLPath)
	logger.Log.SetDebugMode(!config.IsProduction())

	if cfg.ServerURL == "" || cfg.Token == "" {
		logger.Log.Fatal("server_url and token are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api := transport.NewHTTPAPI(cfg.ServerURL, cfg.Token, cfg.RequestTimeout)

	var prefs chatapp.PreferenceRepository = repository.NewMemoryPreferenceRepository(domain.Selection{})
	if cfg.Redis.Enabled {
		masterName, sentinel := config.GetRedisSetting()
		redisClient, err := database.NewRedisClient(ctx, cfg.Redis.Addr, masterName, sentinel, cfg.Redis.RedisDB)
		if err != nil {
			logger.Log.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		store := database.NewRedisRepository[domain.Selection](redisClient, "chat_client:")
		prefs = repository.NewRedisPreferenceRepository(store, cfg.MemberID)
	}

	opts := []chatapp.Option{chatapp.WithSelf(cfg.MemberID)}
	if cfg.PollInterval > 0 {
		opts = append(opts, chatapp.WithPollInterval(cfg.PollInterval))
	}
	if cfg.ReadMarkThrottle > 0 {
		opts = append(opts, chatapp.WithReadMarkThrottle(cfg.ReadMarkThrottle))
	}

	engine := chatapp.NewEngine(api, prefs, repository.NewMemoryNavigator(cfg.DeepLinkUserID), opts...)
	engine.Subscribe(logState)

	engine.Start(ctx)
	logger.Log.Info("chat client started", zap.String("server", cfg.ServerURL), zap.String("member", cfg.MemberID))

	<-ctx.Done()
	engine.Stop()
	logger.Log.Info("chat client stopped")
}

func logState(s domain.State) {
	unread := 0
	for _, row := range s.Inbox {
		unread += row.UnreadCount
	}
	th := s.SelectedThread()
	logger.Log.Debug("state",
		zap.Int("conversations", len(s.Inbox)),
		zap.Int("unread", unread),
		zap.String("selected", s.Selection.ConversationID),
		zap.Int("entries", len(th.Entries)),
		zap.Bool("has_more_older", th.HasMoreOlder),
	)
}
