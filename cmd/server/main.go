package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/subosito/gotenv"
	"gorm.io/gorm"

	"hbai-chat-go/internal/chat"
	"hbai-chat-go/internal/config"
	"hbai-chat-go/internal/generator"
	"hbai-chat-go/internal/handler"
	"hbai-chat-go/internal/middleware"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/pipeline"
	"hbai-chat-go/internal/repository"
	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/database"
	"hbai-chat-go/pkg/device"
	"hbai-chat-go/pkg/kafka"
	"hbai-chat-go/pkg/llm"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/storage"
	"hbai-chat-go/pkg/token"
)

func main() {
	// 1. 加载 .env 与配置
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("配置和日志初始化完成")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 加载生成后端，失败时回退到 mock
	gen := initGenerator(rootCtx, cfg)
	defer gen.Unload()

	// 4. 初始化会话存储
	var rdb *redis.Client
	openRedis := func() *redis.Client {
		if rdb == nil {
			client, err := database.OpenRedis(rootCtx, cfg.Database.Redis)
			if err != nil {
				log.Fatal("Redis 初始化失败", err)
			}
			rdb = client
		}
		return rdb
	}
	var sessionRepo repository.SessionRepository
	if strings.EqualFold(cfg.Session.Store, "memory") {
		sessionRepo = repository.NewMemorySessionRepository(cfg.Session.TTL(), cfg.Session.TemporaryTTL())
		log.Info("会话存储: memory")
	} else {
		sessionRepo = repository.NewSessionRepository(openRedis(), cfg.Session.TTL(), cfg.Session.TemporaryTTL())
		log.Info("会话存储: redis")
	}

	// 5. 初始化归档管道 (Kafka + MySQL)
	var (
		publisher   service.ArchivePublisher
		archiveRepo repository.ArchiveRepository
		producer    *kafka.Producer
		db          *gorm.DB
	)
	if cfg.Archive.Enabled {
		var err error
		db, err = database.OpenMySQL(cfg.Database.MySQL.DSN, &model.ArchivedExchange{})
		if err != nil {
			log.Fatal("MySQL 初始化失败", err)
		}
		archiveRepo = repository.NewArchiveRepository(db)
		producer = kafka.NewProducer(cfg.Archive)
		publisher = producer
		go kafka.StartConsumer(rootCtx, cfg.Archive, kafka.NewRedisAttemptTracker(openRedis()), pipeline.NewArchiver(archiveRepo))
	} else {
		publisher = service.NewNoopArchivePublisher()
		log.Info("归档功能未启用")
	}

	// 6. 初始化导出存储 (MinIO)
	var transcripts service.TranscriptStore
	if cfg.Export.Enabled {
		store, err := storage.NewObjectStore(rootCtx, cfg.Export)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		transcripts = store
	} else {
		log.Info("导出功能未启用")
	}

	// 7. 初始化 Service
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	locks := service.NewSessionLocks()
	timeout := cfg.LLM.Generation.Timeout()
	services := handler.Services{
		Sessions: service.NewSessionService(sessionRepo, chat.New(gen), locks, service.StaleAfter(timeout)),
		Chat:     service.NewChatService(sessionRepo, gen, publisher, locks, timeout),
		Export:   service.NewExportService(sessionRepo, transcripts),
		Archive:  service.NewArchiveService(archiveRepo),
	}

	// 8. 设置 Gin 路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	limiter := middleware.NewVisitorLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	handler.RegisterRoutes(r, services, jwtManager, limiter)

	// 9. 启动 HTTP 服务器
	serverAddr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("监听端口失败: %s\n", err)
		}
	}()

	// 10. 实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务关闭失败", err)
	}

	stop()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if db != nil {
		database.CloseMySQL(db)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Errorf("关闭 Redis 失败: %v", err)
		}
	}

	log.Info("服务已退出")
}

// initGenerator 解析设备与模型配置并加载生成后端。
// 依赖缺失、下载失败或配置不兼容时回退到 mock 后端，服务仍可启动。
func initGenerator(ctx context.Context, cfg config.Config) generator.Generator {
	dev, err := device.Resolve(ctx, cfg.Model.Device)
	if err != nil {
		log.Fatal("设备配置无效", err)
	}
	mcfg, err := generator.NewModelConfig(cfg.Model, dev)
	if err != nil {
		log.Fatal("模型配置无效", err)
	}

	mockDelay := time.Duration(cfg.Model.MockDelayMS) * time.Millisecond
	if cfg.Model.ForceMock {
		log.Info("已配置 force_mock，使用 mock 后端")
		return generator.NewMockModelManager(mcfg, mockDelay, nil)
	}

	mgr, err := generator.Load(ctx, llm.NewClient(cfg.LLM), mcfg, cfg.LLM)
	if err != nil {
		var loadErr *generator.LoadError
		if !errors.As(err, &loadErr) {
			log.Fatal("模型加载失败", err)
		}
		log.Warnf("模型加载失败 (%s)，回退到 mock 后端: %v", loadErr.Reason, err)
		return generator.NewMockModelManager(mcfg, mockDelay, nil)
	}
	return mgr
}
