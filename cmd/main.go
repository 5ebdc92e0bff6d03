package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/poli-golly/api"
	"github.com/fyerfyer/poli-golly/api/handler"
	"github.com/fyerfyer/poli-golly/api/middleware"
	appconfig "github.com/fyerfyer/poli-golly/config"
	"github.com/fyerfyer/poli-golly/internal/cache"
	"github.com/fyerfyer/poli-golly/internal/database"
	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/fyerfyer/poli-golly/internal/repository"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/fyerfyer/poli-golly/pkg/storage"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 命令行选项，非零值覆盖配置文件
type options struct {
	ConfigFile   string        // 配置文件路径
	Mode         string        // 运行模式 (debug/release)
	Port         int           // 服务端口
	LogLevel     string        // 日志级别
	QueueEnabled bool          // 是否启用任务队列
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
}

func main() {
	opts := parseFlags()

	cfg, err := appconfig.Load(opts.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(cfg, opts)

	gin.SetMode(opts.Mode)

	logger := setupLogger(cfg.Log)
	logger.Info("Starting poli-golly server...")

	// 初始化数据库
	dbConfig := database.DefaultConfig()
	dbConfig.Type = cfg.Database.Type
	dbConfig.DSN = cfg.Database.DSN
	if err := database.Setup(dbConfig, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	fileStorage, err := storage.NewStorage(storage.Config{
		Type:      cfg.Storage.Type,
		Path:      cfg.Storage.Path,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 初始化任务队列（如果启用）
	var (
		queue  *taskqueue.RedisQueue
		worker *taskqueue.RedisWorker
	)
	queueConfig := &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
		Queues:        taskqueue.DefaultConfig().Queues,
		Logger:        logger,
	}
	if cfg.Queue.Enable {
		queue, err = taskqueue.NewRedisQueue(queueConfig)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	chunkService, err := setupChunkService(cfg, fileStorage, queue, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize chunk service: %v", err)
	}
	glossaryService, err := setupGlossaryService(cfg, fileStorage, queue, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize glossary service: %v", err)
	}

	handlers := api.Handlers{
		Document: handler.NewDocumentHandler(chunkService),
		Convert:  handler.NewConvertHandler(services.NewConvertService(nil, logger)),
		Glossary: handler.NewGlossaryHandler(glossaryService),
	}

	if queue != nil {
		worker = taskqueue.NewRedisWorker(queue, queueConfig)
		worker.RegisterHandler(taskqueue.TaskChunkDocument, taskqueue.HandlerFunc(chunkService.HandleChunkTask))
		worker.RegisterHandler(taskqueue.TaskGlossaryBuild, taskqueue.HandlerFunc(glossaryService.HandleGlossaryTask))
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task worker: %v", err)
		}
		defer worker.Stop()
		handlers.Task = handler.NewTaskHandler(queue)
	}

	r := api.SetupRouter(handlers, cfg.Server.MaxUploadSize)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() options {
	var opts options

	flag.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.StringVar(&opts.Mode, "mode", gin.ReleaseMode, "Run mode (debug/release)")
	flag.IntVar(&opts.Port, "port", 0, "Server port, overrides the config file")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug/info/warn/error), overrides the config file")
	flag.BoolVar(&opts.QueueEnabled, "queue", false, "Enable the task queue regardless of the config file")
	flag.DurationVar(&opts.ReadTimeout, "read-timeout", 60*time.Second, "Read timeout")
	flag.DurationVar(&opts.WriteTimeout, "write-timeout", 60*time.Second, "Write timeout")

	flag.Parse()
	return opts
}

// applyOverrides 使用命令行参数覆盖配置文件中的值
func applyOverrides(cfg *appconfig.Config, opts options) {
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.QueueEnabled {
		cfg.Queue.Enable = true
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Queue.RedisAddr = addr
	}
}

// setupLogger 设置日志系统，配置了日志文件时同时写入滚动文件
func setupLogger(cfg appconfig.LogConfig) *logrus.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	middleware.ConfigureLogger(cfg.Level, out)
	return middleware.GetLogger()
}

// setupCache 设置分块结果缓存，未启用时返回nil
func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	if !cfg.Cache.Enable {
		return nil, nil
	}
	return cache.NewCache(cache.Config{
		Type:            cfg.Cache.Type,
		RedisAddr:       cfg.Cache.Address,
		RedisPassword:   cfg.Cache.Password,
		RedisDB:         cfg.Cache.DB,
		Namespace:       "poligolly",
		DefaultTTL:      time.Duration(cfg.Cache.TTL) * time.Second,
		CleanupInterval: 10 * time.Minute,
	})
}

// setupChunkService 创建分块服务
func setupChunkService(cfg *appconfig.Config, fileStorage storage.Storage, queue *taskqueue.RedisQueue, logger *logrus.Logger) (*services.ChunkService, error) {
	repo := repository.NewDocumentRepository()
	opts := []services.ChunkOption{
		services.WithLogger(logger),
		services.WithDocumentRepository(repo),
		services.WithStatusManager(services.NewDocumentStatusManager(repo, logger)),
		services.WithDefaultLevel(cfg.Chunk.DefaultLevel),
		services.WithMaxLines(cfg.Chunk.MaxLines),
	}

	cacheService, err := setupCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if cacheService != nil {
		opts = append(opts, services.WithCache(cacheService, time.Duration(cfg.Chunk.CacheTTL)*time.Second))
	}
	if queue != nil {
		opts = append(opts, services.WithTaskQueue(queue))
		logger.Info("Document chunking will use async task queue")
	}

	srv := services.NewChunkService(fileStorage, opts...)
	return srv, srv.Init()
}

// setupGlossaryService 创建术语表服务
func setupGlossaryService(cfg *appconfig.Config, fileStorage storage.Storage, queue *taskqueue.RedisQueue, logger *logrus.Logger) (*services.GlossaryService, error) {
	scorer, err := glossary.NewScorer(glossary.Config{
		Scorer:   cfg.Glossary.Scorer,
		Model:    cfg.Glossary.Model,
		APIKey:   cfg.Glossary.APIKey,
		Endpoint: cfg.Glossary.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	opts := []services.GlossaryOption{
		services.WithGlossaryLogger(logger),
		services.WithGlossaryRepository(repository.NewGlossaryRepository()),
		services.WithScorerName(cfg.Glossary.Scorer),
		services.WithScoring(cfg.Glossary.Concurrency, cfg.Glossary.RequestInterval),
		services.WithTermColumns(cfg.Glossary.TermColumn, cfg.Glossary.DefinitionColumn),
	}
	if queue != nil {
		opts = append(opts, services.WithGlossaryTaskQueue(queue))
	}

	srv := services.NewGlossaryService(fileStorage, scorer, opts...)
	return srv, srv.Init()
}
