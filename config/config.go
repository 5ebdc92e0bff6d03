package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Chunk    ChunkConfig    `mapstructure:"chunk"`
	Glossary GlossaryConfig `mapstructure:"glossary"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host          string `mapstructure:"host"`                                 // 服务器主机
	Port          int    `mapstructure:"port" validate:"min=1,max=65535"`      // 服务器端口
	MaxUploadSize int64  `mapstructure:"max_upload_size" validate:"min=1024"` // 上传文件大小上限（字节）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"` // 日志级别
	File       string `mapstructure:"file"`                                         // 日志文件路径，为空则只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`                                  // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`                                  // 保留的旧日志数量
	MaxAgeDays int    `mapstructure:"max_age_days"`                                 // 旧日志保留天数
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`                             // 是否启用缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`                            // Redis地址
	Password string `mapstructure:"password"`                           // Redis密码
	DB       int    `mapstructure:"db"`                                 // Redis数据库
	TTL      int    `mapstructure:"ttl"`                                // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`                       // 是否启用任务队列
	Type          string `mapstructure:"type"`                         // 队列类型：redis
	RedisAddr     string `mapstructure:"redis_addr"`                   // Redis地址
	RedisPassword string `mapstructure:"redis_password"`               // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`                     // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency" validate:"min=1"` // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`                  // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`                  // 重试延迟(秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite"` // 数据库类型
	DSN  string `mapstructure:"dsn" validate:"required"`      // 数据源名称
}

// ChunkConfig 分块配置
type ChunkConfig struct {
	DefaultLevel int `mapstructure:"default_level" validate:"min=1,max=6"` // 默认分块标题深度
	MaxLines     int `mapstructure:"max_lines" validate:"min=0"`           // 单个文档最大行数，0表示不限制
	CacheTTL     int `mapstructure:"cache_ttl"`                            // 分块结果缓存时间（秒）
}

// GlossaryConfig 术语表构建配置
type GlossaryConfig struct {
	Scorer           string        `mapstructure:"scorer" validate:"oneof=keyword openai"` // 评分器：keyword 或 openai
	Model            string        `mapstructure:"model"`                                  // 模型名称
	APIKey           string        `mapstructure:"api_key"`                                // API密钥
	Endpoint         string        `mapstructure:"endpoint"`                               // API端点
	Concurrency      int           `mapstructure:"concurrency" validate:"min=1"`           // 并发评分数
	RequestInterval  time.Duration `mapstructure:"request_interval"`                       // 两次评分请求之间的间隔
	TermColumn       string        `mapstructure:"term_column"`                            // 术语列名
	DefinitionColumn string        `mapstructure:"definition_column"`                      // 定义列名
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// .env 文件可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
			// 写出默认配置文件
			if err := os.MkdirAll(filepath.Dir(configPath), 0755); err == nil {
				if err := v.WriteConfigAs(configPath); err != nil {
					log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
				}
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，例如 CHUNK_DEFAULT_LEVEL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := processEnvironmentVariables(&config)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// processEnvironmentVariables 展开形如 ${VAR} 的配置值
func processEnvironmentVariables(cfg *Config) *Config {
	cfg.Glossary.APIKey = expandEnv(cfg.Glossary.APIKey)
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.Queue.RedisPassword = expandEnv(cfg.Queue.RedisPassword)
	return cfg
}

// expandEnv 如果值为 ${VAR} 形式且环境变量存在，则返回环境变量的值
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
			return envVal
		}
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_size", 32<<20)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "poligolly")
	v.SetDefault("storage.use_ssl", false)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 3600)

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/poligolly.db")

	// 分块默认配置
	v.SetDefault("chunk.default_level", 1)
	v.SetDefault("chunk.max_lines", 1_000_000)
	v.SetDefault("chunk.cache_ttl", 3600)

	// 术语表默认配置
	v.SetDefault("glossary.scorer", "keyword")
	v.SetDefault("glossary.model", "gpt-4o-mini")
	v.SetDefault("glossary.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("glossary.endpoint", "https://api.openai.com/v1")
	v.SetDefault("glossary.concurrency", 2)
	v.SetDefault("glossary.request_interval", "0s")
	v.SetDefault("glossary.term_column", "Sub-term")
	v.SetDefault("glossary.definition_column", "Definition")
}
