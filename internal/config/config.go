// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Model     ModelSettings   `mapstructure:"model"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Export    ExportConfig    `mapstructure:"export"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// SessionConfig 存储会话存储相关的配置。
type SessionConfig struct {
	// Store 为 redis 或 memory
	Store               string `mapstructure:"store"`
	TTLHours            int    `mapstructure:"ttl_hours"`
	TemporaryTTLMinutes int    `mapstructure:"temporary_ttl_minutes"`
}

// TTL 返回普通会话的过期时间。
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// TemporaryTTL 返回临时会话的过期时间。
func (c SessionConfig) TemporaryTTL() time.Duration {
	return time.Duration(c.TemporaryTTLMinutes) * time.Minute
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储访客 token 的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// ModelSettings 存储模型加载相关的配置，环境变量 DEVICE/QUANTIZATION/MAX_CONTEXT_TURNS 优先。
type ModelSettings struct {
	// Device 为 cpu、cuda 或 auto
	Device string `mapstructure:"device"`
	// Quantization 为 4bit 或 none
	Quantization    string `mapstructure:"quantization"`
	MaxContextTurns int    `mapstructure:"max_context_turns"`
	MockDelayMS     int    `mapstructure:"mock_delay_ms"`
	ForceMock       bool   `mapstructure:"force_mock"`
}

// LLMConfig 存储推理服务（OpenAI 兼容接口）相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	QuantizedModel string              `mapstructure:"quantized_model"`
	Referer        string              `mapstructure:"referer"`
	Title          string              `mapstructure:"title"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature    float64 `mapstructure:"temperature"`
	TopP           float64 `mapstructure:"top_p"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// Timeout 返回调用方包裹生成调用时使用的软超时，0 表示不设超时。
func (c LLMGenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ArchiveConfig 存储问答归档管道（Kafka + MySQL）的配置。
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ExportConfig 存储会话导出（MinIO）的配置。
type ExportConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	BucketName       string `mapstructure:"bucket_name"`
	URLExpiryMinutes int    `mapstructure:"url_expiry_minutes"`
}

// URLExpiry 返回预签名下载链接的有效期。
func (c ExportConfig) URLExpiry() time.Duration {
	return time.Duration(c.URLExpiryMinutes) * time.Minute
}

// RateLimitConfig 配置每个访客提交消息的速率限制。
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// envBindings 将配置键绑定到环境变量。
var envBindings = map[string]string{
	"model.device":            "DEVICE",
	"model.quantization":      "QUANTIZATION",
	"model.max_context_turns": "MAX_CONTEXT_TURNS",
	"llm.api_key":             "OPENROUTER_API_KEY",
	"llm.base_url":            "API_BASE_URL",
	"server.port":             "PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("session.store", "redis")
	v.SetDefault("session.ttl_hours", 168)
	v.SetDefault("session.temporary_ttl_minutes", 60)
	v.SetDefault("jwt.access_token_expire_hours", 720)
	v.SetDefault("model.device", "auto")
	v.SetDefault("model.quantization", "4bit")
	v.SetDefault("model.max_context_turns", 10)
	v.SetDefault("model.mock_delay_ms", 200)
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "qwen/qwen-2-7b-instruct")
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.top_p", 0.9)
	v.SetDefault("llm.generation.max_tokens", 300)
	v.SetDefault("llm.generation.timeout_seconds", 60)
	v.SetDefault("llm.generation.max_retries", 2)
	v.SetDefault("archive.topic", "chat-archive")
	v.SetDefault("archive.group_id", "hbai-chat-archiver")
	v.SetDefault("export.url_expiry_minutes", 60)
	v.SetDefault("rate_limit.per_second", 1)
	v.SetDefault("rate_limit.burst", 5)
}

// Load 从指定路径读取 YAML 配置，叠加默认值与环境变量后返回。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
