package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	VideoService VideoServiceConfig `mapstructure:"video_service"`
	Callback     CallbackConfig     `mapstructure:"callback"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port" validate:"required"`
	Env      string `mapstructure:"env" validate:"oneof=development production"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"` // sqlite 为文件路径，postgres 为连接串
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret" validate:"required"` // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"`                // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`                     // 签发者
}

// VideoServiceConfig 外部视频生成服务
type VideoServiceConfig struct {
	DevelopmentURL string        `mapstructure:"development_url"`
	ProductionURL  string        `mapstructure:"production_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// CallbackConfig 视频生成完成后的回调地址
type CallbackConfig struct {
	DevelopmentURL string `mapstructure:"development_url"`
	ProductionURL  string `mapstructure:"production_url"`
}

type SchedulerConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	VideoGenerationSpec  string        `mapstructure:"video_generation_spec" validate:"required"`
	StaleGeneratingAfter time.Duration `mapstructure:"stale_generating_after"`
	CandidateLimit       int           `mapstructure:"candidate_limit" validate:"gte=1"`
}

type StorageConfig struct {
	Driver   string   `mapstructure:"driver" validate:"oneof=local s3"`
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // 可选，兼容 S3 协议的存储
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == EnvProduction
}

// VideoServiceURL 按运行环境选择视频生成服务地址
func (c *Config) VideoServiceURL() string {
	if c.IsProduction() {
		return c.VideoService.ProductionURL
	}
	return c.VideoService.DevelopmentURL
}

func (c *Config) callbackBaseURL() string {
	if c.IsProduction() {
		return c.Callback.ProductionURL
	}
	return c.Callback.DevelopmentURL
}

// CallbackURL 按运行环境选择回调地址
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.callbackBaseURL(), "/") + "/video-generation-callback"
}

// Load 读取配置文件与环境变量，配置文件不存在时仅使用默认值和环境变量
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件出错: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解码配置: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.env", EnvDevelopment)
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "data/xeocast.db")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "xeocast")

	viper.SetDefault("video_service.development_url", "http://localhost:8000")
	viper.SetDefault("video_service.production_url", "")
	viper.SetDefault("video_service.api_key", "")
	viper.SetDefault("video_service.timeout", 30*time.Second)

	viper.SetDefault("callback.development_url", "http://localhost:5000")
	viper.SetDefault("callback.production_url", "")

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.video_generation_spec", "@every 1m")
	viper.SetDefault("scheduler.stale_generating_after", 2*time.Hour)
	viper.SetDefault("scheduler.candidate_limit", 10)

	viper.SetDefault("storage.driver", "local")
	viper.SetDefault("storage.local_dir", "data/storage")
	viper.SetDefault("storage.s3.bucket", "")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.endpoint", "")
	viper.SetDefault("storage.s3.access_key_id", "")
	viper.SetDefault("storage.s3.secret_access_key", "")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}
	if config.VideoServiceURL() == "" {
		return fmt.Errorf("%s 环境未设置视频生成服务地址", config.Server.Env)
	}
	if config.callbackBaseURL() == "" {
		return fmt.Errorf("%s 环境未设置回调地址", config.Server.Env)
	}
	if config.Storage.Driver == "s3" && config.Storage.S3.Bucket == "" {
		return fmt.Errorf("S3 存储未设置 bucket")
	}
	return nil
}
