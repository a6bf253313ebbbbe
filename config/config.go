package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Image     ImageConfig     `mapstructure:"image"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	Scratch   ScratchConfig   `mapstructure:"scratch"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type ImageConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
}

// SegmenterConfig 分割引擎配置
// Engine 可选 rembg（HTTP 推理服务）或 grabcut（本地 OpenCV）
type SegmenterConfig struct {
	Engine        string        `mapstructure:"engine"`
	Endpoint      string        `mapstructure:"endpoint"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Iterations    int           `mapstructure:"iterations"`
	BorderSize    int           `mapstructure:"border_size"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  int           `mapstructure:"queue_timeout"`
}

type ScratchConfig struct {
	Dir      string        `mapstructure:"dir"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Schedule string        `mapstructure:"schedule"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// New 使用默认配置路径加载配置
// 文件缺失属正常情况；文件存在但损坏时告警后回退默认配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to load config.yaml, falling back to defaults: %v\n", err)
		}
		cfg = getDefaultConfig()
		applyEnv(cfg)
	}
	return cfg
}

// applyEnv 环境变量覆盖文件配置
func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = ":" + strings.TrimPrefix(port, ":")
	}
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		cfg.Server.Mode = "debug"
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if url := os.Getenv("REMBG_URL"); url != "" {
		cfg.Segmenter.Endpoint = url
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":5000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 5*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{"png", "jpg", "jpeg", "webp"})

	v.SetDefault("image.max_dimension", 2048)

	v.SetDefault("segmenter.engine", "rembg")
	v.SetDefault("segmenter.endpoint", "http://localhost:7000/api/remove")
	v.SetDefault("segmenter.model", "u2net")
	v.SetDefault("segmenter.timeout", 120*time.Second)
	v.SetDefault("segmenter.iterations", 5)
	v.SetDefault("segmenter.border_size", 10)
	v.SetDefault("segmenter.max_concurrent", 3)
	v.SetDefault("segmenter.queue_timeout", 30)

	v.SetDefault("scratch.dir", "./scratch")
	v.SetDefault("scratch.max_age", time.Hour)
	v.SetDefault("scratch.schedule", "@every 10m")
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":5000",
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:           5 * 1024 * 1024,
			AllowedExtensions: []string{"png", "jpg", "jpeg", "webp"},
		},
		Image: ImageConfig{
			MaxDimension: 2048,
		},
		Segmenter: SegmenterConfig{
			Engine:        "rembg",
			Endpoint:      "http://localhost:7000/api/remove",
			Model:         "u2net",
			Timeout:       120 * time.Second,
			Iterations:    5,
			BorderSize:    10,
			MaxConcurrent: 3,
			QueueTimeout:  30,
		},
		Scratch: ScratchConfig{
			Dir:      "./scratch",
			MaxAge:   time.Hour,
			Schedule: "@every 10m",
		},
	}
}
