package config

import (
	"time"

	pkgconfig "github.com/mihastele/social-space-harry/pkg/config"
	"github.com/mihastele/social-space-harry/pkg/database"
	"github.com/mihastele/social-space-harry/pkg/log"
)

// DefaultJWTSecret is used when no secret is configured. Development only.
const DefaultJWTSecret = "super_secret_key_change_in_production"

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Database  database.Config
	Redis     RedisConfig
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// UsingDefaultSecret reports whether the development secret is in effect.
func (c AuthConfig) UsingDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

type RedisConfig struct {
	Enabled           bool
	Address           string
	Password          string
	DB                int
	Prefix            string
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config", "config")
}

func LoadFrom(configPath, configName string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, configName)
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "social_space.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "relay:presence")
	v.SetDefault("redis.key_ttl", "30s")
	v.SetDefault("redis.heartbeat_interval", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-relay")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.file_path", "DATABASE_FILE_PATH")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Auth.TokenTTL = pkgconfig.Duration(v, "auth.token_ttl", 7*24*time.Hour)
	cfg.Redis.KeyTTL = pkgconfig.Duration(v, "redis.key_ttl", 30*time.Second)
	cfg.Redis.HeartbeatInterval = pkgconfig.Duration(v, "redis.heartbeat_interval", 10*time.Second)

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = DefaultJWTSecret
	}

	return &cfg, nil
}
