package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Client   ClientConfig   `mapstructure:"client"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ClientConfig configures the REST side of the sync client.
type ClientConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst      int           `mapstructure:"rate_burst"`
	DispatchQueue  int           `mapstructure:"dispatch_queue"`
	DispatchWorker int           `mapstructure:"dispatch_workers"`
}

// RealtimeConfig configures the persistent push channel.
type RealtimeConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LikedTTL time.Duration `mapstructure:"liked_ttl"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig is used by the development backend only.
type ServerConfig struct {
	Addr       string        `mapstructure:"addr"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	FanoutTick time.Duration `mapstructure:"fanout_tick"`
	Seed       bool          `mapstructure:"seed"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Endpoint string  `mapstructure:"endpoint"`
	Insecure bool    `mapstructure:"insecure"`
	Ratio    float64 `mapstructure:"ratio"`
}

// Load 读取 config.yaml（可选）与 LIVESYNC_* 环境变量
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the given file when path is non-empty, otherwise searches
// ./config.yaml and ./config/config.yaml.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("LIVESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "livesync")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("client.api_base", "http://localhost:4000")
	v.SetDefault("client.request_timeout", 10*time.Second)
	v.SetDefault("client.rate_limit", 20.0)
	v.SetDefault("client.rate_burst", 10)
	v.SetDefault("client.dispatch_queue", 1024)
	v.SetDefault("client.dispatch_workers", 2)

	v.SetDefault("realtime.url", "ws://localhost:4000/ws")
	v.SetDefault("realtime.handshake_timeout", 5*time.Second)
	v.SetDefault("realtime.reconnect_timeout", 2*time.Second)
	v.SetDefault("realtime.ping_interval", 15*time.Second)
	v.SetDefault("realtime.write_timeout", 5*time.Second)
	v.SetDefault("realtime.read_timeout", 45*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.liked_ttl", 30*24*time.Hour)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:livesync.db?_busy_timeout=5000")

	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.jwt_secret", "dev-secret")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.fanout_tick", 20*time.Millisecond)
	v.SetDefault("server.seed", true)

	v.SetDefault("sentry.dsn", "")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.ratio", 1.0)
}
