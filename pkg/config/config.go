package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/mahaj/chatrelay/pkg/log"
)

// MinChannelCapacity is the smallest per-subscriber broadcast buffer accepted.
const MinChannelCapacity = 1000

type Config struct {
	Server    ServerConfig
	API       APIConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Redis     RedisConfig
	History   HistoryConfig
	Presence  PresenceConfig
	Scylla    ScyllaConfig
	Kafka     KafkaConfig
	Node      NodeConfig
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type APIConfig struct {
	Host     string
	Port     int
	DevLogin bool `mapstructure:"dev_login"`
	// AllowedOrigins may make credentialed cross-origin requests. "*" allows
	// any origin without credentials.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type WebSocketConfig struct {
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ChannelCapacity int           `mapstructure:"channel_capacity"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	CookieName string        `mapstructure:"cookie_name"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type HistoryConfig struct {
	Backend   string
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PresenceConfig struct {
	Enabled   bool
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string `mapstructure:"group_id"`
}

type NodeConfig struct {
	ID int64
}

// Load reads config/config.yaml (if any) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.dev_login", false)
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.ping_interval", "0s")
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.channel_capacity", MinChannelCapacity)
	v.SetDefault("websocket.allowed_origins", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.cookie_name", "jwt")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("history.backend", "redis")
	v.SetDefault("history.key_prefix", "room:")
	v.SetDefault("presence.enabled", true)
	v.SetDefault("presence.key_prefix", "presence:")
	v.SetDefault("scylla.hosts", []string{"localhost:9042"})
	v.SetDefault("scylla.keyspace", "chat")
	v.SetDefault("scylla.timeout", "5s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:19092"})
	v.SetDefault("kafka.topic", "chat-messages")
	v.SetDefault("kafka.group_id", "archiver")
	v.SetDefault("node.id", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "")
}

// Validate rejects configurations the relay cannot run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.History.Backend {
	case "redis", "scylla", "memory":
	default:
		return errors.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.WebSocket.ChannelCapacity < MinChannelCapacity {
		return errors.Errorf("websocket.channel_capacity must be at least %d", MinChannelCapacity)
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("websocket.max_message_size must be positive")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.History.Backend == "scylla" {
		return errors.New("kafka archiving writes to scylla; use the redis or memory history backend with it")
	}
	if c.Node.ID < 0 || c.Node.ID > 1023 {
		return errors.New("node.id must be between 0 and 1023")
	}
	return nil
}
