package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Relay      RelayConfig      `yaml:"relay"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds the session token settings.
type AuthConfig struct {
	Secret          string        `yaml:"secret"`
	TokenTTLMinutes int           `yaml:"token_ttl_minutes"`
	TokenTTL        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey      string        `yaml:"vapid_public_key"`
	PrivateKey     string        `yaml:"vapid_private_key"`
	Subject        string        `yaml:"subject"`
	TTL            int           `yaml:"ttl"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// WorkerPoolConfig holds the configuration for the push dispatch worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// RelayConfig holds the websocket relay tuning knobs.
type RelayConfig struct {
	SendBufferSize   int           `yaml:"send_buffer_size"`
	WriteWaitSeconds int           `yaml:"write_wait_seconds"`
	PongWaitSeconds  int           `yaml:"pong_wait_seconds"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	MaxContentLength int           `yaml:"max_content_length"`
	WriteWait        time.Duration `yaml:"-"`
	PongWait         time.Duration `yaml:"-"`
	PingPeriod       time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = 12 * 60
	}
	cfg.Auth.TokenTTL = time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.TimeoutSeconds <= 0 {
		cfg.Push.TimeoutSeconds = 10
	}
	cfg.Push.Timeout = time.Duration(cfg.Push.TimeoutSeconds) * time.Second

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 4")
		cfg.WorkerPool.Size = 4
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Relay.SendBufferSize <= 0 {
		cfg.Relay.SendBufferSize = 256
	}
	if cfg.Relay.WriteWaitSeconds <= 0 {
		cfg.Relay.WriteWaitSeconds = 10
	}
	if cfg.Relay.PongWaitSeconds <= 0 {
		cfg.Relay.PongWaitSeconds = 60
	}
	if cfg.Relay.MaxMessageBytes <= 0 {
		cfg.Relay.MaxMessageBytes = 4096
	}
	if cfg.Relay.MaxContentLength <= 0 {
		cfg.Relay.MaxContentLength = 2000
	}
	cfg.Relay.WriteWait = time.Duration(cfg.Relay.WriteWaitSeconds) * time.Second
	cfg.Relay.PongWait = time.Duration(cfg.Relay.PongWaitSeconds) * time.Second
	cfg.Relay.PingPeriod = (cfg.Relay.PongWait * 9) / 10

	return &cfg, nil
}
