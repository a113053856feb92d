package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	TV          TVConfig          `yaml:"tv"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Integration IntegrationConfig `yaml:"integration"`
	Admin       AdminConfig       `yaml:"admin"`
}

// ServerConfig represents server identity
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents REST API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration. 留空 URL 关闭事件广播
type NATSConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TVConfig 设备会话配置
type TVConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PairingWindow  time.Duration `yaml:"pairing_window"`
	SecurePort     int           `yaml:"secure_port"`
	InsecurePort   int           `yaml:"insecure_port"`
	// AutoReconnect 进程启动时尝试用最近的有效凭据恢复会话
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// DiscoveryConfig 设备发现配置
type DiscoveryConfig struct {
	MulticastAddr string        `yaml:"multicast_addr"`
	SearchTarget  string        `yaml:"search_target"`
	Timeout       time.Duration `yaml:"timeout"`
}

// IntegrationConfig configures outbound event forwarding
type IntegrationConfig struct {
	MQTT MQTTIntegrationConfig `yaml:"mqtt"`
	HTTP HTTPIntegrationConfig `yaml:"http"`
}

// MQTTIntegrationConfig forwards TV events to an MQTT broker
type MQTTIntegrationConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BrokerURL    string `yaml:"broker_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TopicPattern string `yaml:"topic_pattern"` // {address} 和 {event} 占位符
	QoS          byte   `yaml:"qos"`
}

// HTTPIntegrationConfig forwards TV events to a webhook
type HTTPIntegrationConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// AdminConfig seeds the initial admin user when the user table is empty
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if adminPassword := os.Getenv("ADMIN_PASSWORD"); adminPassword != "" {
		c.Admin.Password = adminPassword
	}
}

// applyDefaults 填充未配置项的默认值
func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "tvlink-server"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.TV.ConnectTimeout == 0 {
		c.TV.ConnectTimeout = 10 * time.Second
	}
	if c.TV.RequestTimeout == 0 {
		c.TV.RequestTimeout = 10 * time.Second
	}
	if c.TV.PairingWindow == 0 {
		c.TV.PairingWindow = 60 * time.Second
	}
	if c.TV.SecurePort == 0 {
		c.TV.SecurePort = 3001
	}
	if c.TV.InsecurePort == 0 {
		c.TV.InsecurePort = 3000
	}

	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = 5 * time.Second
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.Integration.MQTT.TopicPattern == "" {
		c.Integration.MQTT.TopicPattern = "tvlink/{address}/{event}"
	}
	if c.Integration.HTTP.Timeout == 0 {
		c.Integration.HTTP.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.TV.PairingWindow < 10*time.Second {
		return fmt.Errorf("tv.pairing_window too short: %s", c.TV.PairingWindow)
	}
	if c.Integration.MQTT.Enabled && c.Integration.MQTT.BrokerURL == "" {
		return fmt.Errorf("integration.mqtt.broker_url is required when MQTT is enabled")
	}
	if c.Integration.HTTP.Enabled && c.Integration.HTTP.Endpoint == "" {
		return fmt.Errorf("integration.http.endpoint is required when HTTP is enabled")
	}
	return nil
}

// PrintConfigSummary 打印配置摘要
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== TVLink Server Configuration ===\n")
	fmt.Printf("Server: %s v%s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("API: %s:%d\n", c.API.Host, c.API.Port)
	fmt.Printf("TV session: connect=%s request=%s pairing window=%s\n",
		c.TV.ConnectTimeout, c.TV.RequestTimeout, c.TV.PairingWindow)
	fmt.Printf("TV ports: secure=%d insecure=%d\n", c.TV.SecurePort, c.TV.InsecurePort)
	fmt.Printf("Auto reconnect: %v\n", c.TV.AutoReconnect)
	fmt.Printf("Discovery timeout: %s\n", c.Discovery.Timeout)

	if c.NATS.URL != "" {
		fmt.Printf("NATS: %s\n", c.NATS.URL)
	} else {
		fmt.Printf("NATS: disabled\n")
	}
	fmt.Printf("MQTT integration: %v\n", c.Integration.MQTT.Enabled)
	fmt.Printf("HTTP integration: %v\n", c.Integration.HTTP.Enabled)
}
