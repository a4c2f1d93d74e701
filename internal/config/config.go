package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultRouterHost   = "192.168.0.1"
	DefaultRouterPort   = 8000
	DefaultScanInterval = 3   // seconds
	DefaultTimeout      = 5   // seconds
	DefaultRateLimit    = 120 // calls per minute
	DefaultListenPort   = 8080
	DefaultRetention    = 30 // days
)

var (
	ErrRouterExists   = errors.New("router already exists")
	ErrRouterNotFound = errors.New("router not found")
)

type Config struct {
	Admin            AdminConfig    `mapstructure:"admin"`
	Routers          []RouterConfig `mapstructure:"routers" validate:"dive"`
	MQTT             MQTTConfig     `mapstructure:"mqtt"`
	DatabasePath     string         `mapstructure:"database_path" validate:"required"`
	SessionSecret    string         `mapstructure:"session_secret"`
	ListenPort       int            `mapstructure:"listen_port" validate:"min=1,max=65535"`
	LogLevel         string         `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogRetentionDays int            `mapstructure:"log_retention_days" validate:"min=1"`
	SetupComplete    bool           `mapstructure:"setup_complete"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// RouterConfig describes one SRM router whose WiFi radios are exposed as switches.
type RouterConfig struct {
	Name         string `mapstructure:"name" json:"name" validate:"required,router_name"`
	Host         string `mapstructure:"host" json:"host" validate:"required,hostname_rfc1123|ip"`
	Port         int    `mapstructure:"port" json:"port" validate:"min=1,max=65535"`
	Username     string `mapstructure:"username" json:"username" validate:"required"`
	Password     string `mapstructure:"password" json:"-" validate:"required"`
	HTTPS        bool   `mapstructure:"https" json:"https"`
	VerifyTLS    bool   `mapstructure:"verify_tls" json:"verify_tls"`
	ScanInterval int    `mapstructure:"scan_interval" json:"scan_interval" validate:"min=1"` // seconds
	Timeout      int    `mapstructure:"timeout" json:"timeout" validate:"min=1"`             // seconds
	RateLimit    int    `mapstructure:"rate_limit" json:"rate_limit" validate:"min=1"`       // calls per minute
}

// MQTTConfig enables Home Assistant discovery of the WiFi switches.
type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker" validate:"omitempty,url"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

func (r RouterConfig) ScanDuration() time.Duration {
	return time.Duration(r.ScanInterval) * time.Second
}

func (r RouterConfig) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

func LoadOrInitialize(configPath string) (*Config, error) {
	v := newViper(configPath)

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &Config{
			DatabasePath:     v.GetString("database_path"),
			SessionSecret:    generateSessionSecret(),
			ListenPort:       v.GetInt("listen_port"),
			LogLevel:         v.GetString("log_level"),
			LogRetentionDays: v.GetInt("log_retention_days"),
			MQTT: MQTTConfig{
				TopicPrefix:     v.GetString("mqtt.topic_prefix"),
				DiscoveryPrefix: v.GetString("mqtt.discovery_prefix"),
			},
			SetupComplete: false,
		}

		if err := SaveConfig(configPath, cfg); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure session secret exists
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = generateSessionSecret()
		if err := SaveConfig(configPath, &cfg); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("database_path", "srm_switches.db")
	v.SetDefault("listen_port", DefaultListenPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_retention_days", DefaultRetention)
	v.SetDefault("mqtt.topic_prefix", "srm")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("setup_complete", false)
	return v
}

func SaveConfig(configPath string, cfg *Config) error {
	v := newViper(configPath)

	v.Set("admin.username", cfg.Admin.Username)
	v.Set("admin.password_hash", cfg.Admin.PasswordHash)

	v.Set("mqtt.enabled", cfg.MQTT.Enabled)
	v.Set("mqtt.broker", cfg.MQTT.Broker)
	v.Set("mqtt.username", cfg.MQTT.Username)
	v.Set("mqtt.password", cfg.MQTT.Password)
	v.Set("mqtt.client_id", cfg.MQTT.ClientID)
	v.Set("mqtt.topic_prefix", cfg.MQTT.TopicPrefix)
	v.Set("mqtt.discovery_prefix", cfg.MQTT.DiscoveryPrefix)

	v.Set("database_path", cfg.DatabasePath)
	v.Set("session_secret", cfg.SessionSecret)
	v.Set("listen_port", cfg.ListenPort)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_retention_days", cfg.LogRetentionDays)
	v.Set("setup_complete", cfg.SetupComplete)

	// Manually set routers to ensure correct field names
	var routers []map[string]interface{}
	for _, r := range cfg.Routers {
		routers = append(routers, map[string]interface{}{
			"name":          r.Name,
			"host":          r.Host,
			"port":          r.Port,
			"username":      r.Username,
			"password":      r.Password,
			"https":         r.HTTPS,
			"verify_tls":    r.VerifyTLS,
			"scan_interval": r.ScanInterval,
			"timeout":       r.Timeout,
			"rate_limit":    r.RateLimit,
		})
	}
	v.Set("routers", routers)

	return v.WriteConfigAs(configPath)
}

// ApplyDefaults fills zero values, including per-router ones viper cannot default.
func (c *Config) ApplyDefaults() {
	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}
	if c.LogRetentionDays == 0 {
		c.LogRetentionDays = DefaultRetention
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "srm_switches.db"
	}
	for i := range c.Routers {
		c.Routers[i].applyDefaults()
	}
}

func (r *RouterConfig) applyDefaults() {
	if r.Host == "" {
		r.Host = DefaultRouterHost
	}
	if r.Port == 0 {
		r.Port = DefaultRouterPort
	}
	if r.ScanInterval == 0 {
		r.ScanInterval = DefaultScanInterval
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultTimeout
	}
	if r.RateLimit == 0 {
		r.RateLimit = DefaultRateLimit
	}
}

func (c *Config) IsConfigured() bool {
	return c.SetupComplete && c.Admin.Username != "" && len(c.Routers) > 0
}

func (c *Config) SetAdminPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.Admin.PasswordHash = string(hash)
	return nil
}

func (c *Config) VerifyAdminPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(c.Admin.PasswordHash), []byte(password))
	return err == nil
}

// AddRouter validates and appends a router, filling defaults.
func (c *Config) AddRouter(router RouterConfig) error {
	for _, r := range c.Routers {
		if r.Name == router.Name {
			return ErrRouterExists
		}
	}

	router.applyDefaults()
	if err := ValidateRouter(router); err != nil {
		return err
	}

	c.Routers = append(c.Routers, router)
	return nil
}

func (c *Config) RemoveRouter(name string) error {
	for i, r := range c.Routers {
		if r.Name == name {
			c.Routers = append(c.Routers[:i], c.Routers[i+1:]...)
			return nil
		}
	}
	return ErrRouterNotFound
}

func (c *Config) GetRouter(name string) *RouterConfig {
	for i := range c.Routers {
		if c.Routers[i].Name == name {
			return &c.Routers[i]
		}
	}
	return nil
}

func generateSessionSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// This should never happen with crypto/rand
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}
