package config

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var DefaultConfig = Config{
	Server: ServerConfig{
		ListenAddr:            ":8080",
		Principals:            map[string]string{"admin": "password", "control": "password"},
		ReadLimit:             1 << 20,
		PktQueueSize:          1024,
		SessionLifetime:       600, // seconds without traffic
		HouseKeepingInterval:  500 * time.Millisecond,
		WriteTimeout:          5 * time.Second,
		PacketSnifferCapacity: 1024,
		EventBufferSize:       256,
	},
	Client: ClientConfig{
		ServerURL:        "ws://localhost:8080",
		Principal:        "admin",
		Credentials:      "password",
		HandshakeTimeout: 15 * time.Second,
		ResponseTimeout:  10 * time.Second,
		ReadLimit:        1 << 20,
	},
	Appender: AppenderConfig{
		TopicPrefix: "time-series",
		Values:      []string{"Value 1", "Value 2", "Value 3", "Value 4"},
		SettleDelay: 300 * time.Millisecond,
	},
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Appender AppenderConfig `yaml:"appender"`
}

type ServerConfig struct {
	ListenAddr            string            `yaml:"listen_addr" validate:"required"`
	Principals            map[string]string `yaml:"principals" validate:"min=1"`
	ReadLimit             int64             `yaml:"read_limit" validate:"gt=0"`
	PktQueueSize          int               `yaml:"pkt_queue_size" validate:"gt=0"`
	SessionLifetime       int               `yaml:"session_lifetime" validate:"gt=0"`
	HouseKeepingInterval  time.Duration     `yaml:"housekeeping_interval" validate:"gt=0"`
	WriteTimeout          time.Duration     `yaml:"write_timeout" validate:"gt=0"`
	PacketSnifferCapacity int               `yaml:"packet_sniffer_capacity" validate:"gt=0"`
	EventBufferSize       int               `yaml:"event_buffer_size" validate:"gt=0"`
}

type ClientConfig struct {
	ServerURL        string        `yaml:"server_url" validate:"required,url"`
	Principal        string        `yaml:"principal" validate:"required"`
	Credentials      string        `yaml:"credentials"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" validate:"gt=0"`
	ResponseTimeout  time.Duration `yaml:"response_timeout" validate:"gt=0"`
	ReadLimit        int64         `yaml:"read_limit" validate:"gt=0"`
}

type AppenderConfig struct {
	TopicPrefix string        `yaml:"topic_prefix" validate:"required"`
	Values      []string      `yaml:"values" validate:"min=1"`
	SettleDelay time.Duration `yaml:"settle_delay" validate:"gte=0"`
}

// Environment variables read by ApplyEnv.
const (
	EnvServerURL   = "RTSERIES_URL"
	EnvPrincipal   = "RTSERIES_PRINCIPAL"
	EnvCredentials = "RTSERIES_CREDENTIALS"
	EnvListenAddr  = "RTSERIES_LISTEN_ADDR"
	EnvTopicPrefix = "RTSERIES_TOPIC_PREFIX"
)

var validate = validator.New()

// Default returns a deep copy of DefaultConfig.
func Default() Config {
	cfg := DefaultConfig
	cfg.Server.Principals = maps.Clone(DefaultConfig.Server.Principals)
	cfg.Appender.Values = slices.Clone(DefaultConfig.Appender.Values)
	return cfg
}

// Load reads the YAML file at path on top of the defaults. An empty path
// yields the defaults. Environment overrides are applied afterwards and the
// result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Config] Ignoring .env: %v", err)
	}
	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any RTSERIES_* variables that are set.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := os.Getenv(EnvPrincipal); v != "" {
		cfg.Client.Principal = v
	}
	if v := os.Getenv(EnvCredentials); v != "" {
		cfg.Client.Credentials = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvTopicPrefix); v != "" {
		cfg.Appender.TopicPrefix = v
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
