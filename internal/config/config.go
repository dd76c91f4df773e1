package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Modbus  ModbusConfig  `mapstructure:"modbus"`
	Devices DevicesConfig `mapstructure:"devices"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// ModbusConfig holds the per-device defaults; entries in the device list
// override them.
type ModbusConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	Port              int           `mapstructure:"port"`
	UnitID            int           `mapstructure:"unit_id"`
}

type DevicesConfig struct {
	File string `mapstructure:"file"`
}

// AuthConfig protects the REST and WebSocket API. Disabled by default.
// Tokens lists long-lived machine tokens; only their hashes are stored.
type AuthConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration  `mapstructure:"token_ttl"`
	Tokens    []MachineToken `mapstructure:"tokens"`
}

type MachineToken struct {
	Name string `mapstructure:"name"`
	Role string `mapstructure:"role"`
	Hash string `mapstructure:"hash"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads the YAML file at path. An empty path uses defaults and
// environment only. Environment variables use the ET7000_ prefix, e.g.
// ET7000_MODBUS_TIMEOUT=200ms.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ET7000")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("modbus.timeout", "150ms")
	v.SetDefault("modbus.poll_interval", "1s")
	v.SetDefault("modbus.reconnect_interval", "5s")
	v.SetDefault("modbus.port", 502)
	v.SetDefault("modbus.unit_id", 1)

	v.SetDefault("devices.file", "configs/devices.yaml")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}
	if c.Modbus.Port <= 0 || c.Modbus.Port > 65535 {
		return fmt.Errorf("invalid modbus.port: %d", c.Modbus.Port)
	}
	if c.Modbus.UnitID < 0 || c.Modbus.UnitID > 255 {
		return fmt.Errorf("invalid modbus.unit_id: %d", c.Modbus.UnitID)
	}
	if c.Modbus.Timeout <= 0 {
		return fmt.Errorf("modbus.timeout must be positive")
	}
	if c.Modbus.PollInterval <= 0 {
		return fmt.Errorf("modbus.poll_interval must be positive")
	}
	if c.Modbus.ReconnectInterval <= 0 {
		return fmt.Errorf("modbus.reconnect_interval must be positive")
	}
	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be positive")
		}
		for _, t := range c.Auth.Tokens {
			if t.Name == "" || t.Hash == "" {
				return fmt.Errorf("auth.tokens entries need a name and a hash")
			}
		}
	}
	return nil
}
