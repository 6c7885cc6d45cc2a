package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Security SecurityConfig
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	GRPCAddr         string `mapstructure:"grpc_addr"`
	HTTPAddr         string `mapstructure:"http_addr"`
	EnableReflection bool   `mapstructure:"enable_reflection"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
}

// SecurityConfig holds the operator token and device signing secret.
type SecurityConfig struct {
	AuthToken     string `mapstructure:"auth_token"`
	SigningSecret string `mapstructure:"signing_secret"`
}

// Load reads configuration from file and env. Env var overrides use prefix EDGEHUB_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.grpc_addr", "127.0.0.1:50051")
	v.SetDefault("server.http_addr", "127.0.0.1:8080")
	v.SetDefault("server.enable_reflection", false)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("security.auth_token", "")
	v.SetDefault("security.signing_secret", "")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("EDGEHUB_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "edgehub"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("EDGEHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
