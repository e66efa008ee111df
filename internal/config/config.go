package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SHOPDESK"

	defaultAdminAddress   = "127.0.0.1:8790"
	defaultCachePath      = "shopdesk-cache.db"
	defaultLogLevel       = "info"
	defaultSessionKind    = "cloud"
	defaultDrainInterval  = 15 * time.Second
	defaultServerAddress  = "0.0.0.0:8780"
	defaultServerDatabase = "shopdesk-remote.db"
)

// SyncConfig captures runtime configuration for the sync agent.
type SyncConfig struct {
	AdminAddress  string
	CachePath     string
	OwnerID       string
	SessionKind   string
	RemoteURL     string
	RemoteToken   string
	DrainInterval time.Duration
	LogLevel      string
}

// ServerConfig captures runtime configuration for the dev remote store.
type ServerConfig struct {
	HTTPAddress   string
	DatabasePath  string
	SigningSecret string
	TokenTTL      time.Duration
	LogLevel      string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("admin.address", defaultAdminAddress)
	configViper.SetDefault("cache.path", defaultCachePath)
	configViper.SetDefault("session.kind", defaultSessionKind)
	configViper.SetDefault("sync.drain_interval", defaultDrainInterval)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("server.address", defaultServerAddress)
	configViper.SetDefault("server.database_path", defaultServerDatabase)
	configViper.SetDefault("server.token_ttl", 12*time.Hour)
}

// LoadSync parses the sync agent configuration from viper.
func LoadSync(configViper *viper.Viper) (SyncConfig, error) {
	cfg := SyncConfig{
		AdminAddress:  configViper.GetString("admin.address"),
		CachePath:     configViper.GetString("cache.path"),
		OwnerID:       configViper.GetString("owner.id"),
		SessionKind:   configViper.GetString("session.kind"),
		RemoteURL:     configViper.GetString("remote.url"),
		RemoteToken:   configViper.GetString("remote.token"),
		DrainInterval: configViper.GetDuration("sync.drain_interval"),
		LogLevel:      configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return SyncConfig{}, err
	}
	return cfg, nil
}

func (c SyncConfig) validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("owner.id is required")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("cache.path is required")
	}
	switch c.SessionKind {
	case "cloud":
		if strings.TrimSpace(c.RemoteURL) == "" {
			return fmt.Errorf("remote.url is required for cloud sessions")
		}
	case "mock":
	default:
		return fmt.Errorf("session.kind must be cloud or mock")
	}
	return nil
}

// LoadServer parses the dev remote store configuration from viper.
func LoadServer(configViper *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:   configViper.GetString("server.address"),
		DatabasePath:  configViper.GetString("server.database_path"),
		SigningSecret: configViper.GetString("server.signing_secret"),
		TokenTTL:      configViper.GetDuration("server.token_ttl"),
		LogLevel:      configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("server.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("server.database_path is required")
	}
	return nil
}
