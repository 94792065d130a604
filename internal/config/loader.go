package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "RELAY"
	envConfigDefaultPath = "RELAY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// A .env file in the working directory is loaded into the environment first.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) && logger != nil {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can resolve nested values
// such as RELAY_TRACKER_ADDR.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("tracker.addr", cfg.Tracker.Addr)
	v.SetDefault("tracker.admin_addr", cfg.Tracker.AdminAddr)
	v.SetDefault("tracker.database_path", cfg.Tracker.DatabasePath)
	v.SetDefault("tracker.users_file", cfg.Tracker.UsersFile)
	v.SetDefault("tracker.static_dir", cfg.Tracker.StaticDir)
	v.SetDefault("tracker.default_channel", cfg.Tracker.DefaultChannel)
	v.SetDefault("tracker.heartbeat_timeout", cfg.Tracker.HeartbeatTimeout)
	v.SetDefault("tracker.read_timeout", cfg.Tracker.ReadTimeout)
	v.SetDefault("tracker.max_header_bytes", cfg.Tracker.MaxHeaderBytes)
	v.SetDefault("tracker.shutdown_timeout", cfg.Tracker.ShutdownTimeout)

	v.SetDefault("peer.tracker_url", cfg.Peer.TrackerURL)
	v.SetDefault("peer.username", cfg.Peer.Username)
	v.SetDefault("peer.listen_addr", cfg.Peer.ListenAddr)
	v.SetDefault("peer.advertise_ip", cfg.Peer.AdvertiseIP)
	v.SetDefault("peer.data_dir", cfg.Peer.DataDir)
	v.SetDefault("peer.heartbeat_interval", cfg.Peer.HeartbeatInterval)
	v.SetDefault("peer.refresh_interval", cfg.Peer.RefreshInterval)
	v.SetDefault("peer.drain_interval", cfg.Peer.DrainInterval)
	v.SetDefault("peer.dial_timeout", cfg.Peer.DialTimeout)
	v.SetDefault("peer.request_timeout", cfg.Peer.RequestTimeout)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
