// Package config resolves client settings from flags, GRIEVANCE_* env vars,
// an optional .env file and an optional config.toml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "GRIEVANCE"
	configName = "config"
	configType = "toml"

	KeyAPIURL          = "api_url"
	KeyWSURL           = "ws_url"
	KeyProfile         = "profile"
	KeySessionBackend  = "session_backend"
	KeySessionFile     = "session_file"
	KeyRedisAddr       = "redis_addr"
	KeyLogLevel        = "log_level"
	KeyNotifyQueueSize = "notify_queue_size"
	KeyMetricsAddr     = "metrics_addr"
)

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var ErrUnknownBackend = errors.New("config: unknown session backend")

type Config struct {
	APIURL          string
	WSURL           string
	Profile         string
	SessionBackend  string
	SessionFile     string
	RedisAddr       string
	LogLevel        string
	NotifyQueueSize int
	MetricsAddr     string
}

// New returns a viper instance with defaults, env binding and the config
// file search path set. Flags bound later take precedence over both.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIURL, "http://localhost:8000")
	v.SetDefault(KeyProfile, "default")
	v.SetDefault(KeySessionBackend, BackendFile)
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyNotifyQueueSize, 50)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "grievance-chat"))
	}
	return v
}

// BindFlags maps flags spelled with dashes (api-url) onto their keys (api_url).
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load reads .env (when present) and the config file, then resolves every key.
func Load(v *viper.Viper) (Config, error) {
	_ = godotenv.Load(".env")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		APIURL:          strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIURL)), "/"),
		WSURL:           strings.TrimRight(strings.TrimSpace(v.GetString(KeyWSURL)), "/"),
		Profile:         v.GetString(KeyProfile),
		SessionBackend:  strings.ToLower(v.GetString(KeySessionBackend)),
		SessionFile:     v.GetString(KeySessionFile),
		RedisAddr:       v.GetString(KeyRedisAddr),
		LogLevel:        v.GetString(KeyLogLevel),
		NotifyQueueSize: v.GetInt(KeyNotifyQueueSize),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
	}

	switch cfg.SessionBackend {
	case BackendFile, BackendMemory, BackendRedis:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.SessionBackend)
	}

	if cfg.WSURL == "" {
		ws, err := WebSocketURL(cfg.APIURL)
		if err != nil {
			return Config{}, err
		}
		cfg.WSURL = ws
	}
	return cfg, nil
}

// WebSocketURL derives the socket origin from the REST base: http becomes ws
// and https becomes wss.
func WebSocketURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("config: parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("config: api url %q must be http or https", apiURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("config: api url %q has no host", apiURL)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
