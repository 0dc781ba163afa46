package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the client reads, e.g.
// RECIPE_CHAT_API_KEY.
const EnvPrefix = "RECIPE_CHAT"

// Configuration keys, shared by the config file, the environment and flags.
const (
	KeyChatEndpoint   = "chat-endpoint"
	KeyTunerEndpoint  = "tuner-endpoint"
	KeyHealthEndpoint = "health-endpoint"
	KeyAPIKey         = "api-key"
	KeyTimeout        = "timeout"
	KeyStreamTimeout  = "stream-timeout"
	KeyMaxTuners      = "max-tuners"
	KeyTemperature    = "temperature"
	KeyTopP           = "top-p"
	KeyTopK           = "top-k"
	KeyMaxTokens      = "max-tokens"
	KeyLogLevel       = "log-level"
	KeyLogFile        = "log-file"
	KeyRender         = "render"
)

// Config holds all application configuration
type Config struct {
	// Backend settings
	ChatEndpoint   string
	TunerEndpoint  string
	HealthEndpoint string
	APIKey         string
	Timeout        time.Duration
	StreamTimeout  time.Duration

	// Generation parameters, nil when left to the server
	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   *int

	// Suggestion settings
	MaxTuners int

	// Logging
	LogLevel string
	LogFile  string

	// Render finalized answers as markdown
	Render bool
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		// Backend defaults
		ChatEndpoint:   "http://localhost:8000/api/v1/chat",
		TunerEndpoint:  "http://localhost:8000/api/v1/tuners",
		HealthEndpoint: "http://localhost:8000/api/v1/health",
		Timeout:        30 * time.Second,
		StreamTimeout:  5 * time.Minute,

		MaxTuners: 8,

		LogLevel: "info",
		Render:   true,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := checkURL(KeyChatEndpoint, c.ChatEndpoint, true); err != nil {
		return err
	}
	if err := checkURL(KeyTunerEndpoint, c.TunerEndpoint, true); err != nil {
		return err
	}
	if err := checkURL(KeyHealthEndpoint, c.HealthEndpoint, false); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.StreamTimeout < 0 {
		return fmt.Errorf("stream timeout cannot be negative")
	}
	if c.MaxTuners < 1 {
		return fmt.Errorf("max tuners must be at least 1")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.TopP != nil && (*c.TopP <= 0 || *c.TopP > 1) {
		return fmt.Errorf("top-p must be in (0, 1]")
	}
	if c.TopK != nil && *c.TopK < 1 {
		return fmt.Errorf("top-k must be at least 1")
	}
	if c.MaxTokens != nil && *c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be at least 1")
	}
	return nil
}

func checkURL(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s cannot be empty", key)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", key)
	}
	return nil
}

// Load builds the configuration from, lowest to highest precedence: the
// defaults, a config file, a .env file, RECIPE_CHAT_* environment variables
// and any flags already bound to v.
//
// An empty configFile searches for config.{yaml,toml,json} in
// ~/.recipe-chat and the working directory; an empty envFile reads .env in
// the working directory. Files that were named explicitly must exist.
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	setDefaults(v, NewConfig())

	if configFile != "" {
		v.SetConfigFile(expandHome(configFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(expandHome("~/.recipe-chat"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := mergeDotEnv(v, envFile); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ChatEndpoint:   v.GetString(KeyChatEndpoint),
		TunerEndpoint:  v.GetString(KeyTunerEndpoint),
		HealthEndpoint: v.GetString(KeyHealthEndpoint),
		APIKey:         v.GetString(KeyAPIKey),
		Timeout:        v.GetDuration(KeyTimeout),
		StreamTimeout:  v.GetDuration(KeyStreamTimeout),
		MaxTuners:      v.GetInt(KeyMaxTuners),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFile:        expandHome(v.GetString(KeyLogFile)),
		Render:         v.GetBool(KeyRender),
	}
	if v.IsSet(KeyTemperature) {
		t := v.GetFloat64(KeyTemperature)
		cfg.Temperature = &t
	}
	if v.IsSet(KeyTopP) {
		p := v.GetFloat64(KeyTopP)
		cfg.TopP = &p
	}
	if v.IsSet(KeyTopK) {
		k := v.GetInt(KeyTopK)
		cfg.TopK = &k
	}
	if v.IsSet(KeyMaxTokens) {
		n := v.GetInt(KeyMaxTokens)
		cfg.MaxTokens = &n
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault(KeyChatEndpoint, d.ChatEndpoint)
	v.SetDefault(KeyTunerEndpoint, d.TunerEndpoint)
	v.SetDefault(KeyHealthEndpoint, d.HealthEndpoint)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyStreamTimeout, d.StreamTimeout)
	v.SetDefault(KeyMaxTuners, d.MaxTuners)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyRender, d.Render)
}

// mergeDotEnv layers RECIPE_CHAT_* entries of a .env file over the config
// file. The process environment is not modified.
func mergeDotEnv(v *viper.Viper, path string) error {
	required := path != ""
	if !required {
		path = ".env"
	}

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read .env file %s: %w", path, err)
	}

	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}

	values := make(map[string]any)
	for key, value := range envMap {
		if k, ok := keyFromEnv(key); ok {
			values[k] = value
		}
	}
	if len(values) == 0 {
		return nil
	}
	return v.MergeConfigMap(values)
}

// keyFromEnv maps RECIPE_CHAT_API_KEY to api-key.
func keyFromEnv(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix+"_")
	if !ok || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(strings.ToLower(rest), "_", "-"), true
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(getHomeDir(), path[1:])
	}
	return path
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	if home := GetEnv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := GetEnv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}

// GetEnv is a wrapper around os.Getenv for easier testing
var GetEnv = os.Getenv
