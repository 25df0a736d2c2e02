// Package config loads bot settings from .env, an optional YAML file and
// the environment, in that order of precedence from lowest to highest.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"personal/botkit/src/client"
	"personal/botkit/src/logging"
)

// DefaultFile is read when no path is given and it exists.
const DefaultFile = "botkit.yaml"

const (
	EnvToken       = "DISCORD_TOKEN"
	EnvIntents     = "DISCORD_INTENTS"
	EnvGatewayURL  = "DISCORD_GATEWAY_URL"
	EnvAPIURL      = "DISCORD_API_URL"
	EnvProjectDir  = "BOTKIT_PROJECT_DIR"
	EnvDebug       = "BOTKIT_DEBUG"
	EnvMetricsAddr = "BOTKIT_METRICS_ADDR"
	EnvLogLevel    = "LOG_LEVEL"
)

// FileConfig mirrors botkit.yaml.
type FileConfig struct {
	Token          string          `yaml:"token"`
	Intents        string          `yaml:"intents"`
	GatewayURL     string          `yaml:"gateway_url"`
	APIURL         string          `yaml:"api_url"`
	ProjectDir     string          `yaml:"project_dir"`
	Debug          bool            `yaml:"debug"`
	LogLevel       string          `yaml:"log_level"`
	MetricsAddr    string          `yaml:"metrics_addr"`
	HandlerTimeout time.Duration   `yaml:"handler_timeout"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig bounds how often a failed dial is retried.
type ReconnectConfig struct {
	// MaxAttempts of zero makes the first connect failure fatal.
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// Config is the resolved configuration. The token and intents are read
// only, so a Config can be handed to the gateway as its credentials.
type Config struct {
	token   string
	intents uint32

	// GatewayURL overrides the gateway lookup when set.
	GatewayURL     string
	APIURL         string
	ProjectDir     string
	Debug          bool
	LogLevel       string
	MetricsAddr    string
	HandlerTimeout time.Duration
	Reconnect      ReconnectConfig

	// Path is the YAML file that was read, if any.
	Path string
}

func (c *Config) Token() string   { return c.token }
func (c *Config) Intents() uint32 { return c.intents }

func defaults() FileConfig {
	return FileConfig{
		Intents:    "GUILDS",
		APIURL:     client.DiscordAPI,
		ProjectDir: ".",
		Reconnect: ReconnectConfig{
			MaxAttempts:     5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
		},
	}
}

// Load resolves the configuration. An empty path reads DefaultFile when it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	logger := logging.WithComponent("config")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	fc := defaults()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := loadFile(path, &fc); err != nil {
			return nil, err
		}
		logger.Debug().Str(logging.FieldPath, path).Msg("config file loaded")
	}

	if err := applyEnv(logger, &fc); err != nil {
		return nil, err
	}

	intents, err := client.ParseIntents(fc.Intents)
	if err != nil {
		return nil, fmt.Errorf("intents: %w", err)
	}
	cfg := &Config{
		token:          strings.TrimSpace(fc.Token),
		intents:        intents,
		GatewayURL:     fc.GatewayURL,
		APIURL:         fc.APIURL,
		ProjectDir:     fc.ProjectDir,
		Debug:          fc.Debug,
		LogLevel:       fc.LogLevel,
		MetricsAddr:    fc.MetricsAddr,
		HandlerTimeout: fc.HandlerTimeout,
		Reconnect:      fc.Reconnect,
		Path:           path,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, fc *FileConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(logger zerolog.Logger, fc *FileConfig) error {
	str := func(key string, dst *string) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		ev := logger.Debug().Str("key", key).Str("source", "environment")
		if strings.Contains(strings.ToLower(key), "token") {
			ev = ev.Bool("sensitive", true)
		} else {
			ev = ev.Str("value", v)
		}
		ev.Msg("using environment variable")
		*dst = v
	}

	str(EnvToken, &fc.Token)
	str(EnvIntents, &fc.Intents)
	str(EnvGatewayURL, &fc.GatewayURL)
	str(EnvAPIURL, &fc.APIURL)
	str(EnvProjectDir, &fc.ProjectDir)
	str(EnvMetricsAddr, &fc.MetricsAddr)
	str(EnvLogLevel, &fc.LogLevel)

	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		fc.Debug = debug
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.token == "" {
		return fmt.Errorf("a bot token is required (set %s)", EnvToken)
	}
	if c.GatewayURL != "" {
		if err := checkURL(c.GatewayURL, "ws", "wss"); err != nil {
			return fmt.Errorf("gateway_url: %w", err)
		}
	}
	if err := checkURL(c.APIURL, "http", "https"); err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.HandlerTimeout < 0 {
		return errors.New("handler_timeout must not be negative")
	}
	r := c.Reconnect
	if r.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must not be negative")
	}
	if r.InitialInterval <= 0 || r.MaxInterval <= 0 {
		return errors.New("reconnect intervals must be positive")
	}
	if r.MaxInterval < r.InitialInterval {
		return errors.New("reconnect.max_interval must not be below initial_interval")
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s url", raw, strings.Join(schemes, " or "))
}
