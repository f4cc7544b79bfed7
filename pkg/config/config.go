package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/duochat/duochat/pkg/chat"
)

type Config struct {
	Server  ServerConfig  `json:"server" toml:"server" yaml:"server"`
	Widget  WidgetConfig  `json:"widget" toml:"widget" yaml:"widget"`
	Session SessionConfig `json:"session" toml:"session" yaml:"session"`
	Preview PreviewConfig `json:"preview" toml:"preview" yaml:"preview"`
	Log     LogConfig     `json:"log" toml:"log" yaml:"log"`
	mu      sync.RWMutex
}

type ServerConfig struct {
	BaseURL        string   `json:"base_url" toml:"base_url" yaml:"base_url" env:"DUOCHAT_SERVER_BASE_URL"`
	UploadsPrefix  string   `json:"uploads_prefix" toml:"uploads_prefix" yaml:"uploads_prefix" env:"DUOCHAT_SERVER_UPLOADS_PREFIX"`
	RequestTimeout Duration `json:"request_timeout" toml:"request_timeout" yaml:"request_timeout" env:"DUOCHAT_SERVER_REQUEST_TIMEOUT"`
	MaxUploadBytes int64    `json:"max_upload_bytes" toml:"max_upload_bytes" yaml:"max_upload_bytes" env:"DUOCHAT_SERVER_MAX_UPLOAD_BYTES"`
}

type WidgetConfig struct {
	DefaultChannel string   `json:"default_channel" toml:"default_channel" yaml:"default_channel" env:"DUOCHAT_WIDGET_DEFAULT_CHANNEL"`
	PollInterval   Duration `json:"poll_interval" toml:"poll_interval" yaml:"poll_interval" env:"DUOCHAT_WIDGET_POLL_INTERVAL"`
	ReplyDelay     Duration `json:"reply_delay" toml:"reply_delay" yaml:"reply_delay" env:"DUOCHAT_WIDGET_REPLY_DELAY"`
	TimeLayout     string   `json:"time_layout" toml:"time_layout" yaml:"time_layout" env:"DUOCHAT_WIDGET_TIME_LAYOUT"`
	Locale         string   `json:"locale" toml:"locale" yaml:"locale" env:"DUOCHAT_WIDGET_LOCALE"`
}

type SessionConfig struct {
	StorePath string `json:"store_path" toml:"store_path" yaml:"store_path" env:"DUOCHAT_SESSION_STORE_PATH"`
	Key       string `json:"key" toml:"key" yaml:"key" env:"DUOCHAT_SESSION_KEY"`
}

// PreviewConfig configures the local browser preview. Login is required
// only when Username and either PasswordHash or Password are set.
type PreviewConfig struct {
	Host     string `json:"host" toml:"host" yaml:"host" env:"DUOCHAT_PREVIEW_HOST"`
	Port     int    `json:"port" toml:"port" yaml:"port" env:"DUOCHAT_PREVIEW_PORT"`
	Username string `json:"username" toml:"username" yaml:"username" env:"DUOCHAT_PREVIEW_USERNAME"`
	// PasswordHash is a bcrypt hash (see `duochat preview hash-password`).
	// It takes precedence over the plaintext Password.
	PasswordHash string `json:"password_hash" toml:"password_hash" yaml:"password_hash" env:"DUOCHAT_PREVIEW_PASSWORD_HASH"`
	Password     string `json:"password" toml:"password" yaml:"password" env:"DUOCHAT_PREVIEW_PASSWORD"`
}

type LogConfig struct {
	Level string `json:"level" toml:"level" yaml:"level" env:"DUOCHAT_LOG_LEVEL"`
	File  string `json:"file" toml:"file" yaml:"file" env:"DUOCHAT_LOG_FILE"`
}

// Duration is a time.Duration written as a string ("2s", "800ms") in every
// config format.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:5000",
			UploadsPrefix:  "/uploads/",
			RequestTimeout: Duration{15 * time.Second},
			MaxUploadBytes: 16 << 20,
		},
		Widget: WidgetConfig{
			DefaultChannel: string(chat.ChannelAI),
			PollInterval:   Duration{2 * time.Second},
			ReplyDelay:     Duration{800 * time.Millisecond},
			TimeLayout:     "15:04:05",
			Locale:         "fa",
		},
		Session: SessionConfig{
			StorePath: "~/.duochat/storage.db",
			Key:       "userSession",
		},
		Preview: PreviewConfig{
			Host: "127.0.0.1",
			Port: 18800,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Whole config from the environment, for containers.
	if cfgJSON := os.Getenv("DUOCHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing DUOCHAT_CONFIG_JSON: %w", err)
		}
		if err := env.Parse(cfg); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(expandHome(path))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	case "yaml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// format picks the config syntax from the file extension; JSON is the
// default.
func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func decode(path string, data []byte, cfg *Config) error {
	switch format(path) {
	case "toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case "yaml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate rejects values the widget cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Server.BaseURL == "" {
		return fmt.Errorf("config: server.base_url is required")
	}
	if _, err := chat.ParseChannel(c.Widget.DefaultChannel); err != nil {
		return fmt.Errorf("config: widget.default_channel: %w", err)
	}
	if c.Widget.PollInterval.Duration <= 0 {
		return fmt.Errorf("config: widget.poll_interval must be positive")
	}
	if c.Widget.ReplyDelay.Duration < 0 {
		return fmt.Errorf("config: widget.reply_delay must not be negative")
	}
	return nil
}

// DefaultChannel returns the parsed default channel, falling back to ai.
func (c *Config) DefaultChannel() chat.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, err := chat.ParseChannel(c.Widget.DefaultChannel)
	if err != nil {
		return chat.ChannelAI
	}
	return ch
}

func (c *Config) SessionStorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Session.StorePath)
}

func (c *Config) LogFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Log.File)
}

// DefaultPath is where the CLI looks for a config file.
func DefaultPath() string {
	return expandHome("~/.duochat/config.json")
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
