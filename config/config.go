package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/wricardo/bingo-client/transport/websocket"
)

var (
	ErrConfigNotFound = errors.New("config: configuration not found")
	ErrInvalidConfig  = errors.New("config: invalid configuration")
)

// Store kinds
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the resolved client configuration
type Config struct {
	Endpoint EndpointConfig
	Timing   TimingConfig
	Store    StoreConfig
	Log      LogConfig
	API      APIConfig
}

// EndpointConfig selects the draw server
type EndpointConfig struct {
	Mode   string
	Host   string
	Port   int
	Path   string
	Secure bool
	URL    string
}

// TimingConfig holds the connection timers
type TimingConfig struct {
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	WriteWait         time.Duration
}

// StoreConfig selects the session backend
type StoreConfig struct {
	Kind      string
	Dir       string
	RedisURL  string
	Namespace string
}

type LogConfig struct {
	Level  string
	Format string
}

type APIConfig struct {
	Addr string
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{
			Mode: string(websocket.ModeDevelopment),
			Host: "localhost",
			Port: websocket.DefaultPort,
			Path: websocket.DefaultPath,
		},
		Timing: TimingConfig{
			ReconnectDelay:    3 * time.Second,
			HeartbeatInterval: 25 * time.Second,
			WriteWait:         10 * time.Second,
		},
		Store: StoreConfig{
			Kind:      StoreMemory,
			Dir:       ".bingo",
			Namespace: "bingo:session",
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatConsole,
		},
		API: APIConfig{
			Addr: "127.0.0.1:8081",
		},
	}
}

// fileConfig mirrors the on-disk layout. Durations are strings.
type fileConfig struct {
	Endpoint struct {
		Mode   string `toml:"mode"`
		Host   string `toml:"host"`
		Port   int    `toml:"port"`
		Path   string `toml:"path"`
		Secure bool   `toml:"secure"`
		URL    string `toml:"url"`
	} `toml:"endpoint"`
	Timing struct {
		ReconnectDelay    string `toml:"reconnect_delay"`
		HeartbeatInterval string `toml:"heartbeat_interval"`
		WriteWait         string `toml:"write_wait"`
	} `toml:"timing"`
	Store struct {
		Kind      string `toml:"kind"`
		Dir       string `toml:"dir"`
		RedisURL  string `toml:"redis_url"`
		Namespace string `toml:"namespace"`
	} `toml:"store"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	API struct {
		Addr string `toml:"addr"`
	} `toml:"api"`
}

// Load reads a TOML file on top of Default. Keys absent from the file keep
// their default value.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return apply(Default(), raw, meta)
}

// Decode is Load for an in-memory document
func Decode(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if meta.IsDefined("endpoint", "mode") {
		cfg.Endpoint.Mode = strings.TrimSpace(raw.Endpoint.Mode)
	}
	if meta.IsDefined("endpoint", "host") {
		cfg.Endpoint.Host = strings.TrimSpace(raw.Endpoint.Host)
	}
	if meta.IsDefined("endpoint", "port") {
		cfg.Endpoint.Port = raw.Endpoint.Port
	}
	if meta.IsDefined("endpoint", "path") {
		cfg.Endpoint.Path = strings.TrimSpace(raw.Endpoint.Path)
	}
	if meta.IsDefined("endpoint", "secure") {
		cfg.Endpoint.Secure = raw.Endpoint.Secure
	}
	if meta.IsDefined("endpoint", "url") {
		cfg.Endpoint.URL = strings.TrimSpace(raw.Endpoint.URL)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"reconnect_delay", raw.Timing.ReconnectDelay, &cfg.Timing.ReconnectDelay},
		{"heartbeat_interval", raw.Timing.HeartbeatInterval, &cfg.Timing.HeartbeatInterval},
		{"write_wait", raw.Timing.WriteWait, &cfg.Timing.WriteWait},
	}
	for _, d := range durations {
		if !meta.IsDefined("timing", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse timing.%s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("store", "kind") {
		cfg.Store.Kind = strings.ToLower(strings.TrimSpace(raw.Store.Kind))
	}
	if meta.IsDefined("store", "dir") {
		cfg.Store.Dir = strings.TrimSpace(raw.Store.Dir)
	}
	if meta.IsDefined("store", "redis_url") {
		cfg.Store.RedisURL = strings.TrimSpace(raw.Store.RedisURL)
	}
	if meta.IsDefined("store", "namespace") {
		cfg.Store.Namespace = strings.TrimSpace(raw.Store.Namespace)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}

	if meta.IsDefined("api", "addr") {
		cfg.API.Addr = strings.TrimSpace(raw.API.Addr)
	}

	return cfg, nil
}

// toFile converts cfg back to its on-disk layout
func toFile(cfg Config) fileConfig {
	var raw fileConfig
	raw.Endpoint.Mode = cfg.Endpoint.Mode
	raw.Endpoint.Host = cfg.Endpoint.Host
	raw.Endpoint.Port = cfg.Endpoint.Port
	raw.Endpoint.Path = cfg.Endpoint.Path
	raw.Endpoint.Secure = cfg.Endpoint.Secure
	raw.Endpoint.URL = cfg.Endpoint.URL
	raw.Timing.ReconnectDelay = cfg.Timing.ReconnectDelay.String()
	raw.Timing.HeartbeatInterval = cfg.Timing.HeartbeatInterval.String()
	raw.Timing.WriteWait = cfg.Timing.WriteWait.String()
	raw.Store.Kind = cfg.Store.Kind
	raw.Store.Dir = cfg.Store.Dir
	raw.Store.RedisURL = cfg.Store.RedisURL
	raw.Store.Namespace = cfg.Store.Namespace
	raw.Log.Level = cfg.Log.Level
	raw.Log.Format = cfg.Log.Format
	raw.API.Addr = cfg.API.Addr
	return raw
}

// Validate checks enums, ranges and cross-field requirements
func (c Config) Validate() error {
	if _, err := websocket.ParseMode(c.Endpoint.Mode); err != nil {
		return fmt.Errorf("%w: endpoint.mode: %v", ErrInvalidConfig, err)
	}
	if c.Endpoint.Port < 1 || c.Endpoint.Port > 65535 {
		return fmt.Errorf("%w: endpoint.port %d out of range", ErrInvalidConfig, c.Endpoint.Port)
	}
	if c.Endpoint.URL != "" && !strings.HasPrefix(c.Endpoint.URL, "ws://") && !strings.HasPrefix(c.Endpoint.URL, "wss://") {
		return fmt.Errorf("%w: endpoint.url must use ws:// or wss://", ErrInvalidConfig)
	}

	if c.Timing.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: timing.reconnect_delay must be positive", ErrInvalidConfig)
	}
	if c.Timing.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: timing.heartbeat_interval must be positive", ErrInvalidConfig)
	}
	if c.Timing.WriteWait <= 0 {
		return fmt.Errorf("%w: timing.write_wait must be positive", ErrInvalidConfig)
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("%w: store.dir is required for the file store", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: store.redis_url is required for the redis store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.kind %q", ErrInvalidConfig, c.Store.Kind)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}

	if c.API.Addr != "" {
		if _, _, err := net.SplitHostPort(c.API.Addr); err != nil {
			return fmt.Errorf("%w: api.addr: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// WebsocketEndpoint converts the endpoint section for URL resolution.
// Validate must have passed.
func (c Config) WebsocketEndpoint() websocket.Endpoint {
	mode, _ := websocket.ParseMode(c.Endpoint.Mode)
	return websocket.Endpoint{
		Mode:     mode,
		Host:     c.Endpoint.Host,
		Port:     c.Endpoint.Port,
		Path:     c.Endpoint.Path,
		Secure:   c.Endpoint.Secure,
		Override: c.Endpoint.URL,
	}
}

// ClientOptions builds websocket client options with the resolved URL
func (c Config) ClientOptions() websocket.Options {
	return websocket.Options{
		URL:               websocket.ResolveURL(c.WebsocketEndpoint()),
		ReconnectDelay:    c.Timing.ReconnectDelay,
		HeartbeatInterval: c.Timing.HeartbeatInterval,
		WriteWait:         c.Timing.WriteWait,
	}
}

// UnknownKeys lists keys in the file that no configuration field reads,
// which usually means a typo.
func UnknownKeys(path string) ([]string, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	var keys []string
	for _, k := range meta.Undecoded() {
		keys = append(keys, k.String())
	}
	return keys, nil
}
