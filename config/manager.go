package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/wricardo/bingo-client/transport/websocket"
)

// DefaultProfile is loaded when no profile name is given.
const DefaultProfile = "default"

// ProfileInfo describes one profile file for listings
type ProfileInfo struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	URL      string `json:"url"`
	Store    string `json:"store"`
}

// Manager handles named configuration profiles stored as TOML files in a
// directory, caching each profile after the first load.
type Manager struct {
	configDir string
	configs   map[string]Config
	mu        sync.RWMutex
}

// NewManager creates a profile manager for configDir
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	return &Manager{
		configDir: configDir,
		configs:   make(map[string]Config),
	}, nil
}

// Dir returns the profile directory
func (m *Manager) Dir() string {
	return m.configDir
}

func profileFile(name string) string {
	if !strings.HasSuffix(name, ".toml") {
		return name + ".toml"
	}
	return name
}

// LoadConfig loads a profile by name. A missing default profile resolves to
// Default(); any other missing profile is ErrConfigNotFound.
func (m *Manager) LoadConfig(name string) (Config, error) {
	if name == "" {
		name = DefaultProfile
	}
	name = strings.TrimSuffix(name, ".toml")

	m.mu.RLock()
	// Check cache first
	if cfg, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return cfg, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cfg, exists := m.configs[name]; exists {
		return cfg, nil
	}

	path := filepath.Join(m.configDir, profileFile(name))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if name == DefaultProfile {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}

	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	// Cache the config
	m.configs[name] = cfg
	return cfg, nil
}

// ListConfigs returns information about every valid profile in the directory
func (m *Manager) ListConfigs() ([]ProfileInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var profiles []ProfileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".toml")
		cfg, err := m.LoadConfig(name)
		if err != nil {
			// Skip invalid profiles
			continue
		}

		profiles = append(profiles, ProfileInfo{
			Filename: entry.Name(),
			Name:     name,
			Mode:     cfg.Endpoint.Mode,
			URL:      websocket.ResolveURL(cfg.WebsocketEndpoint()),
			Store:    cfg.Store.Kind,
		})
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// SaveConfig validates cfg and writes it as a profile
func (m *Manager) SaveConfig(name string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := Encode(cfg)
	if err != nil {
		return err
	}

	name = strings.TrimSuffix(name, ".toml")
	path := filepath.Join(m.configDir, profileFile(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// Update cache
	m.mu.Lock()
	m.configs[name] = cfg
	m.mu.Unlock()

	return nil
}

// RefreshCache drops every cached profile
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = make(map[string]Config)
}

// Encode renders cfg as a TOML document that Load reads back unchanged
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(toFile(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
