package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string        `json:"log_level" yaml:"log_level"`
	LogFormat string        `json:"log_format" yaml:"log_format"`
	Station   StationConfig `json:"station" yaml:"station"`
	Capture   CaptureConfig `json:"capture" yaml:"capture"`
	Gate      GateConfig    `json:"gate" yaml:"gate"`
	Backend   BackendConfig `json:"backend" yaml:"backend"`
	API       APIConfig     `json:"api" yaml:"api"`
	Storage   StorageConfig `json:"storage" yaml:"storage"`
	Recent    RecentConfig  `json:"recent" yaml:"recent"`
}

type StationConfig struct {
	ID         string `json:"id" yaml:"id"`
	LocationID string `json:"location_id" yaml:"location_id"`
}

type CaptureConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	Profiles      []ProfileConfig `json:"profiles" yaml:"profiles"`
}

// ProfileConfig describes one way of reaching the scanner's decode stream.
// Profiles are tried in order until one opens.
type ProfileConfig struct {
	Type       string   `json:"type" yaml:"type"`
	Addr       string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	Path       string   `json:"path,omitempty" yaml:"path,omitempty"`
	StartAtEnd bool     `json:"start_at_end,omitempty" yaml:"start_at_end,omitempty"`
	Brokers    []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	Topic      string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	GroupID    string   `json:"group_id,omitempty" yaml:"group_id,omitempty"`
}

type GateConfig struct {
	CooldownSeconds int           `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	TickInterval    time.Duration `json:"tick_interval" yaml:"tick_interval"`
	SilenceWindow   time.Duration `json:"silence_window" yaml:"silence_window"`
	DecodeInterval  time.Duration `json:"decode_interval" yaml:"decode_interval"`
}

type BackendConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Token       string        `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	HistoryDays int           `json:"history_days" yaml:"history_days"`
}

type APIConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Addr    string   `json:"addr" yaml:"addr"`
	Keys    []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type RecentConfig struct {
	Limit int `json:"limit" yaml:"limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Station: StationConfig{
			ID:         "station01",
			LocationID: "main",
		},
		Capture: CaptureConfig{
			ChannelBuffer: 1024,
			Profiles: []ProfileConfig{
				{Type: "tcp", Addr: "127.0.0.1:7700"},
				{Type: "rest", Addr: ":8090"},
			},
		},
		Gate: GateConfig{
			CooldownSeconds: 5,
			TickInterval:    1 * time.Second,
			SilenceWindow:   500 * time.Millisecond,
			DecodeInterval:  1 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:     "http://localhost:3000",
			Timeout:     15 * time.Second,
			HistoryDays: 1,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:scangate.db?_pragma=busy_timeout(5000)"},
		Recent:  RecentConfig{Limit: 50},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Station.ID == "" {
		cfg.Station.ID = "station01"
	}
	if cfg.Capture.ChannelBuffer <= 0 {
		cfg.Capture.ChannelBuffer = 1024
	}
	if cfg.Gate.CooldownSeconds <= 0 {
		cfg.Gate.CooldownSeconds = 5
	}
	if cfg.Gate.TickInterval <= 0 {
		cfg.Gate.TickInterval = 1 * time.Second
	}
	if cfg.Gate.SilenceWindow <= 0 {
		cfg.Gate.SilenceWindow = 500 * time.Millisecond
	}
	if cfg.Gate.DecodeInterval <= 0 {
		cfg.Gate.DecodeInterval = 1 * time.Second
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 15 * time.Second
	}
	if cfg.Backend.HistoryDays <= 0 {
		cfg.Backend.HistoryDays = 1
	}
	if cfg.Recent.Limit <= 0 {
		cfg.Recent.Limit = 50
	}
}

func Validate(cfg *Config) error {
	if cfg.Station.LocationID == "" {
		return errors.New("station.location_id is required")
	}
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if len(cfg.Capture.Profiles) == 0 {
		return errors.New("capture.profiles must list at least one source profile")
	}
	for i, p := range cfg.Capture.Profiles {
		switch strings.ToLower(p.Type) {
		case "tcp":
			if p.Addr == "" {
				return fmt.Errorf("capture.profiles[%d]: tcp profile requires addr", i)
			}
		case "file":
			if p.Path == "" {
				return fmt.Errorf("capture.profiles[%d]: file profile requires path", i)
			}
		case "kafka":
			if len(p.Brokers) == 0 || p.Topic == "" || p.GroupID == "" {
				return fmt.Errorf("capture.profiles[%d]: kafka profile requires brokers, topic, group_id", i)
			}
		case "rest":
			if p.Addr == "" {
				return fmt.Errorf("capture.profiles[%d]: rest profile requires addr", i)
			}
		default:
			return fmt.Errorf("capture.profiles[%d]: unknown profile type %q", i, p.Type)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func NewManagerFromConfig(cfg *Config) *Manager {
	m := &Manager{}
	applyDefaults(cfg)
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
