package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vzahanych/land2port/internal/logger"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LAND2PORT_"

// Service provides configuration management with environment variable support
type Service struct {
	config     *Config
	configPath string
	logger     *logger.Logger
	mu         sync.RWMutex
	watchers   []ConfigWatcher
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(ctx context.Context, oldConfig, newConfig *Config) error

// NewService creates a new configuration service
func NewService(configPath string, log *logger.Logger) (*Service, error) {
	cfg, err := LoadAndValidate(configPath)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		watchers:   make([]ConfigWatcher, 0),
	}, nil
}

// LoadAndValidate loads a file, applies environment overrides and validates the result
func LoadAndValidate(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Get returns the current configuration (thread-safe)
func (s *Service) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Reload reloads the configuration from file. Running streams keep the settings they started
// with; new streams see the reloaded values.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldConfig := s.config

	newConfig, err := LoadAndValidate(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	s.config = newConfig

	for _, watcher := range s.watchers {
		if err := watcher(ctx, oldConfig, newConfig); err != nil {
			s.logger.Error("Config watcher error", "error", err)
		}
	}

	s.logger.Info("Configuration reloaded", "path", s.configPath)
	return nil
}

// Watch registers a configuration change watcher
func (s *Service) Watch(watcher ConfigWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, watcher)
}

// applyEnvOverrides applies environment variable overrides to configuration.
// Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Reframe settings
	if val := getEnv("OBJECTS"); val != "" {
		cfg.Reframe.Objects = splitList(val)
	}
	if val := getEnv("SMOOTHING_STRATEGY"); val != "" {
		cfg.Reframe.Smoothing.Strategy = val
	}
	if val := getEnv("SMOOTHING_PERCENTAGE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Reframe.Smoothing.Percentage = v
		}
	}
	if val := getEnv("SMOOTHING_DURATION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Reframe.Smoothing.Duration = d
		}
	}
	if val := getEnv("CUT_SIMILARITY"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Reframe.Cut.Similarity = v
		}
	}
	if val := getEnv("CUT_START"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Reframe.Cut.Start = v
		}
	}
	if val := getEnv("STACKING_ENABLED"); val != "" {
		cfg.Reframe.Stacking.Enabled = parseBool(val)
	}
	if val := getEnv("KEEP_TEXT"); val != "" {
		cfg.Reframe.Text.Keep = parseBool(val)
	}

	// Pipeline settings
	if val := getEnv("QUEUE_DEPTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Pipeline.QueueDepth = n
		}
	}
	if val := getEnv("DETECT_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Pipeline.DetectWorkers = n
		}
	}

	// Detector settings
	if val := getEnv("DETECTOR_URL"); val != "" {
		cfg.Detector.ServiceURL = val
	}
	if val := getEnv("DETECTOR_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Detector.Timeout = d
		}
	}

	// Storage settings
	if val := getEnv("DATA_DIR"); val != "" {
		cfg.Storage.DataDir = val
	}
	if val := getEnv("JOURNAL_ENABLED"); val != "" {
		cfg.Storage.JournalEnabled = parseBool(val)
	}

	// Web settings
	if val := getEnv("WEB_ENABLED"); val != "" {
		cfg.Web.Enabled = parseBool(val)
	}
	if val := getEnv("WEB_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Web.Port = n
		}
	}

	// Log settings
	if val := getEnv("LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := getEnv("LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := getEnv("LOG_OUTPUT"); val != "" {
		cfg.Log.Output = val
	}
}

func getEnv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
