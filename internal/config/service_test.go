package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/vzahanych/land2port/internal/logger"
)

func createTestConfig(t *testing.T, configPath string, cfg *Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, string, *Config) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Storage.DataDir = tmpDir
	createTestConfig(t, configPath, cfg)

	svc, err := NewService(configPath, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, configPath, cfg
}

func TestNewService(t *testing.T) {
	svc, _, cfg := newTestService(t)

	if svc.Get() == nil {
		t.Fatal("Get() returned nil")
	}
	if svc.Get().Storage.DataDir != cfg.Storage.DataDir {
		t.Errorf("Expected DataDir %s, got %s", cfg.Storage.DataDir, svc.Get().Storage.DataDir)
	}
}

func TestNewService_MissingFile(t *testing.T) {
	_, err := NewService(filepath.Join(t.TempDir(), "missing.yaml"), logger.NewNopLogger())
	if err == nil {
		t.Fatal("Expected error for missing configuration file")
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Reframe.Cut.Similarity = 0.9
	cfg.Reframe.Cut.Start = 0.5
	createTestConfig(t, configPath, cfg)

	if _, err := NewService(configPath, logger.NewNopLogger()); err == nil {
		t.Fatal("Expected validation error")
	}
}

func TestService_Reload(t *testing.T) {
	svc, configPath, cfg := newTestService(t)

	cfg.Log.Level = "debug"
	cfg.Reframe.Smoothing.Strategy = "simple"
	createTestConfig(t, configPath, cfg)

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	reloaded := svc.Get()
	if reloaded.Log.Level != "debug" {
		t.Errorf("Expected Log.Level 'debug', got %s", reloaded.Log.Level)
	}
	if reloaded.Reframe.Smoothing.Strategy != "simple" {
		t.Errorf("Expected strategy 'simple', got %s", reloaded.Reframe.Smoothing.Strategy)
	}
}

func TestService_ReloadKeepsOldOnError(t *testing.T) {
	svc, configPath, _ := newTestService(t)
	before := svc.Get()

	if err := os.WriteFile(configPath, []byte("reframe:\n  smoothing:\n    strategy: wobbly\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reload(context.Background()); err == nil {
		t.Fatal("Expected reload error")
	}
	if svc.Get() != before {
		t.Error("Failed reload should keep the previous configuration")
	}
}

func TestService_Watch(t *testing.T) {
	svc, configPath, cfg := newTestService(t)

	watcherCalled := false
	svc.Watch(func(ctx context.Context, oldConfig, newConfig *Config) error {
		watcherCalled = true
		if oldConfig == nil || newConfig == nil {
			t.Error("Watcher should receive both old and new config")
		}
		if oldConfig.Web.Port == newConfig.Web.Port {
			t.Error("Watcher should see the changed port")
		}
		return nil
	})

	cfg.Web.Port = 9191
	createTestConfig(t, configPath, cfg)

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if !watcherCalled {
		t.Error("Watcher should have been called")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LAND2PORT_LOG_LEVEL", "debug")
	t.Setenv("LAND2PORT_DATA_DIR", "/custom/data")
	t.Setenv("LAND2PORT_DETECTOR_URL", "http://custom:9090")
	t.Setenv("LAND2PORT_WEB_PORT", "7000")
	t.Setenv("LAND2PORT_SMOOTHING_STRATEGY", "motion")
	t.Setenv("LAND2PORT_STACKING_ENABLED", "yes")
	t.Setenv("LAND2PORT_QUEUE_DEPTH", "32")
	t.Setenv("LAND2PORT_OBJECTS", "face, person ,")
	t.Setenv("LAND2PORT_SMOOTHING_DURATION", "not-a-duration")

	svc, _, _ := newTestService(t)
	retrieved := svc.Get()

	if retrieved.Log.Level != "debug" {
		t.Errorf("Expected Log.Level 'debug' from env, got %s", retrieved.Log.Level)
	}
	if retrieved.Storage.DataDir != "/custom/data" {
		t.Errorf("Expected DataDir '/custom/data' from env, got %s", retrieved.Storage.DataDir)
	}
	if retrieved.Detector.ServiceURL != "http://custom:9090" {
		t.Errorf("Expected ServiceURL 'http://custom:9090' from env, got %s", retrieved.Detector.ServiceURL)
	}
	if retrieved.Web.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", retrieved.Web.Port)
	}
	if retrieved.Reframe.Smoothing.Strategy != "motion" {
		t.Errorf("Expected strategy 'motion', got %s", retrieved.Reframe.Smoothing.Strategy)
	}
	if !retrieved.Reframe.Stacking.Enabled {
		t.Error("Expected stacking enabled from env")
	}
	if retrieved.Pipeline.QueueDepth != 32 {
		t.Errorf("Expected queue depth 32, got %d", retrieved.Pipeline.QueueDepth)
	}
	if len(retrieved.Reframe.Objects) != 2 || retrieved.Reframe.Objects[1] != "person" {
		t.Errorf("Expected objects [face person], got %v", retrieved.Reframe.Objects)
	}
	if retrieved.Reframe.Smoothing.Duration != Default().Reframe.Smoothing.Duration {
		t.Errorf("Unparseable duration should be ignored, got %v", retrieved.Reframe.Smoothing.Duration)
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	os.Unsetenv("TEST_ENV_VAR")
	result := GetEnvWithDefault("TEST_ENV_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %s", result)
	}

	t.Setenv("TEST_ENV_VAR", "custom")
	result = GetEnvWithDefault("TEST_ENV_VAR", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %s", result)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := parseBool(tt.value); got != tt.expected {
				t.Errorf("parseBool(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}
