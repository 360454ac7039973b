package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/cut"
	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/detector"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/pipeline"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/smoothing"
)

// Config represents the application configuration
type Config struct {
	Reframe  ReframeConfig  `yaml:"reframe"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Detector DetectorConfig `yaml:"detector"`
	Storage  StorageConfig  `yaml:"storage"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// ReframeConfig contains the per-stream decision settings
type ReframeConfig struct {
	Objects          []string           `yaml:"objects"`
	Canvas           CanvasConfig       `yaml:"canvas"`
	ClassThresholds  map[string]float64 `yaml:"class_thresholds"`
	DefaultThreshold float64            `yaml:"default_threshold"`
	AreaThreshold    float64            `yaml:"area_threshold"`
	Margin           float64            `yaml:"margin"`
	MinCropHeight    float64            `yaml:"min_crop_height"`
	Smoothing        SmoothingConfig    `yaml:"smoothing"`
	Cut              CutConfig          `yaml:"cut"`
	Stacking         StackingConfig     `yaml:"stacking"`
	Text             TextConfig         `yaml:"text"`
	Motion           MotionConfig       `yaml:"motion"`
}

// CanvasConfig is the output canvas size in pixels
type CanvasConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SmoothingConfig contains smoothing settings
type SmoothingConfig struct {
	Strategy           string        `yaml:"strategy"`
	Percentage         float64       `yaml:"percentage"`
	Duration           time.Duration `yaml:"duration"`
	Decay              float64       `yaml:"decay"`
	LayoutSwitchFrames int           `yaml:"layout_switch_frames"`
}

// CutConfig contains the cut detector thresholds
type CutConfig struct {
	Similarity float64 `yaml:"similarity"`
	Start      float64 `yaml:"start"`
}

// StackingConfig contains multi-subject layout settings
type StackingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	SpreadThreshold  float64 `yaml:"spread_threshold"`
	SpacingTolerance float64 `yaml:"spacing_tolerance"`
	MaxRows          int     `yaml:"max_rows"`
}

// TextConfig contains on-screen text handling
type TextConfig struct {
	Keep          bool    `yaml:"keep"`
	Prioritize    bool    `yaml:"prioritize"`
	Probability   float64 `yaml:"probability"`
	AreaThreshold float64 `yaml:"area_threshold"`
}

// MotionConfig contains fast-subject tracking settings
type MotionConfig struct {
	Classes            []string `yaml:"classes"`
	Blend              float64  `yaml:"blend"`
	MaxPredictedFrames int      `yaml:"max_predicted_frames"`
}

// PipelineConfig contains stream runner settings
type PipelineConfig struct {
	QueueDepth    int `yaml:"queue_depth"`
	DetectWorkers int `yaml:"detect_workers"`
}

// DetectorConfig contains detection service configuration
type DetectorConfig struct {
	ServiceURL          string        `yaml:"service_url"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	MaxSide             int           `yaml:"max_side"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
}

// StorageConfig contains local storage configuration
type StorageConfig struct {
	DataDir        string `yaml:"data_dir"`
	JournalEnabled bool   `yaml:"journal_enabled"`
	RetentionDays  int    `yaml:"retention_days"`

	MaxDiskUsagePercent float64 `yaml:"max_disk_usage_percent"` // 0 disables the health check threshold
}

// WebConfig contains web server configuration
type WebConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	SessionTTL  time.Duration `yaml:"session_ttl"` // Idle sessions are flushed after this long
	MaxSessions int           `yaml:"max_sessions"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the stock configuration. Load decodes YAML on top of it, so keys absent from
// the file keep these values.
func Default() *Config {
	engine := reframe.DefaultConfig()
	pl := pipeline.DefaultConfig()
	return &Config{
		Reframe: ReframeConfig{
			Objects:          engine.Qualifier.Objects,
			Canvas:           CanvasConfig{Width: int(engine.Crop.Canvas.Width), Height: int(engine.Crop.Canvas.Height)},
			ClassThresholds:  engine.Qualifier.ClassThresholds,
			DefaultThreshold: engine.Qualifier.DefaultThreshold,
			AreaThreshold:    engine.Qualifier.AreaThreshold,
			Margin:           engine.Crop.Margin,
			MinCropHeight:    engine.Crop.MinHeight,
			Smoothing: SmoothingConfig{
				Strategy:           engine.Smoothing.Strategy.String(),
				Percentage:         engine.Smoothing.Percentage,
				Duration:           engine.Smoothing.Duration,
				Decay:              engine.Smoothing.Decay,
				LayoutSwitchFrames: engine.Smoothing.LayoutSwitchFrames,
			},
			Cut: CutConfig{Similarity: engine.Cut.Similarity, Start: engine.Cut.Start},
			Stacking: StackingConfig{
				Enabled:          engine.Crop.StackingEnabled,
				SpreadThreshold:  engine.Crop.SpreadThreshold,
				SpacingTolerance: engine.Crop.SpacingTolerance,
				MaxRows:          engine.Crop.MaxRows,
			},
			Text: TextConfig{
				Probability:   engine.Qualifier.TextProbability,
				AreaThreshold: engine.Qualifier.TextAreaThreshold,
			},
			Motion: MotionConfig{
				Classes:            engine.Smoothing.MotionClasses,
				Blend:              engine.Smoothing.MotionBlend,
				MaxPredictedFrames: engine.Smoothing.MaxPredictedFrames,
			},
		},
		Pipeline: PipelineConfig{QueueDepth: pl.QueueDepth, DetectWorkers: pl.DetectWorkers},
		Detector: DetectorConfig{
			ServiceURL: "http://localhost:8080",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
			RetryDelay: 200 * time.Millisecond,
			MaxSide:    640,
		},
		Storage: StorageConfig{DataDir: "./data", JournalEnabled: true, RetentionDays: 7, MaxDiskUsagePercent: 95},
		Web: WebConfig{
			Enabled:     true,
			Host:        "0.0.0.0",
			Port:        8090,
			SessionTTL:  5 * time.Minute,
			MaxSessions: 64,
		},
		Log: LogConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.dev.yaml",
		"./config/config.yaml",
		"../config/config.dev.yaml",
		"../config/config.yaml",
		"/etc/land2port/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[0]
}

// setDefaults fills values that an explicit empty YAML entry left blank
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Reframe.Smoothing.Strategy == "" {
		c.Reframe.Smoothing.Strategy = smoothing.StrategyHistory.String()
	}
	if c.Reframe.ClassThresholds == nil {
		c.Reframe.ClassThresholds = map[string]float64{}
	}
	for i, obj := range c.Reframe.Objects {
		c.Reframe.Objects[i] = strings.TrimSpace(obj)
	}
}

// JournalPath returns the journal database location
func (c *Config) JournalPath() string {
	return filepath.Join(c.Storage.DataDir, "journal.db")
}

// EngineConfig converts the reframe section into engine settings. The configuration must
// have passed Validate.
func (c *Config) EngineConfig() reframe.Config {
	r := c.Reframe
	strategy, _ := smoothing.ParseStrategy(r.Smoothing.Strategy)

	return reframe.Config{
		Qualifier: detection.QualifierConfig{
			Objects:           append([]string(nil), r.Objects...),
			ClassThresholds:   r.ClassThresholds,
			DefaultThreshold:  r.DefaultThreshold,
			AreaThreshold:     r.AreaThreshold,
			MotionClasses:     r.Motion.Classes,
			TextProbability:   r.Text.Probability,
			TextAreaThreshold: r.Text.AreaThreshold,
		},
		Crop: crop.Config{
			Canvas:           geometry.Size{Width: float64(r.Canvas.Width), Height: float64(r.Canvas.Height)},
			Margin:           r.Margin,
			MinHeight:        r.MinCropHeight,
			StackingEnabled:  r.Stacking.Enabled,
			SpreadThreshold:  r.Stacking.SpreadThreshold,
			SpacingTolerance: r.Stacking.SpacingTolerance,
			MaxRows:          r.Stacking.MaxRows,
			KeepText:         r.Text.Keep,
			PrioritizeText:   r.Text.Prioritize,
		},
		Cut: cut.Thresholds{Similarity: r.Cut.Similarity, Start: r.Cut.Start},
		Smoothing: smoothing.Config{
			Strategy:           strategy,
			Percentage:         r.Smoothing.Percentage,
			Duration:           r.Smoothing.Duration,
			Decay:              r.Smoothing.Decay,
			LayoutSwitchFrames: r.Smoothing.LayoutSwitchFrames,
			MotionClasses:      r.Motion.Classes,
			MotionBlend:        r.Motion.Blend,
			MaxPredictedFrames: r.Motion.MaxPredictedFrames,
		},
	}
}

// PipelineSettings converts the pipeline section
func (c *Config) PipelineSettings() pipeline.Config {
	return pipeline.Config{QueueDepth: c.Pipeline.QueueDepth, DetectWorkers: c.Pipeline.DetectWorkers}
}

// DetectorClientConfig converts the detector section
func (c *Config) DetectorClientConfig() detector.ClientConfig {
	return detector.ClientConfig{
		ServiceURL:          c.Detector.ServiceURL,
		Timeout:             c.Detector.Timeout,
		ConfidenceThreshold: c.Detector.ConfidenceThreshold,
		EnabledClasses:      c.detectorClasses(),
		MaxRetries:          c.Detector.MaxRetries,
		RetryDelay:          c.Detector.RetryDelay,
		MaxSide:             c.Detector.MaxSide,
	}
}

// detectorClasses lists every class the engine consumes: targets, motion classes and text
func (c *Config) detectorClasses() []string {
	seen := make(map[string]bool)
	var classes []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				classes = append(classes, n)
			}
		}
	}
	add(c.Reframe.Objects...)
	add(c.Reframe.Motion.Classes...)
	if c.Reframe.Text.Keep || c.Reframe.Text.Prioritize {
		add(detection.ClassText)
	}
	return classes
}
