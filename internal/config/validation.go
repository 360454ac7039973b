package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vzahanych/land2port/internal/smoothing"
)

// Validate validates the configuration with detailed error messages
func (c *Config) Validate() error {
	var errors []string

	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errors = append(errors, fmt.Sprintf("%s must be between 0 and 1, got: %v", name, v))
		}
	}

	r := c.Reframe

	// Targets
	if len(r.Objects) == 0 {
		errors = append(errors, "reframe.objects must name at least one class")
	}
	for i, obj := range r.Objects {
		if obj == "" {
			errors = append(errors, fmt.Sprintf("reframe.objects[%d] is empty", i))
		}
	}

	// Canvas
	if r.Canvas.Width <= 0 || r.Canvas.Height <= 0 {
		errors = append(errors, fmt.Sprintf("reframe.canvas must be positive, got: %dx%d", r.Canvas.Width, r.Canvas.Height))
	}

	// Qualification
	for class, v := range r.ClassThresholds {
		unit(fmt.Sprintf("reframe.class_thresholds.%s", class), v)
	}
	unit("reframe.default_threshold", r.DefaultThreshold)
	unit("reframe.area_threshold", r.AreaThreshold)
	if r.Margin < 0 {
		errors = append(errors, fmt.Sprintf("reframe.margin must be >= 0, got: %v", r.Margin))
	}
	if r.MinCropHeight <= 0 || r.MinCropHeight > 1 {
		errors = append(errors, fmt.Sprintf("reframe.min_crop_height must be in (0, 1], got: %v", r.MinCropHeight))
	}

	// Smoothing
	if _, err := smoothing.ParseStrategy(r.Smoothing.Strategy); err != nil {
		errors = append(errors, fmt.Sprintf("reframe.smoothing.strategy: %v", err))
	}
	if r.Smoothing.Percentage <= 0 || r.Smoothing.Percentage > 100 {
		errors = append(errors, fmt.Sprintf("reframe.smoothing.percentage must be in (0, 100], got: %v", r.Smoothing.Percentage))
	}
	if r.Smoothing.Duration <= 0 {
		errors = append(errors, fmt.Sprintf("reframe.smoothing.duration must be > 0, got: %v", r.Smoothing.Duration))
	}
	unit("reframe.smoothing.decay", r.Smoothing.Decay)
	if r.Smoothing.LayoutSwitchFrames < 0 {
		errors = append(errors, fmt.Sprintf("reframe.smoothing.layout_switch_frames must be >= 0, got: %d", r.Smoothing.LayoutSwitchFrames))
	}

	// Cut detection
	unit("reframe.cut.similarity", r.Cut.Similarity)
	unit("reframe.cut.start", r.Cut.Start)
	if r.Cut.Similarity > r.Cut.Start {
		errors = append(errors, fmt.Sprintf("reframe.cut.similarity (%v) cannot be greater than reframe.cut.start (%v)", r.Cut.Similarity, r.Cut.Start))
	}

	// Stacking
	unit("reframe.stacking.spread_threshold", r.Stacking.SpreadThreshold)
	unit("reframe.stacking.spacing_tolerance", r.Stacking.SpacingTolerance)
	if r.Stacking.MaxRows != 2 && r.Stacking.MaxRows != 3 {
		errors = append(errors, fmt.Sprintf("reframe.stacking.max_rows must be 2 or 3, got: %d", r.Stacking.MaxRows))
	}

	// Text and motion
	unit("reframe.text.probability", r.Text.Probability)
	unit("reframe.text.area_threshold", r.Text.AreaThreshold)
	unit("reframe.motion.blend", r.Motion.Blend)
	if r.Motion.MaxPredictedFrames < 0 {
		errors = append(errors, fmt.Sprintf("reframe.motion.max_predicted_frames must be >= 0, got: %d", r.Motion.MaxPredictedFrames))
	}

	// Pipeline
	if c.Pipeline.QueueDepth <= 0 {
		errors = append(errors, fmt.Sprintf("pipeline.queue_depth must be > 0, got: %d", c.Pipeline.QueueDepth))
	}
	if c.Pipeline.DetectWorkers <= 0 {
		errors = append(errors, fmt.Sprintf("pipeline.detect_workers must be > 0, got: %d", c.Pipeline.DetectWorkers))
	}

	// Detector
	if c.Detector.ServiceURL == "" {
		errors = append(errors, "detector.service_url is required")
	} else if u, err := url.Parse(c.Detector.ServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("detector.service_url is not an absolute URL: %s", c.Detector.ServiceURL))
	}
	if c.Detector.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("detector.timeout must be > 0, got: %v", c.Detector.Timeout))
	}
	if c.Detector.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("detector.max_retries must be >= 0, got: %d", c.Detector.MaxRetries))
	}
	unit("detector.confidence_threshold", c.Detector.ConfidenceThreshold)

	// Storage
	if c.Storage.DataDir == "" {
		errors = append(errors, "storage.data_dir is required")
	}
	if c.Storage.RetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("storage.retention_days must be >= 0, got: %d", c.Storage.RetentionDays))
	}
	if c.Storage.MaxDiskUsagePercent < 0 || c.Storage.MaxDiskUsagePercent > 100 {
		errors = append(errors, fmt.Sprintf("storage.max_disk_usage_percent must be between 0 and 100, got: %v", c.Storage.MaxDiskUsagePercent))
	}

	// Web
	if c.Web.Enabled {
		if c.Web.Port <= 0 || c.Web.Port > 65535 {
			errors = append(errors, fmt.Sprintf("web.port must be between 1 and 65535, got: %d", c.Web.Port))
		}
		if c.Web.SessionTTL <= 0 {
			errors = append(errors, fmt.Sprintf("web.session_ttl must be > 0, got: %v", c.Web.SessionTTL))
		}
		if c.Web.MaxSessions <= 0 {
			errors = append(errors, fmt.Sprintf("web.max_sessions must be > 0, got: %d", c.Web.MaxSessions))
		}
	}

	// Log
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
