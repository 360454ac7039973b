package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/video"
)

// HTTPDetector sends frames to an external detection service
type HTTPDetector struct {
	serviceURL          string
	httpClient          *http.Client
	logger              *logger.Logger
	confidenceThreshold float64
	enabledClasses      []string
	maxRetries          int
	retryDelay          time.Duration
	maxSide             int
	jpegQuality         int
}

// ClientConfig contains configuration for the detection client
type ClientConfig struct {
	ServiceURL          string
	Timeout             time.Duration
	ConfidenceThreshold float64
	EnabledClasses      []string
	MaxRetries          int
	RetryDelay          time.Duration
	MaxSide             int // Frames are downscaled so their longer side fits; 0 sends full size
	JPEGQuality         int
}

// NewHTTPDetector creates a new detection service client
func NewHTTPDetector(config ClientConfig, log *logger.Logger) *HTTPDetector {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.JPEGQuality == 0 {
		config.JPEGQuality = 85
	}

	return &HTTPDetector{
		serviceURL: config.ServiceURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:              log,
		confidenceThreshold: config.ConfidenceThreshold,
		enabledClasses:      config.EnabledClasses,
		maxRetries:          config.MaxRetries,
		retryDelay:          config.RetryDelay,
		maxSide:             config.MaxSide,
		jpegQuality:         config.JPEGQuality,
	}
}

// Detect implements pipeline.Detector. Boxes are returned in frame coordinates.
func (c *HTTPDetector) Detect(ctx context.Context, frame *video.Frame) ([]detection.Detection, error) {
	if frame.Image == nil {
		return nil, fmt.Errorf("frame %d has no image", frame.Index)
	}

	img, scale := c.prepare(frame.Image)
	encoded, err := encodeJPEG(img, c.jpegQuality)
	if err != nil {
		return nil, err
	}

	req := InferenceRequest{Image: encoded}
	if c.confidenceThreshold > 0 {
		req.ConfidenceThreshold = &c.confidenceThreshold
	}
	if len(c.enabledClasses) > 0 {
		req.EnabledClasses = c.enabledClasses
	}

	resp, err := c.inferWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	dets := make([]detection.Detection, 0, len(resp.BoundingBoxes))
	for _, b := range resp.BoundingBoxes {
		dets = append(dets, detection.Detection{
			Box:        geometry.RectFromCorners(b.X1*scale, b.Y1*scale, b.X2*scale, b.Y2*scale),
			Class:      b.ClassName,
			Confidence: b.Confidence,
			FrameIndex: frame.Index,
		})
	}
	return dets, nil
}

// prepare downscales img to the configured size and returns the factor mapping
// coordinates of the result back to img
func (c *HTTPDetector) prepare(img *image.RGBA) (image.Image, float64) {
	b := img.Bounds()
	side := max(b.Dx(), b.Dy())
	if c.maxSide <= 0 || side <= c.maxSide {
		return img, 1
	}

	factor := float64(side) / float64(c.maxSide)
	w := max(1, int(float64(b.Dx())/factor+0.5))
	h := max(1, int(float64(b.Dy())/factor+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(b.Dx()) / float64(w)
}

func encodeJPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// inferWithRetry performs inference with retry logic
func (c *HTTPDetector) inferWithRetry(ctx context.Context, req InferenceRequest) (*InferenceResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying inference", "attempt", attempt, "max_retries", c.maxRetries)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		resp, err := c.infer(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		c.logger.Warn("Inference attempt failed", "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("inference failed after %d retries: %w", c.maxRetries, lastErr)
}

// infer performs a single inference request
func (c *HTTPDetector) infer(ctx context.Context, req InferenceRequest) (*InferenceResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned status %d: %s", resp.StatusCode, string(body))
	}

	var inferenceResp InferenceResponse
	if err := json.Unmarshal(body, &inferenceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if c.logger.DebugEnabled() {
		c.logger.Debug("Inference completed",
			"detection_count", len(inferenceResp.BoundingBoxes),
			"inference_time_ms", inferenceResp.InferenceTimeMs,
			"request_duration_ms", time.Since(startTime).Milliseconds(),
		)
	}

	return &inferenceResp, nil
}

// GetStats retrieves inference statistics from the detection service
func (c *HTTPDetector) GetStats(ctx context.Context) (*InferenceStats, error) {
	url := fmt.Sprintf("%s/api/v1/inference/stats", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}

	var stats InferenceStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &stats, nil
}

// HealthCheck checks if the detection service is ready
func (c *HTTPDetector) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health/ready", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service health check failed: status %d", resp.StatusCode)
	}
	return nil
}
