package video

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/vzahanych/land2port/internal/logger"
)

// FFmpegWrapper locates the ffmpeg and ffprobe binaries and builds commands for them
type FFmpegWrapper struct {
	logger        *logger.Logger
	ffmpegPath    string
	ffprobePath   string
	hardwareAccel HardwareAcceleration
	encoders      map[string]bool
	mu            sync.RWMutex
}

// HardwareAcceleration represents available hardware encoders
type HardwareAcceleration struct {
	IntelQSV    bool // Intel Quick Sync Video via VAAPI
	NVIDIANVENC bool // NVIDIA NVENC
	Software    bool // Software fallback (always available)
}

// NewFFmpegWrapper creates a new FFmpeg wrapper
func NewFFmpegWrapper(log *logger.Logger) (*FFmpegWrapper, error) {
	wrapper := &FFmpegWrapper{
		logger:   log,
		encoders: make(map[string]bool),
	}

	ffmpegPath, err := detectBinary("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	wrapper.ffmpegPath = ffmpegPath

	ffprobePath, err := detectBinary("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	wrapper.ffprobePath = ffprobePath

	encoders, err := wrapper.detectEncoders()
	if err != nil {
		log.Warn("Failed to detect encoders", "error", err)
	} else {
		wrapper.encoders = encoders
	}

	wrapper.hardwareAccel = HardwareAcceleration{
		IntelQSV:    encoders["h264_vaapi"],
		NVIDIANVENC: encoders["h264_nvenc"],
		Software:    true,
	}

	log.Info("FFmpeg wrapper initialized",
		"ffmpeg", wrapper.ffmpegPath,
		"ffprobe", wrapper.ffprobePath,
		"intel_qsv", wrapper.hardwareAccel.IntelQSV,
		"nvidia_nvenc", wrapper.hardwareAccel.NVIDIANVENC,
	)

	return wrapper, nil
}

// detectBinary finds an executable by name in PATH or common locations
func detectBinary(name string) (string, error) {
	paths := []string{name, "/usr/bin/" + name, "/usr/local/bin/" + name}

	for _, path := range paths {
		cmd := exec.Command(path, "-version")
		if err := cmd.Run(); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// detectEncoders lists the video encoders ffmpeg was built with
func (f *FFmpegWrapper) detectEncoders() (map[string]bool, error) {
	cmd := exec.Command(f.ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get encoders: %w", err)
	}
	return parseEncoderList(string(output)), nil
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output
func parseEncoderList(output string) map[string]bool {
	encoders := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "V") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) > 1 && len(parts[0]) == 6 && parts[1] != "=" {
			encoders[parts[1]] = true
		}
	}
	return encoders
}

// GetHardwareAcceleration returns available hardware acceleration
func (f *FFmpegWrapper) GetHardwareAcceleration() HardwareAcceleration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hardwareAccel
}

// IsEncoderAvailable checks if an encoder is available
func (f *FFmpegWrapper) IsEncoderAvailable(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.encoders[name]
}

// GetPreferredEncoder returns the preferred H.264 encoder. Hardware encoders are only chosen
// when allowed; rawvideo input from a pipe works with every software build.
func (f *FFmpegWrapper) GetPreferredEncoder(allowHardware bool) string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if allowHardware && f.hardwareAccel.NVIDIANVENC {
		return "h264_nvenc"
	}
	if f.encoders["libx264"] || len(f.encoders) == 0 {
		return "libx264"
	}
	return "mpeg4"
}

// BuildCommand builds an FFmpeg command
func (f *FFmpegWrapper) BuildCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffmpegPath, args...)
}

// BuildProbeCommand builds an ffprobe command
func (f *FFmpegWrapper) BuildProbeCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffprobePath, args...)
}

// GetVersion returns FFmpeg version
func (f *FFmpegWrapper) GetVersion() (string, error) {
	cmd := exec.Command(f.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}

	return "unknown", nil
}
