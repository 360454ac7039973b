package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// StreamInfo describes the first video stream of an input
type StreamInfo struct {
	Width    int
	Height   int
	FPS      float64
	Frames   int64         // 0 when the container does not report it
	Duration time.Duration // 0 when unknown
	Codec    string
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe reads the video stream parameters of input with ffprobe
func (f *FFmpegWrapper) Probe(ctx context.Context, input string) (StreamInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,codec_name,width,height,avg_frame_rate,r_frame_rate,nb_frames,duration",
		"-print_format", "json",
		input,
	}

	var stdout, stderr bytes.Buffer
	cmd := f.BuildProbeCommand(ctx, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return StreamInfo{}, fmt.Errorf("invalid video size %dx%d", s.Width, s.Height)
		}

		fps, err := parseFrameRate(s.AvgFrameRate)
		if err != nil || fps <= 0 {
			fps, err = parseFrameRate(s.RFrameRate)
			if err != nil {
				return StreamInfo{}, err
			}
		}
		if fps <= 0 {
			return StreamInfo{}, fmt.Errorf("invalid frame rate %q", s.RFrameRate)
		}

		info := StreamInfo{Width: s.Width, Height: s.Height, FPS: fps, Codec: s.CodecName}
		if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil {
			info.Frames = n
		}
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			info.Duration = time.Duration(math.Round(d * float64(time.Second)))
		}
		return info, nil
	}

	return StreamInfo{}, fmt.Errorf("no video stream found")
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25"
func parseFrameRate(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}
