package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vzahanych/land2port/internal/compose"
	"github.com/vzahanych/land2port/internal/config"
	"github.com/vzahanych/land2port/internal/detector"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/journal"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/pipeline"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/video"
)

type runOptions struct {
	source     string
	output     string
	detections string
	record     string
	object     string
	crf        int
	hardware   bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reframe a video file into a portrait video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := reframeFile(runCtx, cfg, ctx, opts)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			if summary.Cancelled {
				return context.Canceled
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Input video file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output video file")
	cmd.Flags().StringVar(&opts.detections, "detections", "", "Replay detections from a JSON lines file instead of the detection service")
	cmd.Flags().StringVar(&opts.record, "record", "", "Write the detections used to a JSON lines file")
	cmd.Flags().StringVar(&opts.object, "object", "", "Tracked class; defaults to the first configured object")
	cmd.Flags().IntVar(&opts.crf, "crf", 20, "Encoder quality for libx264")
	cmd.Flags().BoolVar(&opts.hardware, "hardware", false, "Allow hardware encoders")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func reframeFile(ctx context.Context, cfg *config.Config, cc *commandContext, opts runOptions) (pipeline.Summary, error) {
	log := cc.logger().Named("run")

	ffmpeg, err := video.NewFFmpegWrapper(log)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	info, err := ffmpeg.Probe(ctx, opts.source)
	if err != nil {
		return pipeline.Summary{}, err
	}
	log.Info("Source probed",
		"width", info.Width,
		"height", info.Height,
		"fps", info.FPS,
		"frames", info.Frames,
		"codec", info.Codec,
	)

	det, closeDet, err := buildDetector(cfg, opts, log)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer closeDet()

	object := strings.TrimSpace(opts.object)
	if object == "" && len(cfg.Reframe.Objects) > 0 {
		object = cfg.Reframe.Objects[0]
	}

	engine, err := reframe.NewEngine(cfg.EngineConfig(), reframe.StreamInfo{
		ID:     uuid.New().String(),
		Frame:  geometry.Size{Width: float64(info.Width), Height: float64(info.Height)},
		FPS:    info.FPS,
		Object: object,
	}, log)
	if err != nil {
		return pipeline.Summary{}, err
	}

	dec, err := ffmpeg.NewDecoder(ctx, opts.source, info, log)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer dec.Close()

	// The encoder outlives ctx so an interrupted run still produces a playable file.
	canvas := cfg.Reframe.Canvas
	enc, err := ffmpeg.NewEncoder(context.WithoutCancel(ctx), video.EncoderConfig{
		Width:         canvas.Width,
		Height:        canvas.Height,
		FPS:           info.FPS,
		Output:        opts.output,
		CRF:           opts.crf,
		AllowHardware: opts.hardware,
	}, log)
	if err != nil {
		return pipeline.Summary{}, err
	}

	comp := compose.New(geometry.Size{Width: float64(canvas.Width), Height: float64(canvas.Height)})
	sinks := pipeline.MultiSink{compose.NewSink(comp, enc)}

	if cfg.Storage.JournalEnabled {
		jnl, err := cc.openJournal()
		if err != nil {
			enc.Close()
			return pipeline.Summary{}, err
		}
		run, err := jnl.StartRun(ctx, journal.RunInfo{
			ID:       engine.ID(),
			Source:   filepath.Base(opts.source),
			Frame:    engine.Info().Frame,
			FPS:      info.FPS,
			Strategy: engine.Strategy().String(),
		})
		if err != nil {
			enc.Close()
			return pipeline.Summary{}, err
		}
		sinks = append(sinks, run)
	}

	runner := pipeline.NewRunner(cfg.PipelineSettings(), log, nil)
	summary, err := runner.Run(ctx, engine, dec, det, sinks)
	if err != nil {
		return summary, err
	}

	log.Info("Output written", "path", opts.output, "frames", enc.Frames())
	return summary, nil
}

// buildDetector picks the replay file when given, else the detection service.
// The returned func closes the record file, if any.
func buildDetector(cfg *config.Config, opts runOptions, log *logger.Logger) (pipeline.Detector, func(), error) {
	var inner detector.Detector
	if opts.detections != "" {
		replay, err := detector.LoadReplay(opts.detections, log)
		if err != nil {
			return nil, nil, err
		}
		inner = replay
	} else {
		if cfg.Detector.ServiceURL == "" {
			return nil, nil, errors.New("no detection source: set detector.service_url or pass --detections")
		}
		inner = detector.NewHTTPDetector(cfg.DetectorClientConfig(), log)
	}

	if opts.record == "" {
		return inner, func() {}, nil
	}
	f, err := os.Create(opts.record)
	if err != nil {
		return nil, nil, fmt.Errorf("create record file: %w", err)
	}
	return detector.NewTee(inner, f), func() { f.Close() }, nil
}

func printSummary(out io.Writer, s pipeline.Summary) {
	fmt.Fprintf(out, "Stream:           %s\n", s.StreamID)
	fmt.Fprintf(out, "Frames:           %d\n", s.Frames)
	fmt.Fprintf(out, "Hard cuts:        %d\n", s.Stats.Cuts)
	fmt.Fprintf(out, "Soft transitions: %d\n", s.Stats.SoftTransitions)
	fmt.Fprintf(out, "Layout switches:  %d\n", s.Stats.LayoutSwitches)
	fmt.Fprintf(out, "Dropped:          %d\n", s.Stats.Dropped)
	if s.HasLast {
		fmt.Fprintf(out, "Last window:      %s\n", describeWindow(s.Last.Rects))
	}
	fmt.Fprintf(out, "Elapsed:          %s\n", s.Duration.Round(time.Millisecond))
	if s.Cancelled {
		fmt.Fprintln(out, "Run was interrupted; output holds the frames processed so far.")
	}
}
