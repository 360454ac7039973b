package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/video"
)

// Source yields decoded frames in stream order and io.EOF at the end
type Source interface {
	Next(ctx context.Context) (*video.Frame, error)
}

// Detector reports the objects visible in one frame
type Detector interface {
	Detect(ctx context.Context, frame *video.Frame) ([]detection.Detection, error)
}

// Sink receives every decision in frame order, then the run summary
type Sink interface {
	Write(ctx context.Context, frame *video.Frame, out reframe.FrameOutput) error
	Close(ctx context.Context, summary Summary) error
}

// Recorder is the subset of the service metrics the runner reports to
type Recorder interface {
	IncDetectorErrors()
	SetQueueDepth(n int)
}

// Summary describes a finished run
type Summary struct {
	StreamID  string
	Frames    int64
	Stats     reframe.Stats
	Last      crop.Window
	HasLast   bool
	Cancelled bool
	Duration  time.Duration
}

// Config contains runner settings
type Config struct {
	QueueDepth    int // Frames allowed between decode and sink
	DetectWorkers int
}

// DefaultConfig returns the stock runner settings
func DefaultConfig() Config {
	return Config{QueueDepth: 16, DetectWorkers: 4}
}

// Runner drives one stream through decode, detect, reframe and sink.
// Frames are detected concurrently and reframed strictly in order.
type Runner struct {
	cfg      Config
	logger   *logger.Logger
	recorder Recorder
	inFlight atomic.Int64
}

// NewRunner creates a new runner
func NewRunner(cfg Config, log *logger.Logger, recorder Recorder) *Runner {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if cfg.DetectWorkers <= 0 {
		cfg.DetectWorkers = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Runner{cfg: cfg, logger: log, recorder: recorder}
}

type job struct {
	seq        int64
	frame      *video.Frame
	detections []detection.Detection
}

// Run processes src until it ends or ctx is cancelled. Cancelling ctx or a decode error stops
// intake only: frames already decoded are still detected, reframed and written before the
// sink is closed.
// det may be nil, in which case every frame has no detections.
func (r *Runner) Run(ctx context.Context, engine *reframe.Engine, src Source, det Detector, sink Sink) (Summary, error) {
	start := time.Now()
	log := r.logger.With("stream_id", engine.ID())

	intake, cancelIntake := context.WithCancel(ctx)
	defer cancelIntake()

	g, gctx := errgroup.WithContext(context.Background())
	stop := context.AfterFunc(gctx, cancelIntake)
	defer stop()

	slots := semaphore.NewWeighted(int64(r.cfg.QueueDepth))
	frames := make(chan job, r.cfg.QueueDepth)
	results := make(chan job, r.cfg.QueueDepth)

	log.Info("Pipeline started",
		"queue_depth", r.cfg.QueueDepth,
		"detect_workers", r.cfg.DetectWorkers,
	)

	var decodeErr error
	g.Go(func() error {
		defer close(frames)
		for seq := int64(0); ; seq++ {
			if err := slots.Acquire(intake, 1); err != nil {
				return nil
			}
			frame, err := src.Next(intake)
			if err != nil {
				slots.Release(1)
				if !errors.Is(err, io.EOF) && intake.Err() == nil {
					decodeErr = fmt.Errorf("failed to decode frame %d: %w", seq, err)
				}
				return nil
			}
			r.track(1)

			select {
			case frames <- job{seq: seq, frame: frame}:
			case <-gctx.Done():
				return nil
			}
		}
	})

	var workers sync.WaitGroup
	for i := 0; i < r.cfg.DetectWorkers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range frames {
				j.detections = r.detect(gctx, log, det, j.frame)
				select {
				case results <- j:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	summary := Summary{StreamID: engine.ID()}
	g.Go(func() error {
		pending := make(map[int64]job)
		var next int64
		for j := range results {
			pending[j.seq] = j
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++

				in := reframe.FrameInput{
					Index:      cur.frame.Index,
					Timestamp:  cur.frame.Timestamp,
					Detections: cur.detections,
				}
				if cur.frame.Image != nil {
					in.Image = cur.frame.Image
				}
				out := engine.Process(in)
				summary.Frames++
				err := sink.Write(gctx, cur.frame, out)
				slots.Release(1)
				r.track(-1)
				if err != nil {
					return fmt.Errorf("failed to write frame %d: %w", cur.frame.Index, err)
				}
			}
		}
		return nil
	})

	runErr := g.Wait()

	summary.Last, summary.HasLast = engine.Flush()
	summary.Stats = engine.Stats()
	summary.Cancelled = ctx.Err() != nil
	summary.Duration = time.Since(start)

	closeErr := sink.Close(context.WithoutCancel(ctx), summary)
	if closeErr != nil {
		closeErr = fmt.Errorf("failed to close sink: %w", closeErr)
	}

	log.Info("Pipeline finished",
		"frames", summary.Frames,
		"cuts", summary.Stats.Cuts,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration,
	)
	return summary, errors.Join(decodeErr, runErr, closeErr)
}

func (r *Runner) detect(ctx context.Context, log *logger.Logger, det Detector, frame *video.Frame) []detection.Detection {
	if det == nil {
		return nil
	}
	dets, err := det.Detect(ctx, frame)
	if err != nil {
		log.Warn("Detection failed, treating frame as empty", "frame_index", frame.Index, "error", err)
		if r.recorder != nil {
			r.recorder.IncDetectorErrors()
		}
		return nil
	}
	return dets
}

func (r *Runner) track(delta int64) {
	n := r.inFlight.Add(delta)
	if r.recorder != nil {
		r.recorder.SetQueueDepth(int(n))
	}
}

// MultiSink fans decisions out to several sinks in order
type MultiSink []Sink

// Write implements Sink
func (m MultiSink) Write(ctx context.Context, frame *video.Frame, out reframe.FrameOutput) error {
	for _, s := range m {
		if err := s.Write(ctx, frame, out); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors
func (m MultiSink) Close(ctx context.Context, summary Summary) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close(ctx, summary))
	}
	return errors.Join(errs...)
}
