package web

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vzahanych/land2port/internal/cut"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/journal"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/pipeline"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/service"
)

var (
	// ErrSessionNotFound is returned for unknown or already closed sessions
	ErrSessionNotFound = errors.New("session not found")
	// ErrOutOfOrder is returned when a frame index does not advance the stream
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrTooManySessions is returned when the session limit is reached
	ErrTooManySessions = errors.New("too many sessions")
)

// Publisher publishes stream lifecycle events
type Publisher interface {
	PublishEvent(eventType service.EventType, data map[string]interface{})
}

// Observer receives per-frame and per-stream notifications
type Observer interface {
	reframe.Observer
	IncStreamsCompleted()
	SetActiveSessions(n int)
}

// SessionInfo is the public view of a session
type SessionInfo struct {
	ID        string        `json:"id"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	FPS       float64       `json:"fps"`
	Object    string        `json:"object,omitempty"`
	Strategy  string        `json:"strategy"`
	Canvas    [2]int        `json:"canvas"` // Output width and height
	CreatedAt time.Time     `json:"created_at"`
	LastSeen  time.Time     `json:"last_seen"`
	NextIndex *int64        `json:"next_index,omitempty"` // Smallest index the session accepts
	Stats     reframe.Stats `json:"stats"`
	Journaled bool          `json:"journaled"`
}

// session is one live stream driven over HTTP. Its engine is guarded by mu.
type session struct {
	id      string
	engine  *reframe.Engine
	run     *journal.Run
	canvas  geometry.Size
	created time.Time

	mu       sync.Mutex
	lastSeen time.Time
	lastIdx  int64
	started  bool
}

// Sessions owns the live engines of the HTTP API
type Sessions struct {
	engineConfig func() reframe.Config
	journal      *journal.Journal
	observer     Observer
	publisher    Publisher
	logger       *logger.Logger
	max          int
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	creating int // Sessions reserved by Create but not yet stored
}

// NewSessions creates a session store. engineConfig is read for every new session, so reloaded
// settings apply to sessions created afterwards. jnl and observer may be nil.
func NewSessions(engineConfig func() reframe.Config, maxSessions int, jnl *journal.Journal, observer Observer, log *logger.Logger) *Sessions {
	return &Sessions{
		engineConfig: engineConfig,
		journal:      jnl,
		observer:     observer,
		logger:       log.Named("sessions"),
		max:          maxSessions,
		now:          time.Now,
		sessions:     make(map[string]*session),
	}
}

// SetPublisher sets the event publisher
func (s *Sessions) SetPublisher(p Publisher) {
	s.publisher = p
}

// CreateRequest opens a session
type CreateRequest struct {
	Width  int     `json:"width" binding:"required,gt=0"`
	Height int     `json:"height" binding:"required,gt=0"`
	FPS    float64 `json:"fps" binding:"required,gt=0"`
	Object string  `json:"object"`
}

// Create opens a session and, when journaling is enabled, its run. The session limit counts
// sessions still being created; the journal is written without holding the store lock.
func (s *Sessions) Create(ctx context.Context, req CreateRequest) (SessionInfo, error) {
	s.mu.Lock()
	if s.max > 0 && len(s.sessions)+s.creating >= s.max {
		s.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("%w: limit is %d", ErrTooManySessions, s.max)
	}
	s.creating++
	s.mu.Unlock()

	sess, err := s.open(ctx, req)

	s.mu.Lock()
	s.creating--
	if err == nil {
		s.sessions[sess.id] = sess
		s.updateGauge()
	}
	s.mu.Unlock()
	if err != nil {
		return SessionInfo{}, err
	}

	strategy := sess.engine.Strategy().String()
	s.logger.Info("Session created", "stream_id", sess.id, "strategy", strategy)
	s.publish(service.EventTypeStreamStarted, map[string]interface{}{
		"stream_id": sess.id,
		"source":    "api",
		"strategy":  strategy,
	})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.info(), nil
}

// open builds the engine and journal run of a new session
func (s *Sessions) open(ctx context.Context, req CreateRequest) (*session, error) {
	id := uuid.New().String()
	opts := []reframe.Option{reframe.WithCutHandler(func(ev cut.Event) {
		s.publish(service.EventTypeStreamCut, map[string]interface{}{
			"stream_id":   id,
			"frame_index": ev.FrameIndex,
			"score":       ev.Score,
		})
	})}
	if s.observer != nil {
		opts = append(opts, reframe.WithObserver(s.observer))
	}

	cfg := s.engineConfig()
	engine, err := reframe.NewEngine(cfg, reframe.StreamInfo{
		ID:     id,
		Frame:  geometry.Size{Width: float64(req.Width), Height: float64(req.Height)},
		FPS:    req.FPS,
		Object: req.Object,
	}, s.logger, opts...)
	if err != nil {
		return nil, err
	}

	sess := &session{id: id, engine: engine, canvas: cfg.Crop.Canvas, created: s.now()}
	sess.lastSeen = sess.created

	if s.journal != nil {
		run, err := s.journal.StartRun(ctx, journal.RunInfo{
			ID:       id,
			Source:   "api",
			Frame:    engine.Info().Frame,
			FPS:      req.FPS,
			Strategy: engine.Strategy().String(),
		})
		if err != nil {
			return nil, err
		}
		sess.run = run
	}
	return sess, nil
}

// Get returns a session's public view
func (s *Sessions) Get(id string) (SessionInfo, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.info(), nil
}

// List returns every live session ordered by creation time
func (s *Sessions) List() []SessionInfo {
	s.mu.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].created.Before(all[j].created) })

	out := make([]SessionInfo, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		out = append(out, sess.info())
		sess.mu.Unlock()
	}
	return out
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// FrameResult is the decision for one frame with the per-row output heights on the canvas
type FrameResult struct {
	Output        reframe.FrameOutput
	OutputHeights []int
}

// Process runs one frame through a session's engine. Indices must strictly increase.
func (s *Sessions) Process(ctx context.Context, id string, in reframe.FrameInput) (FrameResult, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return FrameResult{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.engine == nil {
		return FrameResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if sess.started && in.Index <= sess.lastIdx {
		return FrameResult{}, fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, in.Index, sess.lastIdx)
	}

	out := sess.engine.Process(in)
	sess.lastIdx, sess.started = in.Index, true
	sess.lastSeen = s.now()

	if sess.run != nil {
		if err := sess.run.Record(ctx, out); err != nil {
			s.logger.Warn("Journal write failed", "stream_id", id, "error", err)
		}
	}
	return FrameResult{Output: out, OutputHeights: out.Window.OutputHeights(int(sess.canvas.Height))}, nil
}

// Close flushes a session, finishes its journal run and forgets it
func (s *Sessions) Close(ctx context.Context, id string) (pipeline.Summary, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		s.updateGauge()
	}
	s.mu.Unlock()
	if !ok {
		return pipeline.Summary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.finish(ctx, sess, false)
}

// Expire closes every session idle for longer than ttl and returns their IDs
func (s *Sessions) Expire(ctx context.Context, ttl time.Duration) []string {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	var idle []*session
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	if len(idle) > 0 {
		s.updateGauge()
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, sess := range idle {
		if _, err := s.finish(ctx, sess, true); err != nil {
			s.logger.Error("Failed to finish expired session", "stream_id", sess.id, "error", err)
		}
		s.publish(service.EventTypeSessionExpired, map[string]interface{}{"stream_id": sess.id})
		ids = append(ids, sess.id)
	}
	return ids
}

// CloseAll finishes every live session; used on shutdown
func (s *Sessions) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.updateGauge()
	s.mu.Unlock()

	var errs []error
	for _, sess := range all {
		if _, err := s.finish(ctx, sess, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finish must be called after the session is removed from the map
func (s *Sessions) finish(ctx context.Context, sess *session, cancelled bool) (pipeline.Summary, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	last, hasLast := sess.engine.Flush()
	stats := sess.engine.Stats()
	summary := pipeline.Summary{
		StreamID:  sess.id,
		Frames:    stats.Frames,
		Stats:     stats,
		Last:      last,
		HasLast:   hasLast,
		Cancelled: cancelled,
		Duration:  s.now().Sub(sess.created),
	}
	sess.engine = nil

	var err error
	if sess.run != nil {
		err = sess.run.Close(ctx, summary)
	}

	if s.observer != nil {
		s.observer.IncStreamsCompleted()
	}
	s.publish(service.EventTypeStreamFinished, map[string]interface{}{
		"stream_id": sess.id,
		"frames":    stats.Frames,
		"cuts":      stats.Cuts,
		"cancelled": cancelled,
	})
	s.logger.Info("Session closed", "stream_id", sess.id, "frames", stats.Frames, "cancelled", cancelled)
	return summary, err
}

func (s *Sessions) lookup(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// updateGauge must be called with s.mu held
func (s *Sessions) updateGauge() {
	if s.observer != nil {
		s.observer.SetActiveSessions(len(s.sessions))
	}
}

func (s *Sessions) publish(t service.EventType, data map[string]interface{}) {
	if s.publisher != nil {
		s.publisher.PublishEvent(t, data)
	}
}

// info must be called with sess.mu held
func (sess *session) info() SessionInfo {
	info := SessionInfo{
		ID:        sess.id,
		Canvas:    [2]int{int(sess.canvas.Width), int(sess.canvas.Height)},
		CreatedAt: sess.created,
		LastSeen:  sess.lastSeen,
		Journaled: sess.run != nil,
	}
	if sess.engine != nil {
		si := sess.engine.Info()
		info.Width = int(si.Frame.Width)
		info.Height = int(si.Frame.Height)
		info.FPS = si.FPS
		info.Object = si.Object
		info.Strategy = sess.engine.Strategy().String()
		info.Stats = sess.engine.Stats()
	}
	if sess.started {
		next := sess.lastIdx + 1
		info.NextIndex = &next
	}
	return info
}
