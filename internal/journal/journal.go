package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/pipeline"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/video"
)

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("run not found")

// DefaultBatchSize is the number of decisions written per transaction
const DefaultBatchSize = 256

// Journal records crop decisions and run summaries in SQLite
type Journal struct {
	db        *Database
	logger    *logger.Logger
	batchSize int
}

// Open opens (or creates) journal.db in dataDir
func Open(dataDir string, log *logger.Logger) (*Journal, error) {
	db, err := NewDatabase(filepath.Join(dataDir, "journal.db"))
	if err != nil {
		return nil, err
	}
	log.Info("Journal opened", "path", db.Path())
	return New(db, log), nil
}

// New creates a journal over an open database
func New(db *Database, log *logger.Logger) *Journal {
	return &Journal{db: db, logger: log, batchSize: DefaultBatchSize}
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Ping verifies the database is reachable
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.db.PingContext(ctx)
}

// Path returns the database file location
func (j *Journal) Path() string {
	return j.db.Path()
}

// RunInfo describes a run when it starts
type RunInfo struct {
	ID       string
	Source   string
	Frame    geometry.Size
	FPS      float64
	Strategy string
}

// RunRecord is a stored run
type RunRecord struct {
	RunInfo
	StartedAt       time.Time
	FinishedAt      *time.Time
	Frames          int64
	Cuts            int64
	SoftTransitions int64
	LayoutSwitches  int64
	Dropped         int64
	Cancelled       bool
	LastWindow      *crop.Window
}

// Decision is one stored frame decision
type Decision struct {
	FrameIndex int64
	Timestamp  time.Duration
	Layout     string
	Window     crop.Window
	Raw        crop.Window
	Reason     string
	Subjects   int
	Dropped    int
	CutClass   string
	CutScore   float64
	Step       string
	Snapped    bool
	Predicted  bool
}

// DecisionFrom converts an engine output
func DecisionFrom(out reframe.FrameOutput) Decision {
	return Decision{
		FrameIndex: out.Index,
		Timestamp:  out.Timestamp,
		Layout:     out.Window.Tag(),
		Window:     out.Window,
		Raw:        out.Raw,
		Reason:     out.Reason,
		Subjects:   out.Subjects,
		Dropped:    out.Dropped,
		CutClass:   out.Cut.Class.String(),
		CutScore:   out.Cut.Score,
		Step:       out.Step,
		Snapped:    out.Snapped,
		Predicted:  out.Predicted,
	}
}

// StartRun inserts a run row and returns a sink writing its decisions
func (j *Journal) StartRun(ctx context.Context, info RunInfo) (*Run, error) {
	_, err := j.db.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, frame_width, frame_height, fps, strategy, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, info.ID, info.Source, int(info.Frame.Width), int(info.Frame.Height), info.FPS, info.Strategy, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	j.logger.Debug("Run started", "run_id", info.ID, "source", info.Source)
	return &Run{journal: j, id: info.ID}, nil
}

// GetRun returns one run
func (j *Journal) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := j.db.db.QueryRowContext(ctx, runColumns+` WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, err
}

// ListRuns returns the most recent runs first
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.db.QueryContext(ctx, runColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// Decisions returns up to limit decisions of a run starting at frame index from
func (j *Journal) Decisions(ctx context.Context, runID string, from int64, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := j.db.db.QueryContext(ctx, `
		SELECT frame_index, timestamp_ms, layout, window, raw_window, reason, subjects, dropped,
			cut_class, cut_score, step, snapped, predicted
		FROM crop_decisions
		WHERE run_id = ? AND frame_index >= ?
		ORDER BY frame_index ASC
		LIMIT ?
	`, runID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		var tsMs int64
		var window, raw string
		if err := rows.Scan(
			&d.FrameIndex, &tsMs, &d.Layout, &window, &raw, &d.Reason, &d.Subjects, &d.Dropped,
			&d.CutClass, &d.CutScore, &d.Step, &d.Snapped, &d.Predicted,
		); err != nil {
			return nil, err
		}
		d.Timestamp = time.Duration(tsMs) * time.Millisecond
		if d.Window, err = decodeWindow(window); err != nil {
			return nil, err
		}
		if d.Raw, err = decodeWindow(raw); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// CountCuts returns the number of frames of a run classified as the given cut class
func (j *Journal) CountCuts(ctx context.Context, runID, class string) (int64, error) {
	var n int64
	err := j.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crop_decisions WHERE run_id = ? AND cut_class = ?`, runID, class,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cuts: %w", err)
	}
	return n, nil
}

// CleanupOldRuns removes finished runs started before now - olderThan, with their decisions
func (j *Journal) CleanupOldRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := j.db.db.ExecContext(ctx,
		`DELETE FROM runs WHERE finished_at IS NOT NULL AND started_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info("Old runs removed", "count", n)
	}
	return n, nil
}

const runColumns = `
	SELECT id, source, frame_width, frame_height, fps, strategy, started_at, finished_at,
		frames, cuts, soft_transitions, layout_switches, dropped, cancelled, last_window
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var rec RunRecord
	var width, height int
	var finished sql.NullTime
	var last sql.NullString
	if err := s.Scan(
		&rec.ID, &rec.Source, &width, &height, &rec.FPS, &rec.Strategy, &rec.StartedAt, &finished,
		&rec.Frames, &rec.Cuts, &rec.SoftTransitions, &rec.LayoutSwitches, &rec.Dropped, &rec.Cancelled, &last,
	); err != nil {
		return nil, err
	}
	rec.Frame = geometry.Size{Width: float64(width), Height: float64(height)}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	if last.Valid && last.String != "" {
		w, err := decodeWindow(last.String)
		if err != nil {
			return nil, err
		}
		rec.LastWindow = &w
	}
	return &rec, nil
}

// Run writes the decisions of one stream. It implements pipeline.Sink.
type Run struct {
	journal *Journal
	id      string

	mu      sync.Mutex
	pending []Decision
	written int64
	closed  bool
}

// ID returns the run ID
func (r *Run) ID() string {
	return r.id
}

// Written returns the number of decisions committed so far
func (r *Run) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Record queues one decision and commits a batch when it is full
func (r *Run) Record(ctx context.Context, out reframe.FrameOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("run %s is closed", r.id)
	}

	r.pending = append(r.pending, DecisionFrom(out))
	if len(r.pending) >= r.journal.batchSize {
		return r.flush(ctx)
	}
	return nil
}

// Write implements pipeline.Sink
func (r *Run) Write(ctx context.Context, _ *video.Frame, out reframe.FrameOutput) error {
	return r.Record(ctx, out)
}

// Close commits pending decisions and stores the run summary. It implements pipeline.Sink.
func (r *Run) Close(ctx context.Context, summary pipeline.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.flush(ctx); err != nil {
		return err
	}

	var last sql.NullString
	if summary.HasLast {
		data, err := encodeWindow(summary.Last)
		if err != nil {
			return err
		}
		last = sql.NullString{String: data, Valid: true}
	}

	_, err := r.journal.db.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, frames = ?, cuts = ?, soft_transitions = ?,
			layout_switches = ?, dropped = ?, cancelled = ?, last_window = ?
		WHERE id = ?
	`, time.Now().UTC(), summary.Frames, summary.Stats.Cuts, summary.Stats.SoftTransitions,
		summary.Stats.LayoutSwitches, summary.Stats.Dropped, summary.Cancelled, last, r.id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	r.journal.logger.Info("Run journaled",
		"run_id", r.id,
		"frames", summary.Frames,
		"decisions", r.written,
	)
	return nil
}

// flush writes pending decisions in one transaction. Callers hold r.mu.
func (r *Run) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.journal.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO crop_decisions (run_id, frame_index, timestamp_ms, layout, window, raw_window,
			reason, subjects, dropped, cut_class, cut_score, step, snapped, predicted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range r.pending {
		window, err := encodeWindow(d.Window)
		if err != nil {
			return err
		}
		raw, err := encodeWindow(d.Raw)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.id, d.FrameIndex, d.Timestamp.Milliseconds(), d.Layout, window, raw,
			d.Reason, d.Subjects, d.Dropped, d.CutClass, d.CutScore, d.Step, d.Snapped, d.Predicted,
		); err != nil {
			return fmt.Errorf("failed to insert decision %d: %w", d.FrameIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.written += int64(len(r.pending))
	r.pending = r.pending[:0]
	return nil
}

// windowRecord is the stored JSON form of a window
type windowRecord struct {
	Layout string       `json:"layout"`
	Rects  [][4]float64 `json:"rects"` // x, y, width, height
	Shares []float64    `json:"shares"`
}

func encodeWindow(w crop.Window) (string, error) {
	rec := windowRecord{Layout: w.Layout.String(), Shares: w.Shares, Rects: make([][4]float64, len(w.Rects))}
	for i, r := range w.Rects {
		rec.Rects[i] = [4]float64{r.X, r.Y, r.Width, r.Height}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal window: %w", err)
	}
	return string(data), nil
}

func decodeWindow(s string) (crop.Window, error) {
	var rec windowRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return crop.Window{}, fmt.Errorf("failed to unmarshal window: %w", err)
	}
	layout, err := crop.ParseLayout(rec.Layout)
	if err != nil {
		return crop.Window{}, err
	}
	w := crop.Window{Layout: layout, Shares: rec.Shares, Rects: make([]geometry.Rect, len(rec.Rects))}
	for i, r := range rec.Rects {
		w.Rects[i] = geometry.Rect{X: r[0], Y: r[1], Width: r[2], Height: r[3]}
	}
	return w, nil
}
