package web

import (
	"context"
	"sync"
	"time"

	"github.com/vzahanych/land2port/internal/journal"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/service"
)

// Janitor expires idle sessions and prunes old journal runs
type Janitor struct {
	*service.ServiceBase
	sessions  *Sessions
	journal   *journal.Journal // Optional
	ttl       time.Duration
	retention time.Duration // Zero keeps runs forever
	interval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates the janitor service. Sessions idle longer than ttl are closed as
// cancelled; journal runs older than retention are deleted.
func NewJanitor(sessions *Sessions, jnl *journal.Journal, ttl, retention time.Duration, log *logger.Logger) *Janitor {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return &Janitor{
		ServiceBase: service.NewServiceBase("session-janitor", log),
		sessions:    sessions,
		journal:     jnl,
		ttl:         ttl,
		retention:   retention,
		interval:    interval,
	}
}

// Start starts the sweep loop
func (j *Janitor) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(context.WithoutCancel(ctx))

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.pruneJournal(ctx)
		lastPrune := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
				if time.Since(lastPrune) >= time.Hour {
					j.pruneJournal(ctx)
					lastPrune = time.Now()
				}
			}
		}
	}()

	j.LogInfo("Janitor started", "session_ttl", j.ttl, "interval", j.interval)
	return nil
}

// Stop stops the sweep loop
func (j *Janitor) Stop(ctx context.Context) error {
	if j.cancel == nil {
		return nil
	}
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep closes idle sessions once and returns how many were expired
func (j *Janitor) Sweep(ctx context.Context) int {
	expired := j.sessions.Expire(ctx, j.ttl)
	if len(expired) > 0 {
		j.LogInfo("Expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

func (j *Janitor) pruneJournal(ctx context.Context) {
	if j.journal == nil || j.retention <= 0 {
		return
	}
	n, err := j.journal.CleanupOldRuns(ctx, j.retention)
	if err != nil {
		j.LogError("Journal cleanup failed", err)
		return
	}
	if n > 0 {
		j.LogInfo("Pruned journal runs", "count", n)
		j.PublishEvent(service.EventTypeJournalCleanup, map[string]interface{}{"runs": n})
	}
}
