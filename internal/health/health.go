// Package health aggregates readiness checks and service statuses into one report.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/service"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds each checker
const DefaultCheckTimeout = 3 * time.Second

// Check represents a health check
type Check struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Report represents the overall health report
type Report struct {
	Status    Status                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Checks    map[string]Check         `json:"checks"`
	Services  []service.StatusSnapshot `json:"services,omitempty"`
}

// Ready reports whether the process should receive traffic
func (r Report) Ready() bool {
	return r.Status != StatusUnhealthy
}

// Checker is an interface for health checkers
type Checker interface {
	Name() string
	Check(ctx context.Context) Check
}

// ServiceStatuses lists managed service states
type ServiceStatuses interface {
	Snapshots() []service.StatusSnapshot
}

// Manager manages health checks
type Manager struct {
	logger    *logger.Logger
	checkers  []Checker
	services  ServiceStatuses // Optional
	timeout   time.Duration
	startTime time.Time
	mu        sync.RWMutex
}

// NewManager creates a new health check manager. services may be nil.
func NewManager(log *logger.Logger, services ServiceStatuses) *Manager {
	return &Manager{
		logger:    log,
		checkers:  make([]Checker, 0),
		services:  services,
		timeout:   DefaultCheckTimeout,
		startTime: time.Now(),
	}
}

// RegisterChecker registers a health checker
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check runs every checker concurrently and folds in service statuses. A failed check makes
// the report unhealthy or degraded; a managed service that is not running degrades it.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make([]Check, len(checkers))
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = checker.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(m.startTime).Truncate(time.Second).String(),
		Checks:    make(map[string]Check, len(results)),
	}
	for _, check := range results {
		report.Checks[check.Name] = check
		report.Status = worse(report.Status, check.Status)
		if check.Status != StatusHealthy {
			m.logger.Debug("Health check not healthy", "check", check.Name, "status", check.Status, "message", check.Message)
		}
	}

	if m.services != nil {
		report.Services = m.services.Snapshots()
		for _, svc := range report.Services {
			if svc.Status != service.StatusRunning {
				report.Status = worse(report.Status, StatusDegraded)
			}
		}
	}
	return report
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
