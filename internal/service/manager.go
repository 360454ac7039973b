package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vzahanych/land2port/internal/logger"
)

// DefaultStopTimeout bounds each service's Stop during Shutdown
const DefaultStopTimeout = 10 * time.Second

// Manager manages the lifecycle of all services
type Manager struct {
	logger      *logger.Logger
	services    []Service
	statuses    map[string]*ServiceStatus
	eventBus    *EventBus
	mu          sync.RWMutex
	lifecycle   sync.Mutex // Serializes Start and Shutdown
	startOrder  []string   // Track service start order for proper shutdown
	stopTimeout time.Duration
	cancelMon   context.CancelFunc
	monDone     chan struct{}
}

// Service represents a service that can be started and stopped. Start must return once the
// service is running; long-lived work belongs in goroutines the service owns.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

// ServiceWithEvents is a service that can publish events
type ServiceWithEvents interface {
	Service
	SetEventBus(bus *EventBus)
}

// NewManager creates a new service manager
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		logger:      log,
		services:    make([]Service, 0),
		statuses:    make(map[string]*ServiceStatus),
		eventBus:    NewEventBus(100),
		startOrder:  make([]string, 0),
		stopTimeout: DefaultStopTimeout,
	}
}

// GetEventBus returns the event bus for inter-service communication
func (m *Manager) GetEventBus() *EventBus {
	return m.eventBus
}

// Register registers a service with the manager
func (m *Manager) Register(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)

	// Initialize status tracking
	m.statuses[svc.Name()] = NewServiceStatus(svc.Name())

	// Set event bus if service supports it
	if svcWithEvents, ok := svc.(ServiceWithEvents); ok {
		svcWithEvents.SetEventBus(m.eventBus)
	}
}

// Start starts all registered services concurrently and waits until every Start has
// returned. Failed services are marked with StatusError; the joined failures are returned.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	for _, svc := range services {
		m.startOrder = append(m.startOrder, svc.Name())
	}
	m.mu.Unlock()

	m.logger.Info("Starting services", "count", len(services))

	// Start event bus monitoring
	m.startEventMonitoring()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, svc := range services {
		status := m.GetServiceStatus(svc.Name())
		status.SetStatus(StatusStarting)

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := svc.Start(ctx); err != nil {
				status.SetError(err)
				m.logger.Error("Service failed to start",
					"service", svc.Name(),
					"error", err,
				)
				m.eventBus.Publish(Event{
					Type:   EventTypeServiceError,
					Source: svc.Name(),
					Data: map[string]interface{}{
						"error": err.Error(),
					},
				})
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
				errMu.Unlock()
				return
			}

			status.SetStatus(StatusRunning)
			m.logger.Info("Service started", "service", svc.Name())
			m.eventBus.Publish(Event{
				Type:   EventTypeServiceStarted,
				Source: "manager",
				Data: map[string]interface{}{
					"service": svc.Name(),
				},
			})
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// startEventMonitoring logs every event at debug level until Shutdown
func (m *Manager) startEventMonitoring() {
	if m.monDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelMon = cancel
	m.monDone = make(chan struct{})

	ch := m.eventBus.SubscribeAll()
	go func() {
		defer close(m.monDone)
		defer m.eventBus.UnsubscribeAll(ch)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				m.logger.Debug("Event received",
					"type", event.Type,
					"source", event.Source,
					"timestamp", event.Timestamp,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown gracefully shuts down all services in reverse start order
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	order := m.startOrder
	m.startOrder = nil
	m.mu.Unlock()

	m.logger.Info("Shutting down services", "count", len(order))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(order) - 1; i >= 0; i-- {
			m.stopService(ctx, order[i])
		}
	}()

	var err error
	select {
	case <-done:
		m.logger.Info("All services stopped")
	case <-ctx.Done():
		err = fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}

	if m.cancelMon != nil {
		m.cancelMon()
		<-m.monDone
		m.cancelMon, m.monDone = nil, nil
	}
	m.eventBus.Close()
	return err
}

func (m *Manager) stopService(ctx context.Context, name string) {
	m.mu.RLock()
	status := m.statuses[name]
	var svc Service
	for _, s := range m.services {
		if s.Name() == name {
			svc = s
			break
		}
	}
	m.mu.RUnlock()
	if svc == nil || status.GetStatus() != StatusRunning {
		return
	}

	status.SetStatus(StatusStopping)
	m.logger.Info("Stopping service", "service", name)

	stopCtx, cancel := context.WithTimeout(ctx, m.stopTimeout)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		status.SetError(err)
		m.logger.Error("Error stopping service",
			"service", name,
			"error", err,
		)
	} else {
		status.SetStatus(StatusStopped)
		m.logger.Info("Service stopped", "service", name)
	}

	m.eventBus.Publish(Event{
		Type:   EventTypeServiceStopped,
		Source: "manager",
		Data: map[string]interface{}{
			"service": name,
		},
	})
}

// GetServiceCount returns the number of registered services
func (m *Manager) GetServiceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// GetServiceStatus returns the status of a service
func (m *Manager) GetServiceStatus(serviceName string) *ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[serviceName]
}

// GetAllStatuses returns all service statuses
func (m *Manager) GetAllStatuses() map[string]*ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]*ServiceStatus)
	for name, status := range m.statuses {
		statuses[name] = status
	}
	return statuses
}

// Snapshots returns a copy of every service status
func (m *Manager) Snapshots() []StatusSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]StatusSnapshot, 0, len(m.services))
	for _, svc := range m.services {
		snaps = append(snaps, m.statuses[svc.Name()].Snapshot())
	}
	return snaps
}
