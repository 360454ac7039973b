package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vzahanych/land2port/internal/logger"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}

	if mgr.GetServiceCount() != 0 {
		t.Errorf("Expected 0 services, got %d", mgr.GetServiceCount())
	}

	if mgr.GetEventBus() == nil {
		t.Error("Event bus should be initialized")
	}
}

func TestManager_Register(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mgr.Register(&mockService{name: "test-service"})

	if mgr.GetServiceCount() != 1 {
		t.Errorf("Expected 1 service, got %d", mgr.GetServiceCount())
	}

	status := mgr.GetServiceStatus("test-service")
	if status == nil {
		t.Fatal("Service status should be created")
	}

	if status.GetStatus() != StatusStopped {
		t.Errorf("Expected status %s, got %s", StatusStopped, status.GetStatus())
	}
}

func TestManager_Register_WithEvents(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mockSvc := &mockServiceWithEvents{name: "event-service"}
	mgr.Register(mockSvc)

	if mockSvc.eventBus == nil {
		t.Error("Event bus should be set for service with events")
	}
}

func TestManager_Start(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	defer mgr.Shutdown(context.Background())

	mockSvc := &mockService{name: "test-service"}
	mgr.Register(mockSvc)

	started := mgr.GetEventBus().Subscribe(EventTypeServiceStarted)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Start returns only after every service reported back
	status := mgr.GetServiceStatus("test-service")
	if status.GetStatus() != StatusRunning {
		t.Errorf("Expected status %s, got %s", StatusRunning, status.GetStatus())
	}
	if !mockSvc.isStarted() {
		t.Error("Service should have been started")
	}

	select {
	case event := <-started:
		if event.Data["service"] != "test-service" {
			t.Errorf("Expected started event for test-service, got %v", event.Data)
		}
	case <-time.After(time.Second):
		t.Error("Expected service.started event")
	}
}

func TestManager_Start_ServiceError(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	defer mgr.Shutdown(context.Background())

	mgr.Register(&mockService{name: "ok-service"})
	mgr.Register(&mockService{name: "bad-service", startError: errors.New("boom")})

	err := mgr.Start(context.Background())
	if err == nil {
		t.Fatal("Start should report the failing service")
	}

	bad := mgr.GetServiceStatus("bad-service")
	if bad.GetStatus() != StatusError {
		t.Errorf("Expected status %s, got %s", StatusError, bad.GetStatus())
	}
	if bad.GetError() == nil {
		t.Error("Error should be recorded")
	}

	if !mgr.GetServiceStatus("ok-service").IsRunning() {
		t.Error("Healthy service should still be running")
	}
}

func TestManager_Shutdown(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mockSvc := &mockService{name: "test-service"}
	mgr.Register(mockSvc)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mgr.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if !mockSvc.isStopped() {
		t.Error("Service should have been stopped")
	}

	status := mgr.GetServiceStatus("test-service")
	if status.GetStatus() != StatusStopped {
		t.Errorf("Expected status %s, got %s", StatusStopped, status.GetStatus())
	}
}

func TestManager_Shutdown_SkipsFailedServices(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	bad := &mockService{name: "bad-service", startError: errors.New("boom")}
	mgr.Register(bad)

	_ = mgr.Start(context.Background())

	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if bad.isStopped() {
		t.Error("A service that never started should not be stopped")
	}
}

func TestManager_Shutdown_ReverseOrder(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	var mu sync.Mutex
	var stopOrder []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			stopOrder = append(stopOrder, name)
		}
	}

	mgr.Register(&mockService{name: "service-1", onStop: record("service-1")})
	mgr.Register(&mockService{name: "service-2", onStop: record("service-2")})
	mgr.Register(&mockService{name: "service-3", onStop: record("service-3")})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mgr.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stopOrder) != 3 {
		t.Fatalf("Expected 3 services stopped, got %d", len(stopOrder))
	}

	expected := []string{"service-3", "service-2", "service-1"}
	for i, name := range expected {
		if stopOrder[i] != name {
			t.Errorf("Expected %s at position %d, got %s", name, i, stopOrder[i])
		}
	}
}

func TestManager_Shutdown_Timeout(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mgr.Register(&mockService{
		name:      "slow-service",
		stopDelay: 2 * time.Second,
	})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := mgr.Shutdown(shutdownCtx)
	if err == nil {
		t.Error("Shutdown should timeout and return error")
	}
}

func TestManager_Snapshots(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	defer mgr.Shutdown(context.Background())

	mgr.Register(&mockService{name: "service-1"})
	mgr.Register(&mockService{name: "service-2", startError: errors.New("no port")})

	_ = mgr.Start(context.Background())

	snaps := mgr.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Name != "service-1" || snaps[0].Status != StatusRunning {
		t.Errorf("Unexpected first snapshot: %+v", snaps[0])
	}
	if snaps[1].Status != StatusError || snaps[1].Error != "no port" {
		t.Errorf("Unexpected second snapshot: %+v", snaps[1])
	}
}

func TestManager_GetAllStatuses(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mgr.Register(&mockService{name: "service-1"})
	mgr.Register(&mockService{name: "service-2"})

	statuses := mgr.GetAllStatuses()
	if len(statuses) != 2 {
		t.Errorf("Expected 2 statuses, got %d", len(statuses))
	}

	if statuses["service-1"] == nil {
		t.Error("Status for service-1 should exist")
	}

	if statuses["service-2"] == nil {
		t.Error("Status for service-2 should exist")
	}
}

type mockService struct {
	name       string
	mu         sync.Mutex
	started    bool
	stopped    bool
	startError error
	stopError  error
	stopDelay  time.Duration
	onStop     func()
}

func (m *mockService) Name() string {
	return m.name
}

func (m *mockService) Start(ctx context.Context) error {
	if m.startError != nil {
		return m.startError
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *mockService) Stop(ctx context.Context) error {
	if m.stopDelay > 0 {
		time.Sleep(m.stopDelay)
	}
	if m.onStop != nil {
		m.onStop()
	}
	if m.stopError != nil {
		return m.stopError
	}
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return nil
}

func (m *mockService) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockService) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type mockServiceWithEvents struct {
	name     string
	eventBus *EventBus
}

func (m *mockServiceWithEvents) Name() string {
	return m.name
}

func (m *mockServiceWithEvents) Start(ctx context.Context) error {
	return nil
}

func (m *mockServiceWithEvents) Stop(ctx context.Context) error {
	return nil
}

func (m *mockServiceWithEvents) SetEventBus(bus *EventBus) {
	m.eventBus = bus
}
