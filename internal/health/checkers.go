package health

import (
	"context"
	"fmt"
	"os"
	"time"
)

func newCheck(name string) Check {
	return Check{
		Name:      name,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// Pinger is anything whose connectivity can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// JournalChecker checks the decision journal database
type JournalChecker struct {
	journal Pinger
	path    string
}

func NewJournalChecker(journal Pinger, path string) *JournalChecker {
	return &JournalChecker{journal: journal, path: path}
}

func (c *JournalChecker) Name() string {
	return "journal"
}

func (c *JournalChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())
	check.Details["path"] = c.path

	if err := c.journal.Ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Journal ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Journal database OK"
	return check
}

// HealthChecker is a remote service exposing a readiness probe
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DetectorChecker checks the detection service. An unreachable detector degrades the report
// but does not make it unhealthy: streams keep running without detections.
type DetectorChecker struct {
	client     HealthChecker
	serviceURL string
}

func NewDetectorChecker(client HealthChecker, serviceURL string) *DetectorChecker {
	return &DetectorChecker{client: client, serviceURL: serviceURL}
}

func (c *DetectorChecker) Name() string {
	return "detector"
}

func (c *DetectorChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())
	check.Details["url"] = c.serviceURL

	if err := c.client.HealthCheck(ctx); err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Detector unreachable: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Detector is reachable"
	return check
}

// StorageChecker checks that the data directory is writable and its filesystem is not full.
// A maxUsagePercent of 0 disables the usage check.
type StorageChecker struct {
	dataDir         string
	maxUsagePercent float64
	disk            *DiskMonitor
}

func NewStorageChecker(dataDir string, maxUsagePercent float64) *StorageChecker {
	return &StorageChecker{dataDir: dataDir, maxUsagePercent: maxUsagePercent, disk: NewDiskMonitor(dataDir)}
}

func (c *StorageChecker) Name() string {
	return "storage"
}

func (c *StorageChecker) Check(ctx context.Context) Check {
	check := newCheck(c.Name())
	check.Details["data_dir"] = c.dataDir

	if c.dataDir == "" {
		check.Status = StatusDegraded
		check.Message = "Data directory not configured"
		return check
	}

	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to create data directory: %v", err)
		return check
	}

	f, err := os.CreateTemp(c.dataDir, ".health-*")
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Data directory not writable: %v", err)
		return check
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	if usage, err := c.disk.Usage(); err == nil {
		check.Details["disk_usage_percent"] = usage.UsagePercent
		check.Details["disk_available_bytes"] = usage.AvailableBytes
		if c.maxUsagePercent > 0 && usage.UsagePercent >= c.maxUsagePercent {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Disk usage %.1f%% exceeds %.1f%%", usage.UsagePercent, c.maxUsagePercent)
			return check
		}
	}

	check.Status = StatusHealthy
	check.Message = "Data directory writable"
	return check
}
