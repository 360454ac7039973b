package health

import (
	"fmt"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// DiskUsage describes the filesystem holding a directory
type DiskUsage struct {
	TotalBytes     int64   `json:"total_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// DiskMonitor reads filesystem usage for a path, caching the result briefly
type DiskMonitor struct {
	path          string
	cacheDuration time.Duration

	mu        sync.Mutex
	lastCheck time.Time
	cached    *DiskUsage
}

func NewDiskMonitor(path string) *DiskMonitor {
	return &DiskMonitor{path: path, cacheDuration: 30 * time.Second}
}

// Usage returns the current usage, at most cacheDuration old
func (d *DiskMonitor) Usage() (DiskUsage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil && time.Since(d.lastCheck) < d.cacheDuration {
		return *d.cached, nil
	}

	usage, err := statDisk(d.path)
	if err != nil {
		return DiskUsage{}, err
	}
	d.cached = &usage
	d.lastCheck = time.Now()
	return usage, nil
}

func statDisk(path string) (DiskUsage, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(absPath, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)
	used := total - available

	usage := DiskUsage{TotalBytes: total, UsedBytes: used, AvailableBytes: available}
	if total > 0 {
		usage.UsagePercent = float64(used) / float64(total) * 100.0
	}
	return usage, nil
}
