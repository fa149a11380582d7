package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StorageMonitor tracks on-disk usage of the reading store with caching
// to avoid expensive filesystem walks.
type StorageMonitor struct {
	path          string
	maxBytes      int64
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor creates a new storage monitor. path may be a data
// directory (badger) or a database file (sqlite); an empty path reports
// zero usage (memory backend).
func NewStorageMonitor(path string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		path:          path,
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// GetUsage returns current storage usage in bytes, refreshed at most every
// 10 seconds.
func (sm *StorageMonitor) GetUsage() (int64, error) {
	if sm.path == "" {
		return 0, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := pathSize(sm.path)
	if err != nil {
		return 0, err
	}

	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// Path returns the monitored path
func (sm *StorageMonitor) Path() string {
	return sm.path
}

// pathSize returns the disk usage of a file, or of a directory tree.
// A sqlite database also owns its -wal and -shm siblings.
func pathSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return calculateDirSize(path)
	}

	size := fileSize(path, info)
	for _, suffix := range []string{"-wal", "-shm"} {
		if sib, err := os.Stat(path + suffix); err == nil {
			size += fileSize(path+suffix, sib)
		}
	}
	return size, nil
}

// calculateDirSize recursively calculates directory size in bytes.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += fileSize(filePath, info)
		}
		return nil
	})
	return size, err
}

// fileSize prefers allocated size over logical size so sparse files
// are counted correctly.
func fileSize(path string, info os.FileInfo) int64 {
	actual, err := getActualFileSize(path, info)
	if err != nil {
		return info.Size()
	}
	return actual
}

// getActualFileSize is implemented in platform-specific files:
// - filesize_unix.go (Linux/Mac): Uses syscall.Stat_t.Blocks
// - filesize_windows.go (Windows): Uses GetCompressedFileSizeW API
