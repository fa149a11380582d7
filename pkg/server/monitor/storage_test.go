package monitor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStorageMonitor_GetLimit(t *testing.T) {
	sm := NewStorageMonitor("/tmp", 1024*1024*1024)
	if got := sm.GetLimit(); got != 1024*1024*1024 {
		t.Errorf("GetLimit() = %d, want %d", got, 1024*1024*1024)
	}
}

func TestStorageMonitor_GetUsage(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "000001.vlog")
	if err := os.WriteFile(testFile, []byte("test data"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	sm := NewStorageMonitor(tmpDir, 1024*1024*1024)
	usage, err := sm.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}

	if usage < 9 {
		t.Errorf("GetUsage() = %d, want at least 9", usage)
	}
}

func TestStorageMonitor_SQLiteFileWithWAL(t *testing.T) {
	tmpDir := t.TempDir()
	db := filepath.Join(tmpDir, "trequer.db")

	if err := os.WriteFile(db, make([]byte, 100), 0644); err != nil {
		t.Fatalf("Failed to create db file: %v", err)
	}
	onlyDB, err := NewStorageMonitor(db, 0).GetUsage()
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}

	if err := os.WriteFile(db+"-wal", make([]byte, 5000), 0644); err != nil {
		t.Fatalf("Failed to create wal file: %v", err)
	}
	withWAL, err := NewStorageMonitor(db, 0).GetUsage()
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}

	if withWAL <= onlyDB {
		t.Errorf("WAL file not counted: %d <= %d", withWAL, onlyDB)
	}
}

func TestStorageMonitor_Caching(t *testing.T) {
	tmpDir := t.TempDir()
	sm := NewStorageMonitor(tmpDir, 1024*1024*1024)

	usage1, err := sm.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "new"), make([]byte, 8192), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	usage2, err := sm.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}

	if usage1 != usage2 {
		t.Errorf("Cached values differ: %d != %d", usage1, usage2)
	}
}

func TestStorageMonitor_MemoryBackend(t *testing.T) {
	usage, err := NewStorageMonitor("", 0).GetUsage()
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}
	if usage != 0 {
		t.Errorf("GetUsage() = %d, want 0", usage)
	}
}

func TestStorageMonitor_InvalidDir(t *testing.T) {
	sm := NewStorageMonitor("/nonexistent/path/12345", 1024*1024*1024)
	_, err := sm.GetUsage()
	if err == nil {
		t.Error("GetUsage() should return error for nonexistent directory")
	}
}
