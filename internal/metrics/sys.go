package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var startedAt = time.Now()

// Health is a point-in-time snapshot of the process and its storage,
// reported next to LLM usage on the admin surfaces.
type Health struct {
	UptimeHours  float64 `json:"uptime_hours"`
	HeapAllocMB  uint64  `json:"heap_alloc_mb"`
	HeapSysMB    uint64  `json:"heap_sys_mb"`
	GCRuns       uint32  `json:"gc_runs"`
	Goroutines   int     `json:"goroutines"`
	DatabaseSize string  `json:"database_size"`
}

// Snapshot collects current health data. databasePath is the SQLite
// file; its sidecars (-wal, -shm) count toward the reported size.
func Snapshot(databasePath string) Health {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Health{
		UptimeHours:  time.Since(startedAt).Hours(),
		HeapAllocMB:  m.HeapAlloc / 1024 / 1024,
		HeapSysMB:    m.HeapSys / 1024 / 1024,
		GCRuns:       m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DatabaseSize: databaseSize(databasePath),
	}
}

func databaseSize(path string) string {
	var size int64
	matches, _ := filepath.Glob(path + "*")
	for _, f := range matches {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			size += info.Size()
		}
	}
	return humanBytes(size)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
