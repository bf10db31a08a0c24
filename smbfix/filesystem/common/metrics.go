package common

import (
	"fmt"
	"sync"
	"time"
)

// BaseMetrics provides common fields used across different metrics types
type BaseMetrics struct {
	TotalOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	LastOperation   time.Time
	Mu              sync.RWMutex
}

// record updates common metrics fields; the caller holds Mu
func (bm *BaseMetrics) record(success bool) {
	bm.TotalOperations++
	if success {
		bm.SuccessfulOps++
	} else {
		bm.FailedOps++
	}
	bm.LastOperation = time.Now()
}

// GetBaseMetrics returns the common metrics as a map
func (bm *BaseMetrics) GetBaseMetrics() map[string]interface{} {
	bm.Mu.RLock()
	defer bm.Mu.RUnlock()

	return map[string]interface{}{
		"total_operations": bm.TotalOperations,
		"successful_ops":   bm.SuccessfulOps,
		"failed_ops":       bm.FailedOps,
		"last_operation":   bm.LastOperation,
	}
}

// PassMetrics tracks remediation passes across roots. Passes for different
// roots run concurrently, so every update takes the lock.
type PassMetrics struct {
	BaseMetrics
	TotalEntries int64
	TotalChanges int64
	TotalErrors  int64
	AverageTime  time.Duration
}

// UpdateMetrics records one finished pass
func (pm *PassMetrics) UpdateMetrics(start time.Time, entries, changes, errs int, fatal bool) {
	pm.Mu.Lock()
	defer pm.Mu.Unlock()

	pm.record(!fatal)
	pm.TotalEntries += int64(entries)
	pm.TotalChanges += int64(changes)
	pm.TotalErrors += int64(errs)

	// Rolling average over all passes
	duration := time.Since(start)
	if pm.TotalOperations == 1 {
		pm.AverageTime = duration
	} else {
		pm.AverageTime = (pm.AverageTime*time.Duration(pm.TotalOperations-1) + duration) / time.Duration(pm.TotalOperations)
	}
}

// GetMetrics returns pass metrics as a map
func (pm *PassMetrics) GetMetrics() map[string]interface{} {
	metrics := pm.GetBaseMetrics()
	pm.Mu.RLock()
	defer pm.Mu.RUnlock()

	metrics["total_entries"] = pm.TotalEntries
	metrics["total_changes"] = pm.TotalChanges
	metrics["total_errors"] = pm.TotalErrors
	metrics["average_time"] = FormatDuration(pm.AverageTime)
	return metrics
}

// FormatDuration formats a duration for human-readable display
func FormatDuration(duration time.Duration) string {
	switch {
	case duration < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(duration.Nanoseconds())/1000)
	case duration < time.Second:
		return fmt.Sprintf("%.2fms", float64(duration.Nanoseconds())/1000000)
	case duration < time.Minute:
		return fmt.Sprintf("%.2fs", duration.Seconds())
	case duration < time.Hour:
		return fmt.Sprintf("%.2fm", duration.Minutes())
	default:
		return fmt.Sprintf("%.2fh", duration.Hours())
	}
}
