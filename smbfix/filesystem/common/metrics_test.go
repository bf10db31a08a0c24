package common

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPassMetricsConcurrentUpdates(t *testing.T) {
	var pm PassMetrics
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(fatal bool) {
			defer wg.Done()
			pm.UpdateMetrics(time.Now(), 10, 2, 1, fatal)
		}(i == 0)
	}
	wg.Wait()

	m := pm.GetMetrics()
	assert.Equal(t, int64(8), m["total_operations"])
	assert.Equal(t, int64(7), m["successful_ops"])
	assert.Equal(t, int64(1), m["failed_ops"])
	assert.Equal(t, int64(80), m["total_entries"])
	assert.Equal(t, int64(16), m["total_changes"])
	assert.Equal(t, int64(8), m["total_errors"])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500.00µs", FormatDuration(500*time.Microsecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.00m", FormatDuration(2*time.Minute))
}
