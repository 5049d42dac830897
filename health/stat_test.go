package health

import (
	"runtime"
	"testing"

	"github.com/c9s/goprocinfo/linux"
	"github.com/stretchr/testify/assert"
)

func testStatsClone(t *testing.T) {
	var (
		assert   = assert.New(t)
		original = Stats{"a": 1, "b": 2}
		clone    = original.Clone()
	)

	assert.Equal(original, clone)

	clone["a"] = 100
	assert.Equal(1, original["a"])
}

func testStatsApply(t *testing.T) {
	var (
		assert = assert.New(t)
		stats  = Stats{}
	)

	stats.Apply(
		Stat("defined"),
		Ensure("ensured"),
		Set("set", 47),
		Inc("incremented", 3),
		Options(Inc("incremented", 4), Set("grouped", 1)),
		Stats{"merged": 12},
	)

	assert.Equal(
		Stats{
			"defined":     0,
			"ensured":     0,
			"set":         47,
			"incremented": 7,
			"grouped":     1,
			"merged":      12,
		},
		stats,
	)

	// applying a Stat again must not clobber the existing value
	stats.Apply(Stat("set"), Ensure("incremented"))
	assert.Equal(47, stats["set"])
	assert.Equal(7, stats["incremented"])
}

func testStatsUpdateMemInfo(t *testing.T) {
	var (
		assert = assert.New(t)
		stats  = commonStats.Clone()
	)

	stats.UpdateMemInfo(&linux.MemInfo{Active: 100})
	assert.Equal(102400, stats[CurrentMemoryUtilizationActive])
	assert.Equal(102400, stats[MaxMemoryUtilizationActive])

	// a smaller reading moves current but leaves the max
	stats.UpdateMemInfo(&linux.MemInfo{Active: 50})
	assert.Equal(51200, stats[CurrentMemoryUtilizationActive])
	assert.Equal(102400, stats[MaxMemoryUtilizationActive])
}

func testStatsUpdateMemStats(t *testing.T) {
	var (
		assert   = assert.New(t)
		stats    = commonStats.Clone()
		memStats runtime.MemStats
	)

	memStats.Alloc = 1000
	memStats.HeapSys = 2000
	stats.UpdateMemStats(&memStats)
	assert.Equal(1000, stats[CurrentMemoryUtilizationAlloc])
	assert.Equal(2000, stats[CurrentMemoryUtilizationHeapSys])
	assert.Equal(1000, stats[MaxMemoryUtilizationAlloc])
	assert.Equal(2000, stats[MaxMemoryUtilizationHeapSys])

	memStats.Alloc = 500
	memStats.HeapSys = 3000
	stats.UpdateMemStats(&memStats)
	assert.Equal(500, stats[CurrentMemoryUtilizationAlloc])
	assert.Equal(1000, stats[MaxMemoryUtilizationAlloc])
	assert.Equal(3000, stats[MaxMemoryUtilizationHeapSys])
}

func TestStats(t *testing.T) {
	t.Run("Clone", testStatsClone)
	t.Run("Apply", testStatsApply)
	t.Run("UpdateMemInfo", testStatsUpdateMemInfo)
	t.Run("UpdateMemStats", testStatsUpdateMemStats)
}
