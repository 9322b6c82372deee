package telemetry

import (
	"log/slog"
	"time"
)

// FrameTimer tracks tick durations over a rolling window and derives
// throughput estimates from them.
type FrameTimer struct {
	windowSize int
	samples    []time.Duration
	writeIndex int
	count      int
}

// NewFrameTimer creates a frame timer averaging over windowSize samples.
func NewFrameTimer(windowSize int) *FrameTimer {
	if windowSize < 1 {
		windowSize = 60
	}
	return &FrameTimer{
		windowSize: windowSize,
		samples:    make([]time.Duration, windowSize),
	}
}

// Record adds one tick duration sample.
func (t *FrameTimer) Record(d time.Duration) {
	t.samples[t.writeIndex] = d
	t.writeIndex = (t.writeIndex + 1) % t.windowSize
	if t.count < t.windowSize {
		t.count++
	}
}

// Avg returns the mean tick duration over the window, or 0 with no samples.
func (t *FrameTimer) Avg() time.Duration {
	if t.count == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < t.count; i++ {
		total += t.samples[i]
	}
	return total / time.Duration(t.count)
}

// FPS returns ticks per second implied by the average duration.
func (t *FrameTimer) FPS() float64 {
	avg := t.Avg()
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}

// Stats computes aggregated timing statistics over the current window.
func (t *FrameTimer) Stats() PerfStats {
	if t.count == 0 {
		return PerfStats{}
	}

	var total, minTick, maxTick time.Duration
	for i := 0; i < t.count; i++ {
		s := t.samples[i]
		total += s
		if i == 0 || s < minTick {
			minTick = s
		}
		if s > maxTick {
			maxTick = s
		}
	}
	avg := total / time.Duration(t.count)

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgTickDuration: avg,
		MinTickDuration: minTick,
		MaxTickDuration: maxTick,
		TicksPerSecond:  perSec,
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	TicksPerSecond  float64
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	slog.Info("perf",
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"min_tick_us", s.MinTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd   uint64  `csv:"window_end"`
	AvgTickUS   int64   `csv:"avg_tick_us"`
	MinTickUS   int64   `csv:"min_tick_us"`
	MaxTickUS   int64   `csv:"max_tick_us"`
	TicksPerSec float64 `csv:"ticks_per_sec"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:   windowEnd,
		AvgTickUS:   s.AvgTickDuration.Microseconds(),
		MinTickUS:   s.MinTickDuration.Microseconds(),
		MaxTickUS:   s.MaxTickDuration.Microseconds(),
		TicksPerSec: s.TicksPerSecond,
	}
}
