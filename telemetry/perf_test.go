package telemetry

import (
	"testing"
	"time"
)

func TestFrameTimerBasicTiming(t *testing.T) {
	ft := NewFrameTimer(10)

	for i := 0; i < 5; i++ {
		ft.Record(10 * time.Millisecond)
	}

	if got := ft.Avg(); got != 10*time.Millisecond {
		t.Errorf("Avg() = %v, want 10ms", got)
	}

	// 10ms ticks imply 100 ticks per second
	if fps := ft.FPS(); fps < 99 || fps > 101 {
		t.Errorf("FPS() = %v, want ~100", fps)
	}
}

func TestFrameTimerRollingWindow(t *testing.T) {
	ft := NewFrameTimer(4)

	// Overfill the window; only the most recent 4 samples should count
	for i := 0; i < 8; i++ {
		ft.Record(time.Duration(i+1) * time.Millisecond)
	}

	// Window holds samples 5..8ms, average 6.5ms
	if got := ft.Avg(); got != 6500*time.Microsecond {
		t.Errorf("Avg() = %v, want 6.5ms", got)
	}
}

func TestFrameTimerStats(t *testing.T) {
	ft := NewFrameTimer(10)
	ft.Record(2 * time.Millisecond)
	ft.Record(4 * time.Millisecond)
	ft.Record(6 * time.Millisecond)

	stats := ft.Stats()

	if stats.MinTickDuration != 2*time.Millisecond {
		t.Errorf("MinTickDuration = %v, want 2ms", stats.MinTickDuration)
	}
	if stats.MaxTickDuration != 6*time.Millisecond {
		t.Errorf("MaxTickDuration = %v, want 6ms", stats.MaxTickDuration)
	}
	if stats.AvgTickDuration != 4*time.Millisecond {
		t.Errorf("AvgTickDuration = %v, want 4ms", stats.AvgTickDuration)
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestFrameTimerEmpty(t *testing.T) {
	ft := NewFrameTimer(10)

	if ft.Avg() != 0 {
		t.Error("expected zero average with no samples")
	}
	if ft.FPS() != 0 {
		t.Error("expected zero FPS with no samples")
	}

	stats := ft.Stats()
	if stats.AvgTickDuration != 0 || stats.TicksPerSecond != 0 {
		t.Errorf("empty Stats() = %+v, want zeros", stats)
	}
}

func TestCollectorWindowFlush(t *testing.T) {
	c := NewCollector(1.0, 0.05) // 1s windows at 20 ticks/s

	if got := c.WindowDurationTicks(); got != 20 {
		t.Errorf("WindowDurationTicks() = %v, want 20", got)
	}

	if c.ShouldFlush(10) {
		t.Error("window should not flush at tick 10 of 20")
	}
	if !c.ShouldFlush(20) {
		t.Error("window should flush at tick 20")
	}

	c.RecordBirth()
	c.RecordBirth()
	c.RecordDeath("starved")
	c.RecordDeath("predation")
	c.RecordFoodConsumed(1)
	c.RecordFoodSpawned(3)

	stats := c.Flush(20, Snapshot{
		Plants:       5,
		Herbivores:   3,
		Carnivores:   1,
		FoodCount:    12,
		HerbEnergies: []float64{40, 60},
	})

	if stats.Births != 2 {
		t.Errorf("Births = %v, want 2", stats.Births)
	}
	if stats.Deaths != 2 || stats.Starved != 1 || stats.Killed != 1 {
		t.Errorf("death counts = %v/%v/%v, want 2/1/1", stats.Deaths, stats.Starved, stats.Killed)
	}
	if stats.FoodConsumed != 1 || stats.FoodSpawned != 3 {
		t.Errorf("food counts = %v/%v, want 1/3", stats.FoodConsumed, stats.FoodSpawned)
	}
	if stats.HerbEnergyMean != 50 {
		t.Errorf("HerbEnergyMean = %v, want 50", stats.HerbEnergyMean)
	}
	if stats.SimTimeSec != 1.0 {
		t.Errorf("SimTimeSec = %v, want 1.0", stats.SimTimeSec)
	}

	// Counters reset after flush
	next := c.Flush(40, Snapshot{})
	if next.Births != 0 || next.Deaths != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
	if next.WindowStartTick != 20 {
		t.Errorf("WindowStartTick = %v, want 20", next.WindowStartTick)
	}
}
