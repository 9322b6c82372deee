package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestSummarizeEnergies(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	s := SummarizeEnergies(values)

	if math.Abs(s.Mean-55) > 0.001 {
		t.Errorf("mean = %v, want 55", s.Mean)
	}
	if math.Abs(s.P50-55) > 0.01 {
		t.Errorf("p50 = %v, want ~55", s.P50)
	}
	if s.Std <= 0 {
		t.Errorf("std = %v, want positive", s.Std)
	}
}

func TestSummarizeEnergiesEmpty(t *testing.T) {
	s := SummarizeEnergies(nil)

	if s.Mean != 0 || s.Std != 0 || s.P50 != 0 {
		t.Error("empty input should return all zeros")
	}
}

func TestSummarizeEnergiesSingle(t *testing.T) {
	s := SummarizeEnergies([]float64{42})

	if s.Mean != 42 || s.P50 != 42 {
		t.Errorf("single value summary = %+v, want mean and p50 of 42", s)
	}
	if s.Std != 0 {
		t.Errorf("std of single value = %v, want 0", s.Std)
	}
}
