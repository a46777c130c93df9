package mathutil

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		expected float64
	}{
		{"empty", []float64{}, 0},
		{"single", []float64{5}, 5},
		{"several", []float64{1, 2, 3, 4}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.samples); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Mean(%v) = %v, want %v", tt.samples, got, tt.expected)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	samples := []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}
	tests := []struct {
		p        float64
		expected float64
	}{
		{0, 100},
		{100, 1000},
		{50, 550},
	}
	for _, tt := range tests {
		if got := Percentile(samples, tt.p); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Percentile(_, %v) = %v, want %v", tt.p, got, tt.expected)
		}
	}
}

func TestPercentileEmpty(t *testing.T) {
	if got := Percentile(nil, 90); got != 0 {
		t.Errorf("Percentile(nil, 90) = %v, want 0", got)
	}
}

func TestPercentileUnsortedInputUnmodified(t *testing.T) {
	samples := []float64{500, 100, 900}
	_ = Percentile(samples, 90)
	if samples[0] != 500 || samples[1] != 100 || samples[2] != 900 {
		t.Error("Percentile should not mutate its input slice")
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 10, 20); got != 10 {
		t.Errorf("Clamp(5,10,20) = %v, want 10", got)
	}
	if got := Clamp(25, 10, 20); got != 20 {
		t.Errorf("Clamp(25,10,20) = %v, want 20", got)
	}
	if got := Clamp(15, 10, 20); got != 15 {
		t.Errorf("Clamp(15,10,20) = %v, want 15", got)
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(3000, 5000, 45000); got != 5000 {
		t.Errorf("ClampInt(3000,5000,45000) = %v, want 5000", got)
	}
	if got := ClampInt(60000, 5000, 45000); got != 45000 {
		t.Errorf("ClampInt(60000,5000,45000) = %v, want 45000", got)
	}
}
