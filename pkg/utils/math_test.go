package utils

import (
	"math"
	"testing"
)

const floatEpsilon = 1e-6

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatEpsilon
}

func TestRoundToDecimals(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		expected float64
	}{
		{"two decimals", 0.123456, 2, 0.12},
		{"round up", 0.126, 2, 0.13},
		{"zero decimals", 100.5, 0, 101.0},
		{"negative decimals treated as zero", 100.5, -1, 101.0},
		{"already rounded", 25000.0, 2, 25000.0},
		{"large precision", 1.23456789, 6, 1.234568},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToDecimals(tt.value, tt.decimals)
			if !floatEquals(result, tt.expected) {
				t.Errorf("RoundToDecimals(%v, %v) = %v, want %v", tt.value, tt.decimals, result, tt.expected)
			}
		})
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name     string
		from     float64
		to       float64
		expected float64
	}{
		{"10% increase", 100.0, 110.0, 10.0},
		{"10% decrease", 100.0, 90.0, -10.0},
		{"no change", 100.0, 100.0, 0.0},
		{"zero base", 0, 100.0, 0.0},
		{"negative base", -50.0, 100.0, 0.0},
		{"5% token tick", 25000.0, 26250.0, 5.0},
		{"24h threshold", 100.0, 110.0, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PercentChange(tt.from, tt.to)
			if !floatEquals(result, tt.expected) {
				t.Errorf("PercentChange(%v, %v) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAbsPercentChange(t *testing.T) {
	if got := AbsPercentChange(100.0, 90.0); !floatEquals(got, 10.0) {
		t.Errorf("AbsPercentChange(100, 90) = %v, want 10.0", got)
	}
	if got := AbsPercentChange(100.0, 110.0); !floatEquals(got, 10.0) {
		t.Errorf("AbsPercentChange(100, 110) = %v, want 10.0", got)
	}
}

func TestIsPercentChangeAboveThreshold(t *testing.T) {
	tests := []struct {
		name      string
		from      float64
		to        float64
		threshold float64
		expected  bool
	}{
		{"exact tick threshold", 100.0, 105.0, 5.0, true},
		{"below threshold", 100.0, 102.0, 5.0, false},
		{"above threshold down", 100.0, 88.0, 10.0, true},
		{"24h threshold hit", 100.0, 111.0, 10.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsPercentChangeAboveThreshold(tt.from, tt.to, tt.threshold)
			if result != tt.expected {
				t.Errorf("IsPercentChangeAboveThreshold(%v, %v, %v) = %v, want %v",
					tt.from, tt.to, tt.threshold, result, tt.expected)
			}
		})
	}
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		weights  []float64
		expected float64
	}{
		{
			"doc example",
			[]float64{100.0, 101.0, 102.0},
			[]float64{10.0, 20.0, 10.0},
			101.0,
		},
		{
			"equal weights",
			[]float64{100.0, 102.0},
			[]float64{1.0, 1.0},
			101.0,
		},
		{
			"single element",
			[]float64{100.0},
			[]float64{10.0},
			100.0,
		},
		{"empty values", []float64{}, []float64{}, 0},
		{"empty weights", []float64{100}, []float64{}, 0},
		{"length mismatch", []float64{100, 101}, []float64{1}, 0},
		{"zero weights", []float64{100, 101}, []float64{0, 0}, 0},
		{
			"negative weight ignored",
			[]float64{100.0, 101.0, 102.0},
			[]float64{10.0, -5.0, 10.0},
			101.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WeightedAverage(tt.values, tt.weights)
			if !floatEquals(result, tt.expected) {
				t.Errorf("WeightedAverage(%v, %v) = %v, want %v", tt.values, tt.weights, result, tt.expected)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
		{0, 0, 10, 0},
		{10, 0, 10, 10},
	}

	for _, tt := range tests {
		result := Clamp(tt.value, tt.min, tt.max)
		if result != tt.expected {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, result, tt.expected)
		}
	}
}

func TestCompareThreshold(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		op        string
		threshold float64
		expected  bool
	}{
		{"greater true", 30000, ">", 25000, true},
		{"greater false", 20000, ">", 25000, false},
		{"less true", 20000, "<", 25000, true},
		{"greater-equal boundary", 25000, ">=", 25000, true},
		{"less-equal boundary", 25000, "<=", 25000, true},
		{"equal true", 25000, "==", 25000, true},
		{"equal false", 25000.01, "==", 25000, false},
		{"unknown operator", 25000, "!=", 25000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CompareThreshold(tt.value, tt.op, tt.threshold)
			if result != tt.expected {
				t.Errorf("CompareThreshold(%v, %q, %v) = %v, want %v",
					tt.value, tt.op, tt.threshold, result, tt.expected)
			}
		})
	}
}

// Benchmarks

func BenchmarkPercentChange(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PercentChange(25000, 26250)
	}
}

func BenchmarkWeightedAverage(b *testing.B) {
	values := []float64{100.0, 101.0, 102.0, 103.0, 104.0}
	weights := []float64{10.0, 20.0, 30.0, 20.0, 10.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WeightedAverage(values, weights)
	}
}

func BenchmarkCompareThreshold(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CompareThreshold(30000, ">", 25000)
	}
}
