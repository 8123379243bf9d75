package Calibration

import (
	"math"
	"testing"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAnalyzeTwoClusters(t *testing.T) {
	history := append(repeat(17, 10), repeat(32, 10)...)
	history = append(history, repeat(0, 80)...)

	res := Analyze(history, 8, DefaultConfig())
	if !res.Valid {
		t.Fatalf("expected valid result, reason %q", res.Reason)
	}
	if math.Abs(res.SuggestedDitLen-8) > 1e-9 {
		t.Errorf("expected dit length 8, got %v", res.SuggestedDitLen)
	}
	if res.Dits.Count != 10 || res.Dahs.Count != 10 {
		t.Errorf("cluster sizes: %d / %d", res.Dits.Count, res.Dahs.Count)
	}
	if res.Split != 24.5 {
		t.Errorf("expected split 24.5, got %v", res.Split)
	}
	if res.Confidence != 1 {
		t.Errorf("expected full confidence for constant clusters, got %v", res.Confidence)
	}
}

func TestAnalyzeDetectsSlowerSpeed(t *testing.T) {
	var history []float64
	for i := 0; i < 12; i++ {
		history = append(history, 25.5+float64(i%3)-1, 48+float64(i%2))
	}
	res := Analyze(history, 8, DefaultConfig())
	if !res.Valid {
		t.Fatalf("expected valid result, reason %q", res.Reason)
	}
	// 点 25.5/2.125 = 12, 划 48.5/4 ≈ 12.1
	if res.SuggestedDitLen < 11.5 || res.SuggestedDitLen > 12.5 {
		t.Errorf("expected about 12, got %v", res.SuggestedDitLen)
	}
	if res.Confidence <= 0.5 || res.Confidence > 1 {
		t.Errorf("unexpected confidence %v", res.Confidence)
	}
}

func TestAnalyzeSingleCluster(t *testing.T) {
	res := Analyze(repeat(17, 12), 8, DefaultConfig())
	if !res.Valid {
		t.Fatalf("expected valid result, reason %q", res.Reason)
	}
	if res.Dahs.Count != 0 || res.Dits.Count != 12 {
		t.Errorf("expected dits only, got %+v", res)
	}
	if math.Abs(res.SuggestedDitLen-8) > 1e-9 {
		t.Errorf("expected 8, got %v", res.SuggestedDitLen)
	}

	res = Analyze(repeat(32, 12), 8, DefaultConfig())
	if res.Dahs.Count != 12 || math.Abs(res.SuggestedDitLen-8) > 1e-9 {
		t.Errorf("expected dahs only at 8, got %+v", res)
	}
}

func TestAnalyzeNotEnoughSamples(t *testing.T) {
	history := append(repeat(17, 4), repeat(0, 100)...)
	if res := Analyze(history, 8, DefaultConfig()); res.Valid {
		t.Fatalf("expected invalid result with 4 samples")
	}
	if res := Analyze(repeat(17, 20), 0, DefaultConfig()); res.Valid {
		t.Fatalf("expected invalid result for zero dit length")
	}
}

func TestHistogram(t *testing.T) {
	dividers, counts := Histogram([]float64{0, 0, 1.5, 2.2, 2.7, 5}, 1)
	if len(counts) != 6 || len(dividers) != 7 {
		t.Fatalf("expected 6 bins, got %d (dividers %d)", len(counts), len(dividers))
	}
	want := []float64{0, 1, 2, 0, 0, 1}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", counts, want)
		}
	}
	if d, c := Histogram([]float64{0, 0}, 1); d != nil || c != nil {
		t.Fatalf("expected empty histogram for all-zero history")
	}
}
