package lib

import "testing"

func TestAverageInt64(t *testing.T) {
	av := &AverageInt64{}
	if av.Mean() != 0 || av.Variance() != 0 || av.SD() != 0 {
		t.Errorf("expected zero stats on empty accumulator")
	}
	for i := int64(1); i <= 100; i++ {
		av.Add(i)
	}
	if x := av.Samples(); x != 100 {
		t.Errorf("expected %v, got %v", 100, x)
	}
	if x := av.Min(); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
	if x := av.Max(); x != 100 {
		t.Errorf("expected %v, got %v", 100, x)
	}
	if x := av.Sum(); x != 5050 {
		t.Errorf("expected %v, got %v", 5050, x)
	}
	if x := av.Mean(); x != 50 {
		t.Errorf("expected %v, got %v", 50, x)
	}
	if x := av.Variance(); x < 833 || x > 834 {
		t.Errorf("unexpected variance %v", x)
	}
	stats := av.Stats()
	if x := stats["samples"].(int64); x != 100 {
		t.Errorf("expected %v, got %v", 100, x)
	}
}

func TestAverageInt64Negative(t *testing.T) {
	av := &AverageInt64{}
	av.Add(-10)
	av.Add(10)
	if x := av.Min(); x != -10 {
		t.Errorf("expected %v, got %v", -10, x)
	}
	if x := av.Mean(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
}

func TestMemory(t *testing.T) {
	total, used, free := Memory()
	if total == 0 {
		t.Errorf("expected non-zero total RAM")
	}
	if used > total {
		t.Errorf("used %v exceeds total %v", used, total)
	}
	if free > total {
		t.Errorf("free %v exceeds total %v", free, total)
	}
}
