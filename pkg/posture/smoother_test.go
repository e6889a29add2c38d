package posture

import (
	"reflect"
	"testing"
)

func TestSmoother_FIFOEviction(t *testing.T) {
	s := NewSmoother(5)

	var avg Metric
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		avg = s.Push(NewMetric(v, v))
	}

	if got := s.Values(); !reflect.DeepEqual(got, []float64{2, 3, 4, 5, 6}) {
		t.Errorf("Values = %v, want [2 3 4 5 6]", got)
	}
	if !avg.Valid || avg.Value != 4.0 {
		t.Errorf("average = %+v, want 4.0", avg)
	}
	if s.Len() != 5 {
		t.Errorf("Len = %d, want 5", s.Len())
	}
}

func TestSmoother_AbsentLeavesWindow(t *testing.T) {
	s := NewSmoother(3)
	s.Push(NewMetric(10, 10))
	s.Push(NewMetric(20, 20))

	out := s.Push(Absent())
	if out.Valid {
		t.Errorf("absent input should give absent output, got %+v", out)
	}
	if got := s.Values(); !reflect.DeepEqual(got, []float64{10, 20}) {
		t.Errorf("Values = %v, want [10 20]", got)
	}

	avg := s.Average()
	if !avg.Valid || avg.Value != 15 {
		t.Errorf("Average = %+v, want 15", avg)
	}
}

func TestSmoother_Empty(t *testing.T) {
	s := NewSmoother(5)

	if s.Average().Valid {
		t.Error("empty window should average to absent")
	}
	if s.Push(Absent()).Valid {
		t.Error("absent push into empty window should be absent")
	}
}

func TestSmoother_RawAveraged(t *testing.T) {
	s := NewSmoother(2)
	s.Push(NewMetric(40, -0.02))
	avg := s.Push(NewMetric(60, -0.06))

	if avg.Value != 50 {
		t.Errorf("Value = %v, want 50", avg.Value)
	}
	if avg.Raw < -0.0400001 || avg.Raw > -0.0399999 {
		t.Errorf("Raw = %v, want -0.04", avg.Raw)
	}
}

func TestSmoother_SizeOne(t *testing.T) {
	s := NewSmoother(1)
	s.Push(NewMetric(3, 3))
	avg := s.Push(NewMetric(9, 9))

	if avg.Value != 9 {
		t.Errorf("window of one should track the latest value, got %v", avg.Value)
	}
}

func TestNewSmoother_ClampsSize(t *testing.T) {
	if NewSmoother(0).Size() != 1 {
		t.Error("size 0 should clamp to 1")
	}
	if NewSmoother(-4).Size() != 1 {
		t.Error("negative size should clamp to 1")
	}
}

func TestSmoother_Resized(t *testing.T) {
	s := NewSmoother(5)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.Push(NewMetric(v, v))
	}

	smaller := s.Resized(2)
	if got := smaller.Values(); !reflect.DeepEqual(got, []float64{4, 5}) {
		t.Errorf("Resized(2) values = %v, want [4 5]", got)
	}

	larger := s.Resized(8)
	if got := larger.Values(); !reflect.DeepEqual(got, []float64{1, 2, 3, 4, 5}) {
		t.Errorf("Resized(8) values = %v, want [1 2 3 4 5]", got)
	}
	if larger.Size() != 8 {
		t.Errorf("Resized(8) size = %d", larger.Size())
	}

	// The original is untouched.
	if s.Len() != 5 {
		t.Errorf("original Len = %d, want 5", s.Len())
	}
}
