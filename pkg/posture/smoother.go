package posture

// Smoother keeps a moving average over the last N valid metrics.
// Not safe for concurrent use; a session owns exactly one.
type Smoother struct {
	size    int
	samples []Metric
}

// NewSmoother creates a smoother with window size n (minimum 1).
func NewSmoother(n int) *Smoother {
	if n < 1 {
		n = 1
	}
	return &Smoother{
		size:    n,
		samples: make([]Metric, 0, n+1),
	}
}

// Push records m and returns the new average. Absent metrics are not
// recorded and yield an absent result; the window is left untouched.
func (s *Smoother) Push(m Metric) Metric {
	if !m.Valid {
		return Absent()
	}

	s.samples = append(s.samples, m)
	for len(s.samples) > s.size {
		s.samples = s.samples[1:]
	}

	return s.Average()
}

// Average returns the mean of the window, or absent when it is empty.
func (s *Smoother) Average() Metric {
	if len(s.samples) == 0 {
		return Absent()
	}

	var sum, rawSum float64
	for _, m := range s.samples {
		sum += m.Value
		rawSum += m.Raw
	}
	n := float64(len(s.samples))
	return NewMetric(sum/n, rawSum/n)
}

// Values returns the windowed values, oldest first.
func (s *Smoother) Values() []float64 {
	out := make([]float64, len(s.samples))
	for i, m := range s.samples {
		out[i] = m.Value
	}
	return out
}

// Len returns the number of samples in the window.
func (s *Smoother) Len() int {
	return len(s.samples)
}

// Size returns the window capacity.
func (s *Smoother) Size() int {
	return s.size
}

// Resized returns a new smoother of size n seeded with the newest samples.
func (s *Smoother) Resized(n int) *Smoother {
	next := NewSmoother(n)
	start := max(0, len(s.samples)-next.size)
	next.samples = append(next.samples, s.samples[start:]...)
	return next
}
