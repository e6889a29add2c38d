package pose

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, image []byte) (Set, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock provider that always returns set.
func NewMock(set Set) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, image []byte) (Set, error) {
			return set, nil
		},
	}
}

// NewSequenceMock creates a mock that returns sets in order, then ErrNoPose.
func NewSequenceMock(sets ...Set) *Mock {
	var mu sync.Mutex
	next := 0
	return &Mock{
		DetectFunc: func(ctx context.Context, image []byte) (Set, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(sets) {
				return Set{}, ErrNoPose
			}
			s := sets[next]
			next++
			return s, nil
		},
	}
}

// Detect implements Provider.
func (m *Mock) Detect(ctx context.Context, image []byte) (Set, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.DetectFunc == nil {
		return Set{}, ErrNoPose
	}
	return m.DetectFunc(ctx, image)
}

// Close implements Provider.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
