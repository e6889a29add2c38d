package pose

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoPose is returned when no body is found in the image.
	ErrNoPose = errors.New("pose: no pose detected")

	// ErrUndecodable is returned when the image bytes cannot be decoded.
	ErrUndecodable = errors.New("pose: image could not be decoded")

	// ErrModelNotFound is returned when the model file is missing.
	ErrModelNotFound = errors.New("pose: model file not found")
)

// Provider is the interface for pose-estimation backends.
// Implementations must accept images of arbitrary resolution.
type Provider interface {
	// Detect finds the landmarks of one person in an encoded image (JPEG/PNG).
	Detect(ctx context.Context, image []byte) (Set, error)

	// Close releases resources
	Close() error
}

// ProviderError wraps a backend failure with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("pose [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// SafeDetect calls p.Detect and converts a panic inside the backend into a
// ProviderError, so a crashing model cannot take down a session.
func SafeDetect(ctx context.Context, p Provider, image []byte) (set Set, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProviderError{Provider: fmt.Sprintf("%T", p), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return p.Detect(ctx, image)
}
