package embedding

import (
	"context"
	"fmt"
)

// Provider turns text into a fixed-length vector. Dimension is constant for
// the lifetime of a provider.
type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DimensionError reports a vector whose length disagrees with the provider.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	if e == nil {
		return "embedding dimension mismatch"
	}
	return fmt.Sprintf("embedding dimension mismatch: want=%d got=%d", e.Want, e.Got)
}

// CheckDimension returns a *DimensionError when vec does not have p's dimension.
func CheckDimension(p Provider, vec []float32) error {
	if p == nil {
		return fmt.Errorf("embedding provider is nil")
	}
	if len(vec) != p.Dimension() {
		return &DimensionError{Want: p.Dimension(), Got: len(vec)}
	}
	return nil
}

func zeros(dim int) []float32 {
	if dim <= 0 {
		return nil
	}
	return make([]float32, dim)
}
