// Package convert defines the external converter capability. The actual
// byte transcoding is an opaque, possibly slow, possibly failing black box;
// this package only knows how to pick one per category and talk to it.
package convert

import (
	"context"
	"errors"

	"converter/format"
	"converter/models"
)

// ErrUnconvertible marks inputs the toolchain rejected as invalid or
// unconvertible. Callers treat it as terminal and must not retry.
var ErrUnconvertible = errors.New("input cannot be converted")

// Converter turns input bytes of sourceFormat into targetFormat bytes.
// Implementations must be safe for concurrent use up to the worker pool's
// concurrency limit.
type Converter interface {
	Convert(ctx context.Context, input []byte, sourceFormat, targetFormat string, opts models.ConversionOptions) ([]byte, error)
}

// Registry maps a format category to the converter responsible for it.
type Registry struct {
	byCategory map[format.Category]Converter
}

func NewRegistry() *Registry {
	return &Registry{byCategory: make(map[format.Category]Converter)}
}

func (r *Registry) Register(cat format.Category, c Converter) {
	r.byCategory[cat] = c
}

// For selects a converter by the target's category, falling back to the
// source category for pairs whose target category has no converter of its
// own.
func (r *Registry) For(target, source format.Category) (Converter, bool) {
	if c, ok := r.byCategory[target]; ok {
		return c, true
	}
	c, ok := r.byCategory[source]
	return c, ok
}
