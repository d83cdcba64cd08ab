// Package denoise defines the Denoiser interface for noise-reduction stages.
//
// A denoiser takes a captured audio buffer and returns a cleaned buffer of
// identical length and sample rate. Like frame gating it is an optional
// signal-quality stage: a denoiser failure is treated by the pipeline as a
// skipped stage, never as a pipeline failure.
package denoise

import "github.com/MrWong99/medivox/pkg/audio"

// Denoiser reduces stationary noise in a captured buffer.
type Denoiser interface {
	// Apply returns a cleaned buffer of the same length and sample rate as
	// buf. Implementations must be numerically stable for silent or
	// near-silent input: a silent buffer comes back unchanged.
	Apply(buf audio.Buffer) (audio.Buffer, error)
}

// Noop is the pass-through Denoiser selected when denoising is disabled.
type Noop struct{}

// Compile-time interface assertion.
var _ Denoiser = Noop{}

// Apply implements [Denoiser] by returning buf unchanged.
func (Noop) Apply(buf audio.Buffer) (audio.Buffer, error) { return buf, nil }
