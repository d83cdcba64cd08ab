// Package vad defines the Gate interface for voice-activity-based frame
// gating.
//
// A gate partitions a captured audio buffer into fixed-duration frames,
// classifies each frame as speech or non-speech, and returns a new buffer
// containing only the speech frames in their original order. Gating is an
// optional signal-quality stage: the pipeline treats a gate failure as a
// skipped stage, and every implementation must fail open — a buffer in which
// no speech is detected is returned unmodified rather than emptied.
//
// Implementations must be safe for concurrent use; Apply carries no
// per-stream state.
package vad

import "github.com/MrWong99/medivox/pkg/audio"

// ValidFrameMs lists the frame durations (in milliseconds) a Gate may be
// configured with.
var ValidFrameMs = []int{10, 20, 30}

// Gate strips non-speech frames from a captured buffer.
type Gate interface {
	// Apply returns a new buffer containing only the frames classified as
	// speech, concatenated in original order. When zero frames are classified
	// as speech the input buffer is returned unchanged. An error indicates the
	// gate could not process the buffer at all (e.g. sample-rate mismatch);
	// the caller then proceeds with the ungated buffer.
	Apply(buf audio.Buffer) (audio.Buffer, error)
}

// Noop is the pass-through Gate selected when gating is disabled. Apply
// returns the input buffer untouched.
type Noop struct{}

// Compile-time interface assertion.
var _ Gate = Noop{}

// Apply implements [Gate] by returning buf unchanged.
func (Noop) Apply(buf audio.Buffer) (audio.Buffer, error) { return buf, nil }
