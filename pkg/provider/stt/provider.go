// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Medivox transcribes one complete utterance per capture cycle, so the
// interface is a single blocking call rather than a streaming session: the
// cleaned buffer goes in, the raw transcript comes out. Providers wrap a
// local whisper.cpp server, the in-process whisper.cpp bindings, or the
// OpenAI transcription API.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/medivox/pkg/audio"
)

// ErrServiceUnavailable is the sentinel wrapped by providers when the
// backing service cannot be reached or reports a server-side failure. The
// pipeline surfaces it as a recoverable transcription failure; callers may
// retry the whole capture cycle or fall back to typed input.
var ErrServiceUnavailable = errors.New("stt: transcription service unavailable")

// Transcriber converts a single utterance to text.
type Transcriber interface {
	// Transcribe performs one blocking transcription of buf and returns the
	// raw transcript text, which may be empty when the service heard nothing
	// intelligible. Network and service errors wrap ErrServiceUnavailable.
	Transcribe(ctx context.Context, buf audio.Buffer) (string, error)
}
