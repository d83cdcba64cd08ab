// Package mock provides a scriptable [stt.Transcriber] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a test double. Set TranscribeFunc to script behaviour; the
// zero value returns an empty transcript. Calls records every buffer passed
// to Transcribe.
type Transcriber struct {
	// TranscribeFunc is invoked for each Transcribe call when non-nil.
	TranscribeFunc func(ctx context.Context, buf audio.Buffer) (string, error)

	mu    sync.Mutex
	calls []audio.Buffer
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, buf)
	t.mu.Unlock()

	if t.TranscribeFunc != nil {
		return t.TranscribeFunc(ctx, buf)
	}
	return "", nil
}

// Calls returns a copy of the buffers passed to Transcribe so far.
func (t *Transcriber) Calls() []audio.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]audio.Buffer, len(t.calls))
	copy(out, t.calls)
	return out
}
