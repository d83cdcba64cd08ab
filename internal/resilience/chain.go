package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/medivox/pkg/audio"
	"github.com/MrWong99/medivox/pkg/provider/stt"
)

var _ stt.Transcriber = (*TranscriberChain)(nil)

// chainEntry pairs a transcription provider with its dedicated breaker.
type chainEntry struct {
	name        string
	transcriber stt.Transcriber
	breaker     *Breaker
}

// TranscriberChain is an [stt.Transcriber] that delegates to the first
// healthy provider in registration order. Providers whose breaker is open
// are skipped; when every provider fails the chain reports
// [stt.ErrServiceUnavailable] so callers see a single recoverable error
// regardless of how many backends were tried.
type TranscriberChain struct {
	entries []chainEntry
	cfg     BreakerConfig
}

// NewTranscriberChain creates a chain with primary as the first provider.
// cfg.Name is overridden per entry.
func NewTranscriberChain(primaryName string, primary stt.Transcriber, cfg BreakerConfig) *TranscriberChain {
	c := &TranscriberChain{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider, tried after all previously added ones.
// Not safe to call concurrently with [TranscriberChain.Transcribe].
func (c *TranscriberChain) Add(name string, t stt.Transcriber) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry{
		name:        name,
		transcriber: t,
		breaker:     NewBreaker(cfg),
	})
}

// Transcribe implements [stt.Transcriber].
func (c *TranscriberChain) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]

		var text string
		err := entry.breaker.Do(func() error {
			var inner error
			text, inner = entry.transcriber.Transcribe(ctx, buf)
			return inner
		})
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping transcriber, breaker open", "provider", entry.name)
		} else {
			slog.Warn("transcriber failed, trying next", "provider", entry.name, "error", err)
		}
		// A cancelled or expired context fails every remaining provider the
		// same way; bail out so the caller sees the deadline, not a chain
		// exhaustion.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: all providers failed: %v", stt.ErrServiceUnavailable, lastErr)
}

// Names returns the provider names in try order, for logging and readiness
// reporting.
func (c *TranscriberChain) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}
